package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	f, err := New(DefaultSourceToken, DefaultEventToken)
	require.NoError(t, err)

	cases := []struct {
		name string
		line string
		want bool
	}{
		{"both tokens", `GET /t?d={%22lib%22%3A%22mgtvandroid%22,%22event_name%22%3A%22page%22}`, true},
		{"mixed case", `x LIB%22%3a%22MgtvAndroid y EVENT_NAME%22%3A%22Page_view`, true},
		{"token at start", `lib%22%3A%22mgtvandroid event_name%22%3A%22page`, true},
		{"source only", `lib%22%3A%22mgtvandroid event_name%22%3A%22click`, false},
		{"event only", `lib%22%3A%22mgtvios event_name%22%3A%22page`, false},
		{"neither", `plain access log line`, false},
		{"empty", ``, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, f.Match(tc.line))
		})
	}
}

func TestCustomTokens(t *testing.T) {
	f, err := New("Nginx", "ERROR")
	require.NoError(t, err)
	assert.True(t, f.Match("2024/01/01 [error] nginx: upstream timed out"))
	assert.False(t, f.Match("2024/01/01 [warn] nginx: slow upstream"))
}

func TestNewRequiresTokens(t *testing.T) {
	_, err := New("", DefaultEventToken)
	assert.Error(t, err)
	_, err = New(DefaultSourceToken, "")
	assert.Error(t, err)
}
