package filter

import (
	"errors"
	"strings"
)

// Default tokens select Android client page events in URL-encoded tracking
// logs.
const (
	DefaultSourceToken = "lib%22%3A%22mgtvandroid"
	DefaultEventToken  = "event_name%22%3A%22page"
)

// Filter selects lines that mention both a source token and an event-type
// token, ignoring case. The log format is treated as opaque text.
type Filter struct {
	source string
	event  string
}

func New(sourceToken, eventToken string) (*Filter, error) {
	if sourceToken == "" || eventToken == "" {
		return nil, errors.New("filter: source and event tokens are required")
	}
	return &Filter{
		source: strings.ToLower(sourceToken),
		event:  strings.ToLower(eventToken),
	}, nil
}

// Match reports whether line qualifies for publication.
func (f *Filter) Match(line string) bool {
	if line == "" {
		return false
	}
	lower := strings.ToLower(line)
	return strings.Contains(lower, f.source) && strings.Contains(lower, f.event)
}
