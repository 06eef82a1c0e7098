package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.LineRead()
	m.LineRead()
	m.LineMatched()
	m.Sent()
	m.SendFailed()
	m.DeliveryFailed()
	m.DeliveryFailed()
	m.FileDone(nil)
	m.FileDone(errors.New("boom"))
	m.ThrottleWait(3 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.linesRead))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linesMatched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishErrors.WithLabelValues("send")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.publishErrors.WithLabelValues("delivery")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.files.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.files.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.throttleWait))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.LineRead()
	m.LineMatched()
	m.Sent()
	m.SendFailed()
	m.DeliveryFailed()
	m.FileDone(nil)
	m.ThrottleWait(time.Second)
	m.RunFinished(time.Second, true)
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.Push(context.Background(), "http://127.0.0.1:1", "x"))
}

func TestPush(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		path = r.URL.Path
		body = string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.Sent()
	m.RunFinished(2*time.Second, true)
	require.NoError(t, m.Push(context.Background(), srv.URL, "host-1"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/metrics/job/logimport/instance/host-1", path)
	assert.NotEmpty(t, body)
	assert.True(t, strings.HasPrefix(path, "/metrics/job/"))
}

func TestPushSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "")
	assert.Error(t, err)
}
