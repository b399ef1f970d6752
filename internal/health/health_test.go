package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReporterStartsNotReady(t *testing.T) {
	r := NewReporter()
	assert.False(t, r.IsReady())
}

func TestNotifyReadyFlipsOnceAndStays(t *testing.T) {
	r := NewReporter()
	r.NotifyReady()
	assert.True(t, r.IsReady())
	r.NotifyReady()
	assert.True(t, r.IsReady())
}

func TestHandlerReturns503BeforeReadyAnd200After(t *testing.T) {
	r := NewReporter()
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()

	r.NotifyReady()
	resp, err = http.Get(srv.URL)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
