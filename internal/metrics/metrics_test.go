package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryObserveRequestExposesLabeledCounter(t *testing.T) {
	reg := NewRegistry()
	reg.ObserveRequest(0, 11, 0, 128)
	reg.ObserveRequest(75, 0, 3, 64)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	reg.Handler().ServeHTTP(rr, req)

	require.Equal(t, 200, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `kafkabroker_requests_total{api_key="0",api_version="11",error_code="0"} 1`)
	assert.Contains(t, body, `kafkabroker_requests_total{api_key="75",api_version="0",error_code="3"} 1`)
}

func TestConnectionGaugeTracksOpenAndClose(t *testing.T) {
	reg := NewRegistry()
	reg.ConnectionOpened()
	reg.ConnectionOpened()
	reg.ConnectionClosed()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	reg.Handler().ServeHTTP(rr, req)

	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "kafkabroker_connections_active 1"))
}

func TestNopRecorderDoesNothing(t *testing.T) {
	r := NopRecorder()
	r.ObserveRequest(0, 0, 0, 0)
	r.ObserveDecodeError()
	r.ConnectionOpened()
	r.ConnectionClosed()
}
