package shared

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCategories(t *testing.T) {
	upstream := fmt.Errorf("scan: %w", NewUpstreamError("getIsirWsPublicPodnetId", 5, errors.New("eof")))
	format := NewFormatError("parse_case_key", "INS-1", "INS 12925/2022")
	malformed := NewMalformedResponseError("getIsirWsPublicPodnetPosledniId", "empty")

	assert.True(t, IsUpstreamError(upstream))
	assert.False(t, IsFormatError(upstream))
	assert.True(t, IsFormatError(format))
	assert.False(t, IsUpstreamError(format))
	assert.True(t, IsUpstreamError(malformed))
	assert.Equal(t, CodeUpstreamMalformed, malformed.Code)
	assert.False(t, IsUpstreamError(errors.New("plain")))
}

func newTestBreaker(now *time.Time) *ErrorIsolationHandler {
	h := NewErrorIsolationHandler("gemini", 0.5).WithMinSamples(2)
	h.now = func() time.Time { return *now }
	return h
}

func TestErrorIsolationHandlerOpensAndRecovers(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h := newTestBreaker(&now)
	failing := func() error { return errors.New("quota exceeded") }

	require.Error(t, h.Execute("summarize", failing))
	assert.False(t, h.IsCircuitBreakerOpen())
	require.Error(t, h.Execute("summarize", failing))
	assert.True(t, h.IsCircuitBreakerOpen())

	called := false
	err := h.Execute("summarize", func() error { called = true; return nil })
	require.Error(t, err)
	assert.False(t, called)

	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, CodeServiceUnavailable, serviceErr.Code)

	now = now.Add(31 * time.Second)
	assert.False(t, h.IsCircuitBreakerOpen())
	for i := 0; i < 3; i++ {
		require.NoError(t, h.Execute("summarize", func() error { return nil }))
	}
	assert.False(t, h.circuitBreakerOpen)
}

func TestErrorIsolationHandlerReopensOnHalfOpenFailure(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h := newTestBreaker(&now)
	failing := func() error { return errors.New("boom") }

	_ = h.Execute("summarize", failing)
	_ = h.Execute("summarize", failing)
	require.True(t, h.IsCircuitBreakerOpen())

	now = now.Add(31 * time.Second)
	require.Error(t, h.Execute("summarize", failing))
	assert.True(t, h.IsCircuitBreakerOpen())
}
