package headers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usagedeck/usagedeck/internal/usage"
)

func TestWindowsParsesUnifiedHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Anthropic-Ratelimit-Unified-5h-Utilization", "0.42")
	h.Set("Anthropic-Ratelimit-Unified-5h-Reset", "1767225600")
	h.Set("Anthropic-Ratelimit-Unified-7d-Utilization", "0.10")

	obs := Windows(h, time.Now())
	require.Len(t, obs, 2)

	assert.Equal(t, "5h", obs[0].Label)
	assert.InDelta(t, 42.0, obs[0].Used, 0.001)
	assert.Equal(t, 100.0, obs[0].Limit)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), obs[0].ResetsAt)

	assert.Equal(t, "weekly", obs[1].Label)
	assert.InDelta(t, 10.0, obs[1].Used, 0.001)
	assert.True(t, obs[1].ResetsAt.IsZero())
}

func TestWindowsParsesStandardHeaders(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	h := http.Header{}
	h.Set("X-Ratelimit-Limit-Requests", "10000")
	h.Set("X-Ratelimit-Remaining-Requests", "9900")
	h.Set("X-Ratelimit-Reset-Requests", "6m0s")
	h.Set("X-Ratelimit-Limit-Tokens", "2000000")
	h.Set("X-Ratelimit-Remaining-Tokens", "1999000")

	obs := Windows(h, now)
	require.Len(t, obs, 2)

	assert.Equal(t, "requests", obs[0].Label)
	assert.Equal(t, 100.0, obs[0].Used)
	assert.Equal(t, 10000.0, obs[0].Limit)
	assert.Equal(t, now.Add(6*time.Minute), obs[0].ResetsAt)

	assert.Equal(t, "tokens", obs[1].Label)
	assert.Equal(t, 1000.0, obs[1].Used)
}

func TestWindowsPrefersUnifiedOverStandard(t *testing.T) {
	h := http.Header{}
	h.Set("Anthropic-Ratelimit-Unified-5h-Utilization", "0.5")
	h.Set("X-Ratelimit-Limit-Requests", "1000")

	obs := Windows(h, time.Now())
	require.Len(t, obs, 1)
	assert.Equal(t, "5h", obs[0].Label)
}

func TestWindowsEmptyWithoutQuotaHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "application/json")

	assert.Empty(t, Windows(h, time.Now()))
}

func TestWindowsIgnoresMalformedValues(t *testing.T) {
	h := http.Header{}
	h.Set("Anthropic-Ratelimit-Unified-5h-Utilization", "not-a-number")
	h.Set("X-Ratelimit-Limit-Requests", "100")
	h.Set("X-Ratelimit-Remaining-Requests", "90")
	h.Set("X-Ratelimit-Reset-Requests", "garbage")

	obs := Windows(h, time.Now())
	require.Len(t, obs, 1)
	assert.Equal(t, "requests", obs[0].Label)
	assert.True(t, obs[0].ResetsAt.IsZero())
	assert.Equal(t, usage.ConfidenceExact, obs[0].Confidence)
}
