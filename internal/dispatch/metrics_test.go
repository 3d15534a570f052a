package dispatch

import (
	"testing"
	"time"

	"github.com/QTest-hq/qroute/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecentRecords(t *testing.T) {
	m := NewMetrics(3)

	for i, model := range []string{"a", "b", "c", "d"} {
		m.RecordSuccess(UsageRecord{Provider: llm.ProviderMock, Model: model, PromptTokens: i, CompletionTokens: 1})
	}

	recent := m.RecentRecords(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "d", recent[0].Model)
	assert.Equal(t, "b", recent[2].Model)
	assert.Equal(t, 4, recent[0].TotalTokens)

	snap := m.Snapshot(2)
	assert.Equal(t, int64(4), snap.SuccessfulRequests)
	assert.Equal(t, int64(1+2+3+4), snap.TotalTokens)
	assert.Len(t, snap.Recent, 2)
	assert.Equal(t, int64(4), snap.Providers[llm.ProviderMock].Successes)
}

func TestMetrics_Averages(t *testing.T) {
	m := NewMetrics(0)
	m.RequestStarted()
	m.RequestStarted()
	m.RecordSuccess(UsageRecord{Provider: llm.ProviderOllama, Latency: 100 * time.Millisecond, Fallback: true})
	m.RecordSuccess(UsageRecord{Provider: llm.ProviderOllama, Latency: 300 * time.Millisecond})
	m.RecordAttemptFailure(llm.ProviderOpenAI)

	snap := m.Snapshot(0)
	assert.Equal(t, int64(2), snap.TotalRequests)
	assert.Equal(t, 200*time.Millisecond, snap.AverageLatency)
	assert.Equal(t, 200*time.Millisecond, snap.Providers[llm.ProviderOllama].AverageLatency)
	assert.Equal(t, int64(1), snap.FallbackRequests)
	assert.Equal(t, int64(1), snap.Providers[llm.ProviderOpenAI].Failures)
	assert.Nil(t, snap.Recent)
}
