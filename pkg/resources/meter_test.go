package resources

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMeter(t *testing.T, budget Budget) *Meter {
	t.Helper()
	return New(budget, DefaultCostRates(), prometheus.NewRegistry())
}

func TestUsageAddAndTotals(t *testing.T) {
	a := Usage{InputTokens: 100, OutputTokens: 50, APICalls: 1}
	b := Usage{InputTokens: 200, OutputTokens: 75, APICalls: 2}
	sum := a.Add(b)

	assert.Equal(t, 300, sum.InputTokens)
	assert.Equal(t, 125, sum.OutputTokens)
	assert.Equal(t, 3, sum.APICalls)
	assert.Equal(t, 425, sum.TotalTokens())
}

func TestUsageEstimatedCostUSD(t *testing.T) {
	u := Usage{InputTokens: 1000, OutputTokens: 1000}
	cost := u.EstimatedCostUSD(DefaultCostRates())
	assert.InDelta(t, 0.018, cost, 1e-9)
}

func TestBudgetIsEmpty(t *testing.T) {
	assert.True(t, Budget{}.IsEmpty())

	limit := 1000
	assert.False(t, Budget{MaxTokens: &limit}.IsEmpty())
}

func TestMeterTrackAccumulates(t *testing.T) {
	m := newTestMeter(t, Budget{})
	m.Track(10, 20, 1)
	m.Track(5, 5, 1)

	usage := m.GetUsage()
	assert.Equal(t, 15, usage.InputTokens)
	assert.Equal(t, 25, usage.OutputTokens)
	assert.Equal(t, 2, usage.APICalls)
}

func TestMeterCheckBudgetOK(t *testing.T) {
	limit := 1000
	m := newTestMeter(t, Budget{MaxTokens: &limit})
	m.Track(50, 50, 1)

	check := m.CheckBudget()
	assert.Equal(t, StatusOK, check.Status)
}

func TestMeterCheckBudgetWarning(t *testing.T) {
	limit := 100
	m := newTestMeter(t, Budget{MaxTokens: &limit})
	m.Track(45, 40, 1) // 85 of 100 tokens = 85%

	check := m.CheckBudget()
	assert.Equal(t, StatusWarning, check.Status)
}

func TestMeterCheckBudgetExceeded(t *testing.T) {
	limit := 100
	m := newTestMeter(t, Budget{MaxTokens: &limit})
	m.Track(80, 80, 1) // 160 of 100 tokens = 160%

	check := m.CheckBudget()
	assert.Equal(t, StatusExceeded, check.Status)
	assert.Contains(t, check.Message, "BUDGET EXCEEDED")
}

func TestMeterCheckBudgetNoLimit(t *testing.T) {
	m := newTestMeter(t, Budget{})
	m.Track(1_000_000, 1_000_000, 100)

	check := m.CheckBudget()
	assert.Equal(t, StatusOK, check.Status)
	assert.Equal(t, "No limit set", check.Message)
}

func TestMeterEstimateRemaining(t *testing.T) {
	m := newTestMeter(t, Budget{})
	m.Track(100, 100, 1)
	m.Track(100, 100, 1)

	remaining := m.EstimateRemaining(2)
	assert.Equal(t, 200, remaining.InputTokens)
	assert.Equal(t, 200, remaining.OutputTokens)
	assert.Equal(t, 2, remaining.APICalls)
}

func TestMeterEstimateRemainingNoHistory(t *testing.T) {
	m := newTestMeter(t, Budget{})
	remaining := m.EstimateRemaining(5)
	assert.Equal(t, Usage{}, remaining)
}

func TestMeterPredictTotal(t *testing.T) {
	m := newTestMeter(t, Budget{})
	m.Track(100, 100, 1)

	total := m.PredictTotal(1)
	assert.Equal(t, 200, total.InputTokens)
	assert.Equal(t, 200, total.OutputTokens)
}

func TestMeterResetClearsUsage(t *testing.T) {
	m := newTestMeter(t, Budget{})
	m.Track(100, 100, 1)
	m.Reset()

	usage := m.GetUsage()
	assert.Equal(t, Usage{}, usage)
	assert.Equal(t, Usage{}, m.EstimateRemaining(1))
}

func TestMeterStartStopTracking(t *testing.T) {
	m := newTestMeter(t, Budget{})
	m.StartTracking()
	m.StopTracking()

	usage := m.GetUsage()
	assert.GreaterOrEqual(t, usage.ElapsedSeconds, 0.0)
}

func TestMeterElapsedAccumulatesAcrossSegments(t *testing.T) {
	m := newTestMeter(t, Budget{})

	m.StartTracking()
	time.Sleep(5 * time.Millisecond)
	m.StopTracking()
	firstSegment := m.GetUsage().ElapsedSeconds
	require.Greater(t, firstSegment, 0.0)

	m.StartTracking()
	time.Sleep(5 * time.Millisecond)
	m.StopTracking()
	total := m.GetUsage().ElapsedSeconds

	assert.Greater(t, total, firstSegment)
}

func TestMeterGetUsageDoesNotMutateDuringTracking(t *testing.T) {
	m := newTestMeter(t, Budget{})
	m.StartTracking()
	time.Sleep(2 * time.Millisecond)

	first := m.GetUsage().ElapsedSeconds
	time.Sleep(2 * time.Millisecond)
	second := m.GetUsage().ElapsedSeconds

	assert.Greater(t, second, first)
	m.StopTracking()
}

func TestMeterToSummaryContainsBudgetLines(t *testing.T) {
	limit := 1000
	m := newTestMeter(t, Budget{MaxTokens: &limit})
	m.Track(100, 100, 1)

	summary := m.ToSummary()
	require.Contains(t, summary, "Resource usage:")
	assert.Contains(t, summary, "Limits:")
	assert.Contains(t, summary, "Tokens:")
}

func TestMeterSetBudget(t *testing.T) {
	m := newTestMeter(t, Budget{})
	limit := 10
	m.SetBudget(Budget{MaxTokens: &limit})
	m.Track(20, 0, 1)

	check := m.CheckBudget()
	assert.Equal(t, StatusExceeded, check.Status)
}
