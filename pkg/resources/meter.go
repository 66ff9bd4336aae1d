// Package resources tracks token, call, time, and cost consumption for a
// pipeline run and reports it against an optional budget, exposing the same
// counters as Prometheus gauges for external scraping.
package resources

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status is the budget check's overall verdict.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusExceeded Status = "exceeded"
)

// warningThresholdPercent and exceededThresholdPercent gate the Status
// computed by CheckBudget.
const (
	warningThresholdPercent  = 80.0
	exceededThresholdPercent = 100.0
)

// CostRates holds the per-1000-token price used to estimate spend. These
// are configuration, not constants, since vendor pricing changes and this
// port targets more than one possible backend.
type CostRates struct {
	PerThousandInputTokens  float64
	PerThousandOutputTokens float64
}

// DefaultCostRates matches the reference pricing used for estimation when
// no override is configured.
func DefaultCostRates() CostRates {
	return CostRates{PerThousandInputTokens: 0.003, PerThousandOutputTokens: 0.015}
}

// Usage is accumulated resource consumption.
type Usage struct {
	InputTokens    int
	OutputTokens   int
	APICalls       int
	ElapsedSeconds float64
}

// TotalTokens returns input + output tokens.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// EstimatedCostUSD estimates spend at the given rates.
func (u Usage) EstimatedCostUSD(rates CostRates) float64 {
	inputCost := (float64(u.InputTokens) / 1000) * rates.PerThousandInputTokens
	outputCost := (float64(u.OutputTokens) / 1000) * rates.PerThousandOutputTokens
	return inputCost + outputCost
}

// Add returns the sum of two usages.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:    u.InputTokens + other.InputTokens,
		OutputTokens:   u.OutputTokens + other.OutputTokens,
		APICalls:       u.APICalls + other.APICalls,
		ElapsedSeconds: u.ElapsedSeconds + other.ElapsedSeconds,
	}
}

// Budget is the set of limits a run should stay under. A zero value (all
// fields nil) means no limit is enforced.
type Budget struct {
	MaxTokens      *int
	MaxAPICalls    *int
	MaxTimeSeconds *float64
	MaxCostUSD     *float64
}

// IsEmpty reports whether no limit has been set.
func (b Budget) IsEmpty() bool {
	return b.MaxTokens == nil && b.MaxAPICalls == nil && b.MaxTimeSeconds == nil && b.MaxCostUSD == nil
}

// Check is the outcome of comparing current usage against a Budget.
type Check struct {
	Status        Status
	Message       string
	TokensPercent float64
	CallsPercent  float64
	TimePercent   float64
	CostPercent   float64
}

// Meter tracks a single run's resource consumption and exposes it both
// programmatically and as Prometheus gauges.
type Meter struct {
	mu          sync.Mutex
	budget      Budget
	rates       CostRates
	usage       Usage
	startedAt   time.Time
	tracking    bool
	accumulated time.Duration // elapsed time banked across earlier tracking segments
	history     []Usage

	gaugeTokens  prometheus.Gauge
	gaugeCalls   prometheus.Gauge
	gaugeElapsed prometheus.Gauge
	gaugeCost    prometheus.Gauge
}

// New builds a Meter. If registerer is non-nil, the meter's gauges are
// registered against it (pass prometheus.DefaultRegisterer for the global
// registry, or a dedicated registry in tests).
func New(budget Budget, rates CostRates, registerer prometheus.Registerer) *Meter {
	m := &Meter{
		budget: budget,
		rates:  rates,
		gaugeTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "codeforge",
			Subsystem: "resources",
			Name:      "tokens_total",
			Help:      "Total input+output tokens consumed by the current run.",
		}),
		gaugeCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "codeforge",
			Subsystem: "resources",
			Name:      "api_calls_total",
			Help:      "Total LLM calls made by the current run.",
		}),
		gaugeElapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "codeforge",
			Subsystem: "resources",
			Name:      "elapsed_seconds",
			Help:      "Elapsed wall-clock seconds since tracking started.",
		}),
		gaugeCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "codeforge",
			Subsystem: "resources",
			Name:      "estimated_cost_usd",
			Help:      "Estimated USD cost of the current run.",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(m.gaugeTokens, m.gaugeCalls, m.gaugeElapsed, m.gaugeCost)
	}

	return m
}

// StartTracking begins (or resumes, after a pause/Continue cycle) elapsed-
// time tracking. Elapsed time from any prior StartTracking/StopTracking
// segment is preserved; this call only starts a new segment's clock.
func (m *Meter) StartTracking() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startedAt = time.Now()
	m.tracking = true
}

// StopTracking freezes elapsed time, banking the current segment's
// duration on top of whatever was already accumulated across earlier
// segments (a run paused and resumed keeps its total elapsed time).
func (m *Meter) StopTracking() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tracking {
		m.accumulated += time.Since(m.startedAt)
		m.tracking = false
	}
}

// Track records one increment of resource usage.
func (m *Meter) Track(inputTokens, outputTokens, apiCalls int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	increment := Usage{InputTokens: inputTokens, OutputTokens: outputTokens, APICalls: apiCalls}
	m.usage = m.usage.Add(increment)
	m.history = append(m.history, increment)
	m.publishLocked()
}

// TrackSimple estimates token usage from a response's character length
// (~4 chars/token) when exact counts aren't available.
func (m *Meter) TrackSimple(responseLength int) {
	estimatedOutput := responseLength / 4
	estimatedInput := estimatedOutput / 3
	m.Track(estimatedInput, estimatedOutput, 1)
}

// GetUsage returns current usage, refreshing elapsed time if tracking is
// active.
func (m *Meter) GetUsage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usageLocked()
}

func (m *Meter) usageLocked() Usage {
	u := m.usage
	elapsed := m.accumulated
	if m.tracking {
		elapsed += time.Since(m.startedAt)
	}
	u.ElapsedSeconds = elapsed.Seconds()
	return u
}

// CheckBudget compares current usage against the configured budget.
func (m *Meter) CheckBudget() Check {
	m.mu.Lock()
	defer m.mu.Unlock()

	usage := m.usageLocked()

	if m.budget.IsEmpty() {
		return Check{Status: StatusOK, Message: "No limit set"}
	}

	var tokensPct, callsPct, timePct, costPct float64
	if m.budget.MaxTokens != nil && *m.budget.MaxTokens > 0 {
		tokensPct = float64(usage.TotalTokens()) / float64(*m.budget.MaxTokens) * 100
	}
	if m.budget.MaxAPICalls != nil && *m.budget.MaxAPICalls > 0 {
		callsPct = float64(usage.APICalls) / float64(*m.budget.MaxAPICalls) * 100
	}
	if m.budget.MaxTimeSeconds != nil && *m.budget.MaxTimeSeconds > 0 {
		timePct = usage.ElapsedSeconds / *m.budget.MaxTimeSeconds * 100
	}
	if m.budget.MaxCostUSD != nil && *m.budget.MaxCostUSD > 0 {
		costPct = usage.EstimatedCostUSD(m.rates) / *m.budget.MaxCostUSD * 100
	}

	maxPct := maxOf(tokensPct, callsPct, timePct, costPct)

	var status Status
	var message string
	switch {
	case maxPct >= exceededThresholdPercent:
		status = StatusExceeded
		message = exceededMessage(tokensPct, callsPct, timePct, costPct)
	case maxPct >= warningThresholdPercent:
		status = StatusWarning
		message = warningMessage(tokensPct, callsPct, timePct, costPct)
	default:
		status = StatusOK
		message = fmt.Sprintf("Resources OK (%.0f%% of limit)", maxPct)
	}

	return Check{
		Status:        status,
		Message:       message,
		TokensPercent: tokensPct,
		CallsPercent:  callsPct,
		TimePercent:   timePct,
		CostPercent:   costPct,
	}
}

func maxOf(vs ...float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func exceededMessage(tokens, calls, time, cost float64) string {
	var parts []string
	if tokens >= 100 {
		parts = append(parts, fmt.Sprintf("tokens (%.0f%%)", tokens))
	}
	if calls >= 100 {
		parts = append(parts, fmt.Sprintf("calls (%.0f%%)", calls))
	}
	if time >= 100 {
		parts = append(parts, fmt.Sprintf("time (%.0f%%)", time))
	}
	if cost >= 100 {
		parts = append(parts, fmt.Sprintf("cost (%.0f%%)", cost))
	}
	return "BUDGET EXCEEDED: " + strings.Join(parts, ", ")
}

func warningMessage(tokens, calls, time, cost float64) string {
	var parts []string
	if tokens >= 80 {
		parts = append(parts, fmt.Sprintf("tokens (%.0f%%)", tokens))
	}
	if calls >= 80 {
		parts = append(parts, fmt.Sprintf("calls (%.0f%%)", calls))
	}
	if time >= 80 {
		parts = append(parts, fmt.Sprintf("time (%.0f%%)", time))
	}
	if cost >= 80 {
		parts = append(parts, fmt.Sprintf("cost (%.0f%%)", cost))
	}
	return "WARNING: approaching limit - " + strings.Join(parts, ", ")
}

// EstimateRemaining projects the resources stepsLeft more steps will cost,
// based on the historical per-call average so far.
func (m *Meter) EstimateRemaining(stepsLeft int) Usage {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 || stepsLeft <= 0 {
		return Usage{}
	}

	var totalCalls, totalInput, totalOutput int
	for _, h := range m.history {
		totalCalls += h.APICalls
		totalInput += h.InputTokens
		totalOutput += h.OutputTokens
	}
	if totalCalls == 0 {
		return Usage{}
	}

	avgInput := float64(totalInput) / float64(totalCalls)
	avgOutput := float64(totalOutput) / float64(totalCalls)
	avgTime := 5.0
	if totalCalls > 0 {
		avgTime = m.usageLocked().ElapsedSeconds / float64(totalCalls)
	}

	return Usage{
		InputTokens:    int(avgInput * float64(stepsLeft)),
		OutputTokens:   int(avgOutput * float64(stepsLeft)),
		APICalls:       stepsLeft,
		ElapsedSeconds: avgTime * float64(stepsLeft),
	}
}

// PredictTotal returns current usage plus the projected remaining cost of
// stepsLeft more steps.
func (m *Meter) PredictTotal(stepsLeft int) Usage {
	return m.GetUsage().Add(m.EstimateRemaining(stepsLeft))
}

// Reset clears all counters and history.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = Usage{}
	m.history = nil
	m.tracking = false
	m.accumulated = 0
	m.publishLocked()
}

// Rates returns the cost rates this meter estimates spend with.
func (m *Meter) Rates() CostRates {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rates
}

// HistoryCount returns the number of Track calls recorded so far, used to
// gauge how much data a residual-cost prediction is based on.
func (m *Meter) HistoryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// SetBudget replaces the active budget.
func (m *Meter) SetBudget(budget Budget) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budget = budget
}

// ToSummary renders a human-readable usage and budget report.
func (m *Meter) ToSummary() string {
	usage := m.GetUsage()
	check := m.CheckBudget()

	var b strings.Builder
	b.WriteString("Resource usage:\n")
	fmt.Fprintf(&b, "  Tokens: %d (%d in / %d out)\n", usage.TotalTokens(), usage.InputTokens, usage.OutputTokens)
	fmt.Fprintf(&b, "  API calls: %d\n", usage.APICalls)
	fmt.Fprintf(&b, "  Elapsed: %.1fs\n", usage.ElapsedSeconds)
	fmt.Fprintf(&b, "  Estimated cost: $%.4f\n\n", usage.EstimatedCostUSD(m.rates))
	fmt.Fprintf(&b, "Status: %s\n  %s", strings.ToUpper(string(check.Status)), check.Message)

	m.mu.Lock()
	budget := m.budget
	m.mu.Unlock()

	if !budget.IsEmpty() {
		b.WriteString("\n\nLimits:\n")
		if budget.MaxTokens != nil {
			fmt.Fprintf(&b, "  Tokens: %d / %d (%.0f%%)\n", usage.TotalTokens(), *budget.MaxTokens, check.TokensPercent)
		}
		if budget.MaxAPICalls != nil {
			fmt.Fprintf(&b, "  Calls: %d / %d (%.0f%%)\n", usage.APICalls, *budget.MaxAPICalls, check.CallsPercent)
		}
		if budget.MaxTimeSeconds != nil {
			fmt.Fprintf(&b, "  Time: %.1fs / %.1fs (%.0f%%)\n", usage.ElapsedSeconds, *budget.MaxTimeSeconds, check.TimePercent)
		}
		if budget.MaxCostUSD != nil {
			fmt.Fprintf(&b, "  Cost: $%.4f / $%.4f (%.0f%%)\n", usage.EstimatedCostUSD(m.rates), *budget.MaxCostUSD, check.CostPercent)
		}
	}

	return b.String()
}

func (m *Meter) publishLocked() {
	usage := m.usageLocked()
	m.gaugeTokens.Set(float64(usage.TotalTokens()))
	m.gaugeCalls.Set(float64(usage.APICalls))
	m.gaugeElapsed.Set(usage.ElapsedSeconds)
	m.gaugeCost.Set(usage.EstimatedCostUSD(m.rates))
}
