package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
)

const outcomeOK = "ok"

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Outcomes  map[string]int64 `json:"outcomes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

// remoteReport — нагрузка, которую сценарии создали на удалённое хранилище.
type remoteReport struct {
	Fetches       int64 `json:"fetches"`
	Lists         int64 `json:"lists"`
	Writes        int64 `json:"writes"`
	OutboxPending int   `json:"outbox_pending"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
	Remote            remoteReport            `json:"remote"`
}

type sample struct {
	latency time.Duration
	outcome string
}

// recorder копит замеры по методам. Безопасен для конкурентного использования.
type recorder struct {
	mu      sync.Mutex
	samples map[string][]sample
}

func newRecorder() *recorder {
	return &recorder{samples: make(map[string][]sample)}
}

func (r *recorder) observe(method string, latency time.Duration, err error) {
	r.mu.Lock()
	r.samples[method] = append(r.samples[method], sample{latency: latency, outcome: outcome(err)})
	r.mu.Unlock()
}

// method возвращает сводку по одному методу; false, если вызовов не было.
func (r *recorder) method(name string) (methodReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	samples, ok := r.samples[name]
	if !ok {
		return methodReport{}, false
	}
	return summarize(samples), true
}

func (r *recorder) report(startedAt time.Time, elapsed time.Duration) report {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Methods:         make(map[string]methodReport, len(r.samples)),
	}
	for name, samples := range r.samples {
		result.Methods[name] = summarize(samples)
	}

	if scenario, ok := result.Methods[scenarioMethod]; ok {
		result.TotalScenarios = scenario.Calls
		result.SuccessScenarios = scenario.Success
		result.FailedScenarios = scenario.Failed
		result.ErrorRate = scenario.ErrorRate
		result.ScenarioLatencyMs = scenario.LatencyMs
	}
	if elapsed > 0 {
		result.RPS = float64(result.TotalScenarios) / elapsed.Seconds()
	}
	return result
}

func summarize(samples []sample) methodReport {
	m := methodReport{
		Calls:    int64(len(samples)),
		Outcomes: make(map[string]int64),
	}
	ms := make([]float64, 0, len(samples))
	for _, s := range samples {
		m.Outcomes[s.outcome]++
		if s.outcome == outcomeOK {
			m.Success++
		} else {
			m.Failed++
		}
		ms = append(ms, float64(s.latency.Microseconds())/1000)
	}
	if m.Calls > 0 {
		m.ErrorRate = float64(m.Failed) / float64(m.Calls)
	}
	m.LatencyMs = summarizeLatency(ms)
	return m
}

func summarizeLatency(ms []float64) latencySummary {
	if len(ms) == 0 {
		return latencySummary{}
	}
	sort.Float64s(ms)

	var sum float64
	for _, v := range ms {
		sum += v
	}
	return latencySummary{
		Min: ms[0],
		Max: ms[len(ms)-1],
		Avg: sum / float64(len(ms)),
		P50: nearestRank(ms, 50),
		P95: nearestRank(ms, 95),
		P99: nearestRank(ms, 99),
	}
}

// nearestRank считает перцентиль p по отсортированной выборке методом ближайшего ранга.
func nearestRank(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func printReport(out io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintf(out, "Load test summary\nmode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode, cfg.target(), result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate)
	_, _ = fmt.Fprintf(out, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(out, "remote: fetches=%d lists=%d writes=%d outbox_pending=%d dedup=%t\n\n",
		result.Remote.Fetches, result.Remote.Lists, result.Remote.Writes, result.Remote.OutboxPending, cfg.dedup)

	names := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name != scenarioMethod {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	names = append(names, scenarioMethod)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(tw, "method\tcalls\tfailed\terr%\tp50ms\tp95ms\tp99ms\tmaxms\t")
	for _, name := range names {
		m, ok := result.Methods[name]
		if !ok {
			continue
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			name, m.Calls, m.Failed, m.ErrorRate*100, m.LatencyMs.P50, m.LatencyMs.P95, m.LatencyMs.P99, m.LatencyMs.Max)
	}
	_ = tw.Flush()
}

// writeJSONReport пишет отчёт в файл внутри текущего каталога.
func writeJSONReport(path string, result report) error {
	clean := filepath.Clean(path)
	switch {
	case clean == "." || clean == string(filepath.Separator):
		return errors.New("output path must point to a file")
	case clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)):
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(clean, append(data, '\n'), 0o600)
}
