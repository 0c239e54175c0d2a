// internal/audit/audit.go
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Check is a named hypothesis about the data, verified through metrics.
type Check struct {
	Name       string
	Hypothesis string
	Metrics    []Metric
}

// Metric defines a measurable property of the stored data
type Metric struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Holds reports whether value satisfies the threshold.
func (t Threshold) Holds(value float64) bool {
	switch t.Operator {
	case ">":
		return value > t.Value
	case "<":
		return value < t.Value
	case ">=":
		return value >= t.Value
	case "<=":
		return value <= t.Value
	case "==":
		return value == t.Value
	default:
		return false
	}
}

type Violation struct {
	Check     string    `json:"check"`
	Metric    string    `json:"metric"`
	Expected  float64   `json:"expected"`
	Actual    float64   `json:"actual"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Report is the outcome of one audit run or observation window.
type Report struct {
	StartTime    time.Time              `json:"start_time"`
	EndTime      time.Time              `json:"end_time"`
	Duration     time.Duration          `json:"duration"`
	Held         bool                   `json:"held"`
	Violations   []Violation            `json:"violations"`
	Observations map[string][]DataPoint `json:"observations,omitempty"`
	// MTTR is the time from the first violation to the first clean sample
	// after it, when observing.
	MTTR *time.Duration `json:"mttr,omitempty"`
}

// Auditor evaluates registered checks against the live database.
type Auditor struct {
	tracer trace.Tracer
	db     *sql.DB
	log    *slog.Logger
	checks []Check
	mu     sync.Mutex
}

func NewAuditor(db *sql.DB, log *slog.Logger) *Auditor {
	if log == nil {
		log = slog.Default()
	}
	return &Auditor{
		tracer: otel.Tracer("bookstore/audit"),
		db:     db,
		log:    log.With("component", "audit"),
	}
}

// RegisterCheck adds a check to the audit.
func (a *Auditor) RegisterCheck(c Check) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checks = append(a.checks, c)
}

// Checks returns the registered checks.
func (a *Auditor) Checks() []Check {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Check(nil), a.checks...)
}

// Run samples every metric once.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	ctx, span := a.tracer.Start(ctx, "audit.run")
	defer span.End()

	report := &Report{StartTime: time.Now()}
	for _, check := range a.Checks() {
		span.AddEvent("checking", trace.WithAttributes(attribute.String("check.name", check.Name)))
		for _, metric := range check.Metrics {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if v, bad := a.sample(ctx, check.Name, metric); bad {
				report.Violations = append(report.Violations, v)
			}
		}
	}

	a.finish(report)
	span.SetAttributes(
		attribute.Bool("audit.held", report.Held),
		attribute.Int("violations", len(report.Violations)),
	)
	return report, nil
}

// Observe samples every metric each interval until window elapses or ctx is
// done, recording the series and how long violations took to clear.
func (a *Auditor) Observe(ctx context.Context, window, interval time.Duration) (*Report, error) {
	ctx, span := a.tracer.Start(ctx, "audit.observe",
		trace.WithAttributes(attribute.String("audit.window", window.String())),
	)
	defer span.End()

	report := &Report{
		StartTime:    time.Now(),
		Observations: make(map[string][]DataPoint),
	}

	observationCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var violatedAt time.Time
	recovered := false
	for {
		select {
		case <-observationCtx.Done():
			a.finish(report)
			span.SetAttributes(
				attribute.Bool("audit.held", report.Held),
				attribute.Int("violations", len(report.Violations)),
			)
			if err := ctx.Err(); err != nil {
				return report, err
			}
			return report, nil
		case <-ticker.C:
			clean := true
			for _, check := range a.Checks() {
				for _, metric := range check.Metrics {
					value, err := metric.Query(observationCtx)
					if err != nil {
						if observationCtx.Err() != nil {
							break
						}
						clean = false
						report.Violations = append(report.Violations, a.violation(check.Name, metric, -1, err))
						continue
					}

					key := check.Name + "/" + metric.Name
					report.Observations[key] = append(report.Observations[key], DataPoint{Timestamp: time.Now(), Value: value})
					if !metric.Threshold.Holds(value) {
						clean = false
						report.Violations = append(report.Violations, a.violation(check.Name, metric, value, nil))
					}
				}
			}

			switch {
			case !clean && violatedAt.IsZero():
				violatedAt = time.Now()
			case clean && !violatedAt.IsZero() && !recovered:
				mttr := time.Since(violatedAt)
				report.MTTR = &mttr
				recovered = true
			}
		}
	}
}

func (a *Auditor) sample(ctx context.Context, check string, metric Metric) (Violation, bool) {
	value, err := metric.Query(ctx)
	if err != nil {
		return a.violation(check, metric, -1, err), true
	}
	if !metric.Threshold.Holds(value) {
		return a.violation(check, metric, value, nil), true
	}
	return Violation{}, false
}

func (a *Auditor) violation(check string, metric Metric, actual float64, err error) Violation {
	v := Violation{
		Check:     check,
		Metric:    metric.Name,
		Expected:  metric.Threshold.Value,
		Actual:    actual,
		Timestamp: time.Now(),
	}
	if err != nil {
		v.Error = err.Error()
		a.log.Error("audit query failed", "check", check, "metric", metric.Name, "error", err)
	} else {
		a.log.Warn("invariant violated", "check", check, "metric", metric.Name,
			"expected", fmt.Sprintf("%s %g", metric.Threshold.Operator, metric.Threshold.Value), "actual", actual)
	}
	return v
}

func (a *Auditor) finish(r *Report) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.Held = len(r.Violations) == 0
}
