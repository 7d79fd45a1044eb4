package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-reconcile/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDMatch         = "reconcile.match"
	JobIDConsolidate   = "reconcile.consolidate"
	JobIDAgeExceptions = "reconcile.exception.age"
)

const (
	ParamTenantID = "tenant_id"
	ParamSince    = "since"
)

// Service is the slice of the reconciliation engine a scheduled run needs.
type Service interface {
	RunMatchers(ctx context.Context, tenantID string) (core.MatchResult, error)
	AgeExceptions(ctx context.Context, tenantID string) (core.MatchResult, error)
	Consolidate(ctx context.Context, in core.ConsolidateInput) (core.ConsolidateResult, error)
}

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// NewMatchMessage builds the execution message for a matcher sweep.
func NewMatchMessage(tenantID string) *job.ExecutionMessage {
	return newTenantMessage(JobIDMatch, tenantID, time.Time{})
}

// NewConsolidateMessage builds the execution message for a consolidation run.
// A non-zero since scopes the run to identities touched after that instant.
func NewConsolidateMessage(tenantID string, since time.Time) *job.ExecutionMessage {
	return newTenantMessage(JobIDConsolidate, tenantID, since)
}

// NewAgeExceptionsMessage builds the execution message for the aging pass
// that turns stale in-transit payouts and unmatched ops records into
// exceptions.
func NewAgeExceptionsMessage(tenantID string) *job.ExecutionMessage {
	return newTenantMessage(JobIDAgeExceptions, tenantID, time.Time{})
}

func newTenantMessage(jobID string, tenantID string, since time.Time) *job.ExecutionMessage {
	tenantID = strings.TrimSpace(tenantID)
	parameters := map[string]any{ParamTenantID: tenantID}
	key := jobID + "::" + tenantID
	if !since.IsZero() {
		stamp := since.UTC().Format(time.RFC3339)
		parameters[ParamSince] = stamp
		key += "::" + stamp
	}
	return &job.ExecutionMessage{
		JobID:          jobID,
		Parameters:     parameters,
		IdempotencyKey: key,
	}
}

// Runner dispatches dequeued execution messages onto the reconciliation
// service. Hosts own the queue and the schedule; Runner owns the mapping
// from job id to service operation.
type Runner struct {
	service Service
}

func NewRunner(service Service) *Runner {
	return &Runner{service: service}
}

func (r *Runner) Handle(ctx context.Context, msg *job.ExecutionMessage) error {
	if r == nil || r.service == nil {
		return fmt.Errorf("gojob: reconcile service is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	tenantID, err := tenantFromParameters(msg.Parameters)
	if err != nil {
		return err
	}
	switch msg.JobID {
	case JobIDMatch:
		_, err = r.service.RunMatchers(ctx, tenantID)
		return err
	case JobIDConsolidate:
		since, sinceErr := sinceFromParameters(msg.Parameters)
		if sinceErr != nil {
			return sinceErr
		}
		_, err = r.service.Consolidate(ctx, core.ConsolidateInput{TenantID: tenantID, Since: since})
		return err
	case JobIDAgeExceptions:
		_, err = r.service.AgeExceptions(ctx, tenantID)
		return err
	default:
		return fmt.Errorf("gojob: unknown job id %q", msg.JobID)
	}
}

func tenantFromParameters(parameters map[string]any) (string, error) {
	raw, ok := parameters[ParamTenantID]
	if !ok {
		return "", fmt.Errorf("gojob: %s parameter is required", ParamTenantID)
	}
	tenantID, ok := raw.(string)
	if !ok || strings.TrimSpace(tenantID) == "" {
		return "", fmt.Errorf("gojob: %s parameter must be a non-empty string", ParamTenantID)
	}
	return strings.TrimSpace(tenantID), nil
}

func sinceFromParameters(parameters map[string]any) (time.Time, error) {
	raw, ok := parameters[ParamSince]
	if !ok {
		return time.Time{}, nil
	}
	stamp, ok := raw.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("gojob: %s parameter must be an RFC3339 string", ParamSince)
	}
	since, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("gojob: parse %s parameter: %w", ParamSince, err)
	}
	return since, nil
}

// MetricsHook bridges go-job worker lifecycle events into the engine's
// metrics contract.
type MetricsHook struct {
	recorder core.MetricsRecorder
}

func NewMetricsHook(recorder core.MetricsRecorder) *MetricsHook {
	if recorder == nil {
		recorder = core.NopMetricsRecorder{}
	}
	return &MetricsHook{recorder: recorder}
}

func (h *MetricsHook) OnStart(ctx context.Context, event worker.Event) {
	if h == nil || h.recorder == nil {
		return
	}
	h.recorder.IncCounter(ctx, "reconcile_job_starts_total", 1, eventTags(event, ""))
}

func (h *MetricsHook) OnSuccess(ctx context.Context, event worker.Event) {
	if h == nil || h.recorder == nil {
		return
	}
	h.recorder.IncCounter(ctx, "reconcile_job_runs_total", 1, eventTags(event, "ok"))
	h.recorder.ObserveHistogram(ctx, "reconcile_job_duration_seconds", event.Duration.Seconds(), eventTags(event, ""))
}

func (h *MetricsHook) OnFailure(ctx context.Context, event worker.Event) {
	if h == nil || h.recorder == nil {
		return
	}
	h.recorder.IncCounter(ctx, "reconcile_job_runs_total", 1, eventTags(event, "failed"))
}

func (h *MetricsHook) OnRetry(ctx context.Context, event worker.Event) {
	if h == nil || h.recorder == nil {
		return
	}
	h.recorder.IncCounter(ctx, "reconcile_job_retries_total", 1, eventTags(event, ""))
}

func eventTags(event worker.Event, status string) map[string]string {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	tags := map[string]string{"job_id": ""}
	if message != nil {
		tags["job_id"] = message.JobID
	}
	if status != "" {
		tags["status"] = status
	}
	return tags
}

var _ worker.Hook = (*MetricsHook)(nil)
