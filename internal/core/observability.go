package core

import (
	"cellarcore/pkg/domain"
	"context"
	"time"
)

// Logger is the structured logging contract used by Service. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies timestamps to the service.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder observes service operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// TraceSpan is ended once per operation with its error, if any.
type TraceSpan interface {
	End(err error)
}

// Tracer starts a span for each service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopTracer struct{}

type noopSpan struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

func (noopSpan) End(error) {}

// AuditStatus records whether an audited operation succeeded.
type AuditStatus string

// Audit statuses.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one service operation for the audit log.
type AuditEntry struct {
	Operation string
	Entity    domain.EntityType
	Action    domain.Action
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries synchronously after each operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type operationMetadata struct {
	entity domain.EntityType
	action domain.Action
}

// Audited operations. Operations missing from this table are not audited.
var operationCatalog = map[string]operationMetadata{
	opOnboardVessel:    {entity: domain.EntityVessel, action: domain.ActionCreate},
	opSetVesselStatus:  {entity: domain.EntityVessel, action: domain.ActionUpdate},
	opCreateRecipe:     {entity: domain.EntityRecipe, action: domain.ActionCreate},
	opPlanBatch:        {entity: domain.EntityBatch, action: domain.ActionCreate},
	opPlanAllocation:   {entity: domain.EntityAllocation, action: domain.ActionCreate},
	opActivate:         {entity: domain.EntityAllocation, action: domain.ActionUpdate},
	opCancelAllocation: {entity: domain.EntityAllocation, action: domain.ActionUpdate},
	opTransition:       {entity: domain.EntityBatch, action: domain.ActionUpdate},
}

// Operation names reported to loggers, metrics, tracers and the audit log.
const (
	opOnboardVessel    = "onboard_vessel"
	opSetVesselStatus  = "set_vessel_status"
	opCreateRecipe     = "create_recipe"
	opPlanBatch        = "plan_batch"
	opPlanAllocation   = "plan_allocation"
	opActivate         = "activate_allocation"
	opCancelAllocation = "cancel_allocation"
	opTransition       = "transition_batch"
)
