package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized structured logging key for pipeline run identifiers.
	FieldRunID = "run_id"
	// FieldStep is the standardized structured logging key for step names.
	FieldStep = "step"
	// FieldPipeline is the standardized structured logging key for pipeline names.
	FieldPipeline = "pipeline"
	// FieldTenant is the standardized structured logging key for tenant identifiers.
	FieldTenant = "tenant"
	// FieldAlert is the standardized structured logging key for alert identifiers.
	FieldAlert = "alert"
	// FieldChannel is the standardized structured logging key for notification channels.
	FieldChannel = "channel"
	// FieldEventType is the standardized structured logging key for machine-readable event names.
	FieldEventType = "event_type"
	// FieldErrorHint suggests an operator action alongside an error record.
	FieldErrorHint = "error_hint"
)

type runIDKey struct{}
type stepKey struct{}
type tenantKey struct{}

// WithRun attaches a run identifier to the context for downstream log enrichment.
func WithRun(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// WithStep attaches a step name to the context for downstream log enrichment.
func WithStep(ctx context.Context, step string) context.Context {
	return context.WithValue(ctx, stepKey{}, step)
}

// WithTenant attaches a tenant identifier to the context for downstream log enrichment.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenant)
}

// RunFromContext returns the run identifier previously stored with WithRun.
func RunFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(runIDKey{}).(string)
	return value, ok && value != ""
}

// StepFromContext returns the step name previously stored with WithStep.
func StepFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(stepKey{}).(string)
	return value, ok && value != ""
}

// TenantFromContext returns the tenant previously stored with WithTenant.
func TenantFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(tenantKey{}).(string)
	return value, ok && value != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if runID, ok := RunFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, runID))
	}
	if step, ok := StepFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStep, step))
	}
	if tenant, ok := TenantFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTenant, tenant))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
