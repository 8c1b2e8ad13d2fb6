package api

import (
	"flowline/internal/alerts"
	"flowline/internal/executor"
	"flowline/internal/runstore"
)

// FromRun converts a stored run into its wire form.
func FromRun(run *runstore.Run) RunSummary {
	if run == nil {
		return RunSummary{}
	}
	return RunSummary{
		ID:            run.ID,
		Pipeline:      run.Pipeline,
		Tenant:        run.Tenant,
		Status:        string(run.Status),
		TriggerSource: run.TriggerSource,
		TriggerActor:  run.TriggerActor,
		CreatedAt:     run.CreatedAt,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
		ErrorType:     string(run.ErrorType),
		ErrorMessage:  run.ErrorMessage,
	}
}

// FromRuns converts a run list.
func FromRuns(runs []*runstore.Run) []RunSummary {
	out := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromRun(run))
	}
	return out
}

// FromStep converts a stored step record.
func FromStep(st *runstore.StepRun) StepView {
	if st == nil {
		return StepView{}
	}
	return StepView{
		Name:         st.Name,
		Kind:         st.Kind,
		Level:        st.Level,
		Status:       string(st.Status),
		StartedAt:    st.StartedAt,
		FinishedAt:   st.FinishedAt,
		ErrorType:    string(st.ErrorType),
		ErrorMessage: st.ErrorMessage,
		RetryCount:   st.RetryCount,
	}
}

// FromTransition converts a recorded transition.
func FromTransition(t runstore.Transition) TransitionView {
	return TransitionView{
		Seq:          t.Seq,
		FromState:    t.FromState,
		ToState:      t.ToState,
		OccurredAt:   t.OccurredAt,
		Reason:       t.Reason,
		ErrorType:    string(t.ErrorType),
		ErrorMessage: t.ErrorMessage,
		RetryCount:   t.RetryCount,
		DurationMS:   t.DurationMS,
		Metadata:     t.Metadata,
	}
}

// FromRunDetail converts a manager run detail.
func FromRunDetail(detail *executor.RunDetail) RunDetail {
	if detail == nil {
		return RunDetail{}
	}
	out := RunDetail{Run: FromRun(detail.Run)}
	for _, st := range detail.Steps {
		out.Steps = append(out.Steps, FromStep(st))
	}
	for _, t := range detail.Transitions {
		out.Transitions = append(out.Transitions, FromTransition(t))
	}
	return out
}

// FromAlert converts an alert definition.
func FromAlert(spec *alerts.AlertSpec) AlertView {
	if spec == nil {
		return AlertView{}
	}
	return AlertView{
		ID:       spec.ID,
		Name:     spec.Name,
		Enabled:  spec.IsEnabled(),
		Cron:     spec.Schedule.Cron,
		Timezone: spec.Schedule.Timezone,
		Severity: spec.Notification.Severity,
		Channels: spec.ChannelNames(),
		Cooldown: spec.Cooldown.WindowMinutes,
	}
}

// FromEvalResult converts one alert evaluation.
func FromEvalResult(result *alerts.EvalResult) EvalView {
	if result == nil {
		return EvalView{}
	}
	view := EvalView{AlertID: result.AlertID, DryRun: result.DryRun}
	for _, outcome := range result.Tenants {
		view.Tenants = append(view.Tenants, TenantOutcomeView{
			Tenant:    outcome.Tenant,
			Matched:   outcome.Matched,
			Outcome:   string(outcome.Outcome),
			Message:   outcome.Message,
			Delivered: outcome.Delivered,
			Failed:    outcome.Failed,
			Error:     outcome.Err,
		})
	}
	return view
}
