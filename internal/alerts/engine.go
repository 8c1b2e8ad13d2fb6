package alerts

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"text/template"
	"time"

	"flowline/internal/config"
	"flowline/internal/faults"
	"flowline/internal/logging"
	"flowline/internal/notify"
	"flowline/internal/runstore"
)

// OwnerDirectory resolves the notification recipients that own a tenant's
// pipelines.
type OwnerDirectory interface {
	Owners(tenant string) []string
}

// OwnerMap is the trivial OwnerDirectory backed by a static map.
type OwnerMap map[string][]string

func (m OwnerMap) Owners(tenant string) []string { return m[tenant] }

// alert is a spec with its load-time compiled parts.
type alert struct {
	spec       *AlertSpec
	conditions []*compiled
	tmpl       *template.Template
}

// TenantOutcome is the evaluation result for one tenant of one alert.
type TenantOutcome struct {
	Tenant    string
	Matched   bool
	Outcome   runstore.AlertOutcome
	Message   string
	Delivered []string
	Failed    []string
	Err       string
}

// EvalResult is the outcome of evaluating one alert across tenants.
type EvalResult struct {
	AlertID string
	DryRun  bool
	Tenants []TenantOutcome
}

// Engine evaluates declarative alerts against the warehouse and delivers
// notifications through the registry. One engine instance serves both the
// scheduler and on-demand evaluation.
type Engine struct {
	cfg       *config.Config
	store     *runstore.Store
	registry  *notify.Registry
	warehouse *sql.DB
	owners    OwnerDirectory
	alerts    map[string]*alert
	logger    *slog.Logger
}

func NewEngine(
	cfg *config.Config,
	store *runstore.Store,
	registry *notify.Registry,
	warehouse *sql.DB,
	owners OwnerDirectory,
	specs map[string]*AlertSpec,
	logger *slog.Logger,
) (*Engine, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if owners == nil {
		owners = OwnerMap{}
	}

	compiledAlerts := make(map[string]*alert, len(specs))
	for id, spec := range specs {
		entry := &alert{spec: spec}
		for i, condition := range spec.Conditions {
			c, err := compileCondition(condition)
			if err != nil {
				return nil, faults.Wrap(faults.ErrValidation, "alerts", "compile",
					fmt.Sprintf("alert %q condition %d", id, i+1), err)
			}
			entry.conditions = append(entry.conditions, c)
		}
		if spec.Notification.Template != "" {
			tmpl, err := template.New(id).Parse(spec.Notification.Template)
			if err != nil {
				return nil, faults.Wrap(faults.ErrValidation, "alerts", "compile",
					fmt.Sprintf("alert %q template", id), err)
			}
			entry.tmpl = tmpl
		}
		compiledAlerts[id] = entry
	}

	return &Engine{
		cfg:       cfg,
		store:     store,
		registry:  registry,
		warehouse: warehouse,
		owners:    owners,
		alerts:    compiledAlerts,
		logger:    logger.With(logging.String(logging.FieldComponent, "alerts")),
	}, nil
}

// Alerts returns the loaded definitions sorted by ID.
func (e *Engine) Alerts() []*AlertSpec {
	specs := make([]*AlertSpec, 0, len(e.alerts))
	for _, entry := range e.alerts {
		specs = append(specs, entry.spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs
}

// EvaluateAll evaluates every enabled alert. A failing alert is reported in
// its result and never aborts the sweep.
func (e *Engine) EvaluateAll(ctx context.Context) []EvalResult {
	results := make([]EvalResult, 0, len(e.alerts))
	for _, spec := range e.Alerts() {
		if !spec.IsEnabled() {
			continue
		}
		result, err := e.EvaluateAlert(ctx, spec.ID, false)
		if err != nil {
			e.logger.Error("alert evaluation failed",
				logging.String(logging.FieldAlert, spec.ID),
				logging.Error(err),
			)
			result = &EvalResult{AlertID: spec.ID, Tenants: []TenantOutcome{{Err: err.Error()}}}
		}
		results = append(results, *result)
	}
	return results
}

// EvaluateAlert evaluates one alert across all tenants in its result set.
// With dryRun the conditions and cooldown are checked but nothing is
// delivered or recorded.
func (e *Engine) EvaluateAlert(ctx context.Context, id string, dryRun bool) (*EvalResult, error) {
	entry, ok := e.alerts[id]
	if !ok {
		return nil, faults.Wrap(faults.ErrValidation, "alerts", "evaluate",
			fmt.Sprintf("unknown alert %q", id), nil)
	}
	if e.warehouse == nil {
		return nil, faults.Wrap(faults.ErrDependency, "alerts", "evaluate",
			"no warehouse configured", nil)
	}

	rowsByTenant, err := e.queryTenantRows(ctx, entry.spec)
	if err != nil {
		return nil, err
	}

	tenants := make([]string, 0, len(rowsByTenant))
	for tenant := range rowsByTenant {
		tenants = append(tenants, tenant)
	}
	sort.Strings(tenants)

	result := &EvalResult{AlertID: id, DryRun: dryRun}
	for _, tenant := range tenants {
		outcome := e.evaluateTenant(ctx, entry, tenant, rowsByTenant[tenant], dryRun)
		result.Tenants = append(result.Tenants, outcome)
	}
	return result, nil
}

// queryTenantRows runs the alert's parameterized query and groups the rows
// by their tenant column. Rows without a tenant column fall into a single
// unscoped group.
func (e *Engine) queryTenantRows(ctx context.Context, spec *AlertSpec) (map[string][]map[string]any, error) {
	rows, err := e.warehouse.QueryContext(ctx, spec.Source.Query, spec.Source.Params...)
	if err != nil {
		return nil, faults.Wrap(faults.ErrDependency, "alerts", "query", spec.ID, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	grouped := make(map[string][]map[string]any)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, column := range columns {
			value := values[i]
			if raw, ok := value.([]byte); ok {
				value = string(raw)
			}
			row[column] = value
		}

		tenant := ""
		if value, ok := row["tenant"]; ok {
			tenant = fmt.Sprintf("%v", value)
		}
		grouped[tenant] = append(grouped[tenant], row)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.ErrDependency, "alerts", "query", spec.ID, err)
	}
	return grouped, nil
}

// evaluateTenant applies the alert to one tenant's rows and settles the
// outcome: fired, suppressed by cooldown, or delivery_failed. Errors are
// confined to the returned outcome so one tenant can never abort another.
func (e *Engine) evaluateTenant(ctx context.Context, entry *alert, tenant string, rows []map[string]any, dryRun bool) TenantOutcome {
	outcome := TenantOutcome{Tenant: tenant}
	logger := e.logger.With(
		logging.String(logging.FieldAlert, entry.spec.ID),
		logging.String(logging.FieldTenant, tenant),
	)

	var matchedRow map[string]any
	for _, row := range rows {
		matched, err := e.rowMatches(entry, row)
		if err != nil {
			outcome.Err = err.Error()
			return outcome
		}
		if matched {
			matchedRow = row
			break
		}
	}
	if matchedRow == nil {
		return outcome
	}
	outcome.Matched = true
	outcome.Message = e.renderMessage(entry, tenant, matchedRow)

	if window := entry.spec.Window(); window > 0 {
		lastFired, err := e.store.LastFired(ctx, entry.spec.ID, tenant)
		if err != nil {
			outcome.Err = err.Error()
			return outcome
		}
		if lastFired != nil && time.Since(*lastFired) < window {
			outcome.Outcome = runstore.AlertSuppressed
			if !dryRun {
				e.recordOutcome(ctx, entry, tenant, outcome)
				logger.Info("alert suppressed by cooldown",
					logging.String(logging.FieldEventType, "alert_suppressed"))
			}
			return outcome
		}
	}

	if dryRun {
		outcome.Outcome = runstore.AlertFired
		return outcome
	}

	payload := notify.Payload{
		Title:      entry.spec.Name,
		Body:       outcome.Message,
		Severity:   entry.spec.Notification.Severity,
		Recipients: e.resolveRecipients(entry.spec, tenant),
		Context: map[string]string{
			"alert":  entry.spec.ID,
			"tenant": tenant,
		},
	}
	report := e.registry.Deliver(ctx, tenant, entry.spec.ChannelNames(), payload)
	outcome.Delivered = report.Delivered
	outcome.Failed = report.FailedChannels()

	if report.OK() {
		outcome.Outcome = runstore.AlertFired
		logger.Info("alert fired",
			logging.String(logging.FieldEventType, "alert_fired"),
			logging.String("severity", entry.spec.Notification.Severity),
		)
	} else {
		outcome.Outcome = runstore.AlertDeliveryFailed
		logger.Error("alert delivery failed",
			logging.String(logging.FieldEventType, "alert_delivery_failed"),
			logging.String("channels", strings.Join(outcome.Failed, ",")),
		)
	}
	e.recordOutcome(ctx, entry, tenant, outcome)
	return outcome
}

func (e *Engine) rowMatches(entry *alert, row map[string]any) (bool, error) {
	for _, condition := range entry.conditions {
		matched, err := condition.eval(row)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) renderMessage(entry *alert, tenant string, row map[string]any) string {
	if entry.tmpl != nil {
		data := make(map[string]any, len(row)+2)
		for key, value := range row {
			data[key] = value
		}
		data["alert"] = entry.spec.Name
		data["tenant"] = tenant

		var b strings.Builder
		if err := entry.tmpl.Execute(&b, data); err == nil {
			return b.String()
		}
	}
	if tenant == "" {
		return fmt.Sprintf("alert %q triggered", entry.spec.Name)
	}
	return fmt.Sprintf("alert %q triggered for tenant %q", entry.spec.Name, tenant)
}

func (e *Engine) resolveRecipients(spec *AlertSpec, tenant string) []string {
	if spec.Recipients.Type == RecipientsCustom {
		return spec.Recipients.Emails
	}
	return e.owners.Owners(tenant)
}

func (e *Engine) recordOutcome(ctx context.Context, entry *alert, tenant string, outcome TenantOutcome) {
	record := &runstore.AlertRecord{
		AlertID:  entry.spec.ID,
		Tenant:   tenant,
		FiredAt:  time.Now().UTC(),
		Outcome:  outcome.Outcome,
		Message:  outcome.Message,
		Severity: entry.spec.Notification.Severity,
	}
	if err := e.store.RecordAlertOutcome(ctx, record); err != nil {
		e.logger.Error("record alert outcome failed",
			logging.String(logging.FieldAlert, entry.spec.ID),
			logging.String(logging.FieldTenant, tenant),
			logging.Error(err),
		)
	}
}

// History returns the recorded outcomes for one alert, newest first.
func (e *Engine) History(ctx context.Context, id string, limit int) ([]runstore.AlertRecord, error) {
	if _, ok := e.alerts[id]; !ok {
		return nil, faults.Wrap(faults.ErrValidation, "alerts", "history",
			fmt.Sprintf("unknown alert %q", id), nil)
	}
	return e.store.AlertHistory(ctx, id, limit)
}
