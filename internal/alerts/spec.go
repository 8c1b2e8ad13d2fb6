package alerts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"flowline/internal/faults"
)

// AlertSpec is one declarative alert definition loaded from YAML.
type AlertSpec struct {
	ID           string       `yaml:"id"`
	Name         string       `yaml:"name"`
	Enabled      *bool        `yaml:"enabled"`
	Schedule     Schedule     `yaml:"schedule"`
	Source       Source       `yaml:"source"`
	Conditions   []Condition  `yaml:"conditions"`
	Recipients   Recipients   `yaml:"recipients"`
	Notification Notification `yaml:"notification"`
	Cooldown     Cooldown     `yaml:"cooldown"`
}

// Schedule declares when the alert is evaluated automatically.
type Schedule struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
}

// Source declares the warehouse query feeding the alert.
type Source struct {
	Query  string `yaml:"query"`
	Params []any  `yaml:"params"`
}

// Condition is one predicate over a result row. All conditions of an alert
// must hold for the alert to fire.
type Condition struct {
	Field    string `yaml:"field"`
	Operator string `yaml:"operator"`
	Value    any    `yaml:"value"`
	Unit     string `yaml:"unit"`
}

// Recipients declares who is notified: the owning team of the tenant's
// pipelines, or an explicit list.
type Recipients struct {
	Type   string   `yaml:"type"`
	Emails []string `yaml:"emails"`
}

const (
	RecipientsOwners = "owners"
	RecipientsCustom = "custom"
)

// Notification declares how a firing alert is delivered.
type Notification struct {
	Channels []string `yaml:"channels"`
	Severity string   `yaml:"severity"`
	Template string   `yaml:"template"`
}

// Cooldown suppresses repeat deliveries inside a window after a fire.
type Cooldown struct {
	Enabled       bool `yaml:"enabled"`
	WindowMinutes int  `yaml:"window_minutes"`
}

// IsEnabled reports whether the alert participates in evaluation. Alerts are
// enabled unless explicitly turned off.
func (a *AlertSpec) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// Window returns the cooldown duration, zero when cooldown is off.
func (a *AlertSpec) Window() time.Duration {
	if !a.Cooldown.Enabled {
		return 0
	}
	return time.Duration(a.Cooldown.WindowMinutes) * time.Minute
}

// LoadFile parses and validates one alert definition.
func LoadFile(path string, defaultTimezone string) (*AlertSpec, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open alert spec: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	var spec AlertSpec
	if err := decoder.Decode(&spec); err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "alerts", "load", filepath.Base(path), err)
	}
	if err := spec.Validate(defaultTimezone); err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "alerts", "load", filepath.Base(path), err)
	}
	return &spec, nil
}

// LoadDir loads every *.yaml / *.yml alert in a directory except the channel
// declarations file, keyed by alert ID.
func LoadDir(dir, defaultTimezone string) (map[string]*AlertSpec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*AlertSpec{}, nil
		}
		return nil, fmt.Errorf("read alert dir: %w", err)
	}

	specs := make(map[string]*AlertSpec)
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == "channels.yaml" {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		spec, err := LoadFile(filepath.Join(dir, entry.Name()), defaultTimezone)
		if err != nil {
			return nil, err
		}
		if _, exists := specs[spec.ID]; exists {
			return nil, faults.Wrap(faults.ErrValidation, "alerts", "load",
				fmt.Sprintf("duplicate alert id %q", spec.ID), nil)
		}
		specs[spec.ID] = spec
	}
	return specs, nil
}

// Validate rejects any definition that could fail later at evaluation or
// schedule time: unknown operators, uncompilable expressions and templates,
// bad cron expressions, and bad timezones all fail here.
func (a *AlertSpec) Validate(defaultTimezone string) error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("alert id is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("alert %q has no name", a.ID)
	}
	if strings.TrimSpace(a.Source.Query) == "" {
		return fmt.Errorf("alert %q has an empty query", a.ID)
	}
	if len(a.Conditions) == 0 {
		return fmt.Errorf("alert %q has no conditions", a.ID)
	}
	for i, condition := range a.Conditions {
		if _, err := compileCondition(condition); err != nil {
			return fmt.Errorf("alert %q condition %d: %w", a.ID, i+1, err)
		}
	}

	switch a.Recipients.Type {
	case "", RecipientsOwners:
	case RecipientsCustom:
		if len(a.Recipients.Emails) == 0 {
			return fmt.Errorf("alert %q has custom recipients but no emails", a.ID)
		}
	default:
		return fmt.Errorf("alert %q has unknown recipients type %q", a.ID, a.Recipients.Type)
	}

	if a.Cooldown.Enabled && a.Cooldown.WindowMinutes <= 0 {
		return fmt.Errorf("alert %q enables cooldown without a positive window", a.ID)
	}

	timezone := a.Schedule.Timezone
	if timezone == "" {
		timezone = defaultTimezone
	}
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return fmt.Errorf("alert %q: unknown timezone %q", a.ID, timezone)
		}
	}
	if a.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(a.Schedule.Cron); err != nil {
			return fmt.Errorf("alert %q: bad cron expression %q: %w", a.ID, a.Schedule.Cron, err)
		}
	}

	if a.Notification.Template != "" {
		if _, err := template.New(a.ID).Parse(a.Notification.Template); err != nil {
			return fmt.Errorf("alert %q: bad message template: %w", a.ID, err)
		}
	}
	return nil
}

// ChannelNames returns the delivery channels, defaulting to email.
func (a *AlertSpec) ChannelNames() []string {
	if len(a.Notification.Channels) == 0 {
		return []string{"email"}
	}
	return a.Notification.Channels
}
