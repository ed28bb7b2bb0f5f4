package config

import (
	"fmt"
	"strings"
)

// ValidationError describes a configuration problem that prevents startup.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning describes a suspicious but non-fatal setting.
type ValidationWarning struct {
	Field   string
	Message string
}

func (w ValidationWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Field, w.Message)
}

// ValidationResult aggregates the outcome of validating a Config.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors reports whether validation produced any fatal errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error formats all errors as a single message.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return "invalid configuration:\n  " + strings.Join(msgs, "\n  ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message})
}

// Validate checks the configuration for problems that would prevent the
// application from starting or behaving sensibly.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Model.validate(result)
	c.Database.validate(result)
	c.Observability.validate(result)

	return result
}

func (m *ModelConfig) validate(result *ValidationResult) {
	if m.Path == "" {
		result.addError("model.path", "schema model path is required",
			"set model.path or MODELQL_MODEL_PATH")
	}
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if !d.Configured() {
		result.addError("database", "no database connection configured",
			"set database.dsn or database.host")
		return
	}

	if d.ConnectionString == "" {
		if d.User == "" {
			result.addError("database.user", "database user is required", "")
		}
		if d.Database == "" {
			result.addError("database.database", "database name is required", "")
		}
		if d.Port <= 0 || d.Port > 65535 {
			result.addError("database.port",
				fmt.Sprintf("invalid port %d", d.Port), "must be 1-65535")
		}
	}

	if d.Pool.MaxOpen < 0 {
		result.addError("database.pool.max_open", "must be >= 0", "0 means unlimited")
	}
	if d.Pool.MaxIdle < 0 {
		result.addError("database.pool.max_idle", "must be >= 0", "")
	}
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.addWarning("database.pool.max_idle",
			"max_idle exceeds max_open; idle connections above max_open are never kept")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio",
			fmt.Sprintf("invalid ratio %g", o.TraceSampleRatio), "must be between 0.0 and 1.0")
	}

	switch o.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		result.addError("observability.logging.level",
			fmt.Sprintf("unknown log level %q", o.Logging.Level),
			"use debug, info, warn, or error")
	}

	switch o.Logging.Format {
	case "json", "text":
	default:
		result.addError("observability.logging.format",
			fmt.Sprintf("unknown log format %q", o.Logging.Format),
			"use json or text")
	}

	if o.TracingEnabled {
		traces := o.GetTracesConfig()
		if traces.Endpoint == "" {
			result.addError("observability.otlp.endpoint",
				"endpoint is required when tracing is enabled", "")
		}
		switch traces.Protocol {
		case "grpc", "http/protobuf", "http":
		default:
			result.addError("observability.otlp.protocol",
				fmt.Sprintf("unknown protocol %q", traces.Protocol),
				"use grpc or http/protobuf")
		}
	}

	if o.Logging.ExportsEnabled {
		logs := o.GetLogsConfig()
		if logs.Endpoint == "" {
			result.addError("observability.otlp.endpoint",
				"endpoint is required when log export is enabled", "")
		}
	}
}
