// Package naming derives the per-entity operation surface: query, connection,
// and mutation names generated from an entity's singular PascalCase name.
package naming

// Config holds naming customization options
type Config struct {
	// PluralOverrides maps singular -> custom plural
	// Example: {"person": "people", "status": "statuses"}
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`

	// SingularOverrides maps plural -> custom singular
	// Example: {"people": "person", "data": "datum"}
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   make(map[string]string),
		SingularOverrides: make(map[string]string),
	}
}
