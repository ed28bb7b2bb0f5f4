package model

import (
	"fmt"

	"github.com/spf13/viper"
)

// fileSchema is the YAML shape of a model file. Declarative entity
// definitions are translated into Entity values and registered on top of the
// built-in primitives.
type fileSchema struct {
	Entities []entityDef `mapstructure:"entities"`
}

type entityDef struct {
	Name         string     `mapstructure:"name"`
	Fields       []fieldDef `mapstructure:"fields"`
	Associations []assocDef `mapstructure:"associations"`
	Rules        rulesDef   `mapstructure:"rules"`
}

type fieldDef struct {
	Name          string     `mapstructure:"name"`
	Type          string     `mapstructure:"type"`
	Nullable      bool       `mapstructure:"nullable"`
	Unique        bool       `mapstructure:"unique"`
	AutoCreatedAt bool       `mapstructure:"auto_created_at"`
	AutoUpdatedAt bool       `mapstructure:"auto_updated_at"`
	Upload        *uploadDef `mapstructure:"upload"`
}

type assocDef struct {
	Name      string     `mapstructure:"name"`
	Target    string     `mapstructure:"target"`
	Many      bool       `mapstructure:"many"`
	LocalKey  string     `mapstructure:"local_key"`
	RemoteKey string     `mapstructure:"remote_key"`
	Upload    *uploadDef `mapstructure:"upload"`
}

type uploadDef struct {
	Accept []string `mapstructure:"accept"`
	MinMB  float64  `mapstructure:"min_mb"`
	MaxMB  float64  `mapstructure:"max_mb"`
}

type rulesDef struct {
	Create []string `mapstructure:"create"`
	Read   []string `mapstructure:"read"`
	Update []string `mapstructure:"update"`
	Delete []string `mapstructure:"delete"`
}

var scalarTypes = map[string]ScalarType{
	"ID":           ID,
	"String":       String,
	"Int":          Int,
	"Float":        Float,
	"Boolean":      Boolean,
	"DateTime":     DateTime,
	"EmailAddress": Email,
	"Email":        Email,
	"Password":     Password,
}

// Load reads a YAML model file and returns a frozen registry holding the
// built-in File and User primitives plus every declared entity.
func Load(path string) (*Registry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading model file %s: %w", path, err)
	}

	var schema fileSchema
	if err := v.UnmarshalExact(&schema); err != nil {
		return nil, fmt.Errorf("decoding model file %s: %w", path, err)
	}

	r := NewRegistry()
	if err := registerPrimitives(r); err != nil {
		return nil, err
	}
	for _, def := range schema.Entities {
		entity, err := def.entity()
		if err != nil {
			return nil, fmt.Errorf("model file %s: %w", path, err)
		}
		if err := r.Register(entity); err != nil {
			return nil, fmt.Errorf("model file %s: %w", path, err)
		}
	}
	if err := r.Freeze(); err != nil {
		return nil, fmt.Errorf("model file %s: %w", path, err)
	}
	return r, nil
}

func (d entityDef) entity() (*Entity, error) {
	entity := &Entity{
		Name: d.Name,
		Rules: RuleSet{
			Create: d.Rules.Create,
			Read:   d.Rules.Read,
			Update: d.Rules.Update,
			Delete: d.Rules.Delete,
		},
	}
	for _, f := range d.Fields {
		scalar, ok := scalarTypes[f.Type]
		if !ok {
			return nil, fmt.Errorf("entity %s: field %s has unknown type %q", d.Name, f.Name, f.Type)
		}
		entity.Fields = append(entity.Fields, Field{
			Name:          f.Name,
			Type:          scalar,
			Nullable:      f.Nullable,
			Unique:        f.Unique,
			AutoCreatedAt: f.AutoCreatedAt,
			AutoUpdatedAt: f.AutoUpdatedAt,
			Upload:        f.Upload.rule(),
		})
	}
	for _, a := range d.Associations {
		entity.Associations = append(entity.Associations, Association{
			Name:      a.Name,
			Target:    a.Target,
			Many:      a.Many,
			LocalKey:  a.LocalKey,
			RemoteKey: a.RemoteKey,
			Upload:    a.Upload.rule(),
		})
	}
	return entity, nil
}

func (d *uploadDef) rule() *UploadRule {
	if d == nil {
		return nil
	}
	return &UploadRule{Accept: d.Accept, MinMB: d.MinMB, MaxMB: d.MaxMB}
}
