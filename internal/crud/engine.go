package crud

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"modelql/internal/authz"
	"modelql/internal/model"
	"modelql/internal/naming"
	"modelql/internal/observability"
	"modelql/internal/selection"
	"modelql/internal/store"
	"modelql/internal/validate"
)

// Engine holds one orchestrator per registered entity. Rule compilation
// happens here, once, so authoring defects surface at startup instead of on
// the first denied request.
type Engine struct {
	registry      *model.Registry
	namer         *naming.Namer
	orchestrators map[string]*Orchestrator
	order         []string
}

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	logger  *slog.Logger
	metrics *observability.CRUDMetrics
	tracer  trace.Tracer
	namer   *naming.Namer
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *engineConfig) { cfg.logger = logger }
}

// WithMetrics sets the operation metrics. Nil metrics are a no-op.
func WithMetrics(metrics *observability.CRUDMetrics) Option {
	return func(cfg *engineConfig) { cfg.metrics = metrics }
}

// WithNamer sets the namer used for the generated operation surface.
func WithNamer(namer *naming.Namer) Option {
	return func(cfg *engineConfig) { cfg.namer = namer }
}

// New builds an engine over a frozen registry and a store. Every entity's
// rule set is compiled up front; a malformed rule fails construction.
func New(registry *model.Registry, st store.Store, opts ...Option) (*Engine, error) {
	cfg := engineConfig{
		logger: slog.Default(),
		tracer: otel.Tracer("modelql"),
		namer:  naming.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	resolver := selection.NewResolver(registry)
	engine := &Engine{
		registry:      registry,
		namer:         cfg.namer,
		orchestrators: make(map[string]*Orchestrator),
	}
	for _, entity := range registry.Entities() {
		rules, err := authz.Compile(registry, entity)
		if err != nil {
			return nil, fmt.Errorf("compiling rules for %s: %w", entity.Name, err)
		}
		engine.orchestrators[entity.Name] = &Orchestrator{
			entity:   entity,
			registry: registry,
			store:    st,
			rules:    rules,
			inputs:   validate.NewInputs(entity),
			resolver: resolver,
			logger:   cfg.logger.With(slog.String("entity", entity.Name)),
			tracer:   cfg.tracer,
			metrics:  cfg.metrics,
		}
		engine.order = append(engine.order, entity.Name)
	}
	return engine, nil
}

// Entity returns the orchestrator for an entity name.
func (e *Engine) Entity(name string) (*Orchestrator, bool) {
	o, ok := e.orchestrators[name]
	return o, ok
}

// Surfaces lists the generated operation names of every entity in
// registration order.
func (e *Engine) Surfaces() []naming.Surface {
	surfaces := make([]naming.Surface, 0, len(e.order))
	for _, name := range e.order {
		surfaces = append(surfaces, e.namer.SurfaceFor(name))
	}
	return surfaces
}
