package bastion

import (
	"log/slog"
	"time"

	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
)

// Option is a functional option for the Engine.
type Option func(*Engine)

// WithStore sets the composite store.
func WithStore(s store.Store) Option { return func(e *Engine) { e.store = s } }

// WithRegistry sets the role registry. Defaults to role.DefaultRegistry().
func WithRegistry(r *role.Registry) Option { return func(e *Engine) { e.registry = r } }

// WithCache sets the decision cache used by Authorize and Can. The engine
// invalidates it on its own commits only; principals changed by another
// process keep their cached decisions until the entries expire. Enforce
// always reads the store.
func WithCache(c Cache) Option { return func(e *Engine) { e.cache = c } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithConfig sets the engine configuration.
func WithConfig(c Config) Option { return func(e *Engine) { e.config = c } }

// WithClock sets the engine clock. PurgeAudit never cuts past its now.
// Audit timestamps are assigned by the store.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithPlugin registers a plugin with the engine. Plugins are registered
// once all options have been applied, so they log through the final logger.
func WithPlugin(x plugin.Plugin) Option {
	return func(e *Engine) { e.pending = append(e.pending, x) }
}
