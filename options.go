package panelmap

import (
	"github.com/rs/zerolog"

	"github.com/genomicsops/panelmap/internal/metrics"
	"github.com/genomicsops/panelmap/pkg/errors"
	"github.com/genomicsops/panelmap/pkg/logging"
	"github.com/genomicsops/panelmap/pkg/sources"
	"github.com/genomicsops/panelmap/pkg/storage"
)

// config holds the engine's tunable settings.
type config struct {
	logger  *zerolog.Logger
	metrics *metrics.Metrics

	// syncBeforeRead controls whether read operations attempt a sync
	// first. Disabled in tests that pin panel state.
	syncBeforeRead bool
}

// defaultConfig returns the default engine configuration.
func defaultConfig() *config {
	return &config{
		logger:         logging.Default(),
		metrics:        metrics.New(),
		syncBeforeRead: true,
	}
}

// Option configures a Panelmap engine.
type Option func(*panelmap) error

// options applies the given options in order.
func (p *panelmap) options(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return err
		}
	}
	return nil
}

// WithStore sets the persistence backend.
func WithStore(s storage.Store) Option {
	return func(p *panelmap) error {
		if s == nil {
			return errors.NewValidationError("store", nil, "store cannot be nil")
		}
		p.store = s
		return nil
	}
}

// WithPanelSource sets the upstream panel catalog client.
func WithPanelSource(src sources.PanelSource) Option {
	return func(p *panelmap) error {
		if src == nil {
			return errors.NewValidationError("panel source", nil, "panel source cannot be nil")
		}
		p.panels = src
		return nil
	}
}

// WithTranscriptResolver sets the transcript coordinate resolver.
func WithTranscriptResolver(r sources.TranscriptResolver) Option {
	return func(p *panelmap) error {
		if r == nil {
			return errors.NewValidationError("transcript resolver", nil, "resolver cannot be nil")
		}
		p.resolver = r
		return nil
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(p *panelmap) error {
		if logger == nil {
			return errors.NewValidationError("logger", nil, "logger cannot be nil")
		}
		p.config.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *panelmap) error {
		if m == nil {
			return errors.NewValidationError("metrics", nil, "metrics cannot be nil")
		}
		p.config.metrics = m
		return nil
	}
}

// WithSyncBeforeRead controls whether read operations refresh the panel
// first.
func WithSyncBeforeRead(enabled bool) Option {
	return func(p *panelmap) error {
		p.config.syncBeforeRead = enabled
		return nil
	}
}
