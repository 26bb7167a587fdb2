package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ephemeral/relay/observability"
	"github.com/ephemeral/relay/store"
	"github.com/ephemeral/relay/subscription"
)

// Relay is the dispatcher at the center of the process: it owns the event
// store and the subscription registry and serializes every unit of work
// that touches them.
type Relay struct {
	config     Config
	store      store.Store
	registry   *subscription.Registry
	logger     *slog.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	instanceID string

	// mu makes publish, subscribe, unsubscribe, disconnect and purge
	// mutually exclusive.
	mu          sync.Mutex
	connections int
	started     bool
	stopped     bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Relay instance.
type Option func(*Relay) error

// New creates a new Relay with the given options.
func New(opts ...Option) (*Relay, error) {
	r := &Relay{
		config:     DefaultConfig(),
		registry:   subscription.NewRegistry(),
		logger:     slog.Default(),
		instanceID: uuid.NewString(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.store == nil {
		return nil, ErrNoStore
	}
	if r.tracer == nil {
		r.tracer = observability.NewTracer(nil)
	}
	return r, nil
}

// WithStore sets the event store.
func WithStore(s store.Store) Option {
	return func(r *Relay) error {
		r.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Relay instance.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) error {
		r.logger = logger
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(r *Relay) error {
		r.config = cfg
		return nil
	}
}

// WithPurgeInterval sets how often the store is flushed. Zero disables purging.
func WithPurgeInterval(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.PurgeInterval = d
		return nil
	}
}

// WithVerifyIDs enables content-id verification of published events.
func WithVerifyIDs(enabled bool) Option {
	return func(r *Relay) error {
		r.config.VerifyIDs = enabled
		return nil
	}
}

// WithMetrics sets the Prometheus instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Relay) error {
		r.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(r *Relay) error {
		r.tracer = t
		return nil
	}
}
