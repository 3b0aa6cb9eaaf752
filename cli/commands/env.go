package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AshkanYarmoradi/go-fold"
	"github.com/AshkanYarmoradi/go-fold/adapters"
	"github.com/AshkanYarmoradi/go-fold/adapters/memory"
	"github.com/AshkanYarmoradi/go-fold/adapters/postgres"
	redisadapter "github.com/AshkanYarmoradi/go-fold/adapters/redis"
	"github.com/AshkanYarmoradi/go-fold/adapters/sqlite"
	"github.com/AshkanYarmoradi/go-fold/cli/config"
	"github.com/AshkanYarmoradi/go-fold/middleware/metrics"
	"github.com/AshkanYarmoradi/go-fold/middleware/tracing"
	"github.com/AshkanYarmoradi/go-fold/serializer/msgpack"
	"github.com/AshkanYarmoradi/go-fold/serializer/protobuf"
	"github.com/AshkanYarmoradi/go-fold/shoppingcart"
)

// reducerName labels cart folds in metrics and spans.
const reducerName = "shopping_cart"

// connectTimeout bounds the initial ping of networked stores.
const connectTimeout = 5 * time.Second

// CLIAdapter combines all adapter interfaces needed by CLI commands.
type CLIAdapter interface {
	adapters.EventStoreAdapter
	adapters.StreamReader
	adapters.Tombstoner
	adapters.HealthChecker
}

var (
	_ CLIAdapter = (*memory.MemoryAdapter)(nil)
	_ CLIAdapter = (*postgres.PostgresAdapter)(nil)
	_ CLIAdapter = (*sqlite.SQLiteAdapter)(nil)
	_ CLIAdapter = (*redisadapter.RedisAdapter)(nil)
)

// AdapterFactory creates the appropriate adapter based on configuration.
type AdapterFactory struct {
	config *config.Config
}

// NewAdapterFactory creates a new adapter factory.
func NewAdapterFactory(cfg *config.Config) *AdapterFactory {
	return &AdapterFactory{config: cfg}
}

// CreateAdapter opens and initializes the configured store. Networked stores
// are pinged with a short timeout so bad URLs fail fast.
func (f *AdapterFactory) CreateAdapter(ctx context.Context) (CLIAdapter, error) {
	store := f.config.Store

	var adapter CLIAdapter
	switch store.Driver {
	case config.DriverMemory:
		adapter = memory.NewAdapter()

	case config.DriverPostgres:
		opts := []postgres.Option{postgres.WithSchema(store.Schema)}
		if store.PageSize > 0 {
			opts = append(opts, postgres.WithPageSize(store.PageSize))
		}
		pg, err := postgres.NewAdapter(f.config.StoreURL(), opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres adapter: %w", err)
		}
		adapter = pg

	case config.DriverSQLite:
		var opts []sqlite.Option
		if store.PageSize > 0 {
			opts = append(opts, sqlite.WithPageSize(store.PageSize))
		}
		lite, err := sqlite.Open(store.Path, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		adapter = lite

	case config.DriverRedis:
		opts := []redisadapter.Option{redisadapter.WithPrefix(store.Prefix)}
		if store.PageSize > 0 {
			opts = append(opts, redisadapter.WithPageSize(store.PageSize))
		}
		adapter = redisadapter.Dial(f.config.StoreURL(), opts...)

	default:
		return nil, fmt.Errorf("unsupported store driver: %s", store.Driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := adapter.Ping(pingCtx); err != nil {
		_ = adapter.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", store.Driver, err)
	}
	if err := adapter.Initialize(ctx); err != nil {
		_ = adapter.Close()
		return nil, fmt.Errorf("failed to initialize %s store: %w", store.Driver, err)
	}

	return adapter, nil
}

// IsMemoryDriver returns true if using the memory driver.
func (f *AdapterFactory) IsMemoryDriver() bool {
	return f.config.Store.Driver == config.DriverMemory
}

// NewSerializer returns the payload serializer for a configured format.
func NewSerializer(format string) (fold.Serializer, error) {
	switch format {
	case "", config.FormatJSON:
		return fold.NewJSONSerializer(), nil
	case config.FormatMsgpack:
		return msgpack.NewSerializer(), nil
	case config.FormatProtobuf:
		return protobuf.NewSerializer(), nil
	default:
		return nil, fmt.Errorf("unsupported serializer format: %s", format)
	}
}

// loadConfig resolves the configuration for a command: the --config file if
// given, otherwise the nearest cartfold.yaml, otherwise an in-memory default.
// Environment overrides are applied before validation.
func loadConfig(g *Globals) (*config.Config, string, error) {
	var (
		cfg *config.Config
		dir string
		err error
	)

	if g.ConfigPath != "" {
		cfg, err = config.LoadFile(g.ConfigPath)
		if err != nil {
			return nil, "", fmt.Errorf("load config: %w", err)
		}
		dir = filepath.Dir(g.ConfigPath)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", err
		}
		dir, cfg, err = config.FindConfig(cwd)
		switch {
		case errors.Is(err, os.ErrNotExist):
			cfg = config.DefaultConfig()
			cfg.Store.Driver = config.DriverMemory
			dir = cwd
		case err != nil:
			return nil, "", fmt.Errorf("load config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, "", err
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, "", fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	if cfg.Store.Driver == config.DriverSQLite && !filepath.IsAbs(cfg.Store.Path) {
		cfg.Store.Path = filepath.Join(dir, cfg.Store.Path)
	}

	return cfg, dir, nil
}

// Env is everything a cart command needs: the store stack, the cart service
// and the cart aggregator, instrumented according to flags and config.
type Env struct {
	Config    *config.Config
	Store     *fold.EventStore
	Carts     *shoppingcart.Service
	Aggregate fold.Aggregator[shoppingcart.ShoppingCart, shoppingcart.Event]

	out      io.Writer
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	provider *sdktrace.TracerProvider
}

// OpenEnv builds the Env for one command invocation. Callers must Close it.
func OpenEnv(ctx context.Context, g *Globals, out, errOut io.Writer) (*Env, error) {
	cfg, _, err := loadConfig(g)
	if err != nil {
		return nil, err
	}

	serializer, err := NewSerializer(cfg.SerializerFormat())
	if err != nil {
		return nil, err
	}

	adapter, err := NewAdapterFactory(cfg).CreateAdapter(ctx)
	if err != nil {
		return nil, err
	}

	env := &Env{Config: cfg, out: out}

	var (
		store   adapters.EventStoreAdapter = adapter
		reducer                            = fold.Reducer[shoppingcart.ShoppingCart, shoppingcart.Event](shoppingcart.Evolve)
		tracer  *tracing.Tracer
	)

	if g.Metrics || cfg.Observability.Metrics {
		env.metrics = metrics.New(metrics.WithMetricsServiceName(cfg.Project.Name))
		env.registry = prometheus.NewRegistry()
		if err := env.metrics.Register(env.registry); err != nil {
			_ = adapter.Close()
			return nil, err
		}
		store = env.metrics.WrapEventStore(store)
		reducer = metrics.Reducer(env.metrics, reducerName, reducer)
	}

	if g.Trace || cfg.Observability.Tracing {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(errOut), stdouttrace.WithPrettyPrint())
		if err != nil {
			_ = adapter.Close()
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		env.provider = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		tracer = tracing.NewTracer(
			tracing.WithTracerProvider(env.provider),
			tracing.WithServiceName(cfg.Project.Name),
		)
		store = tracing.NewEventStoreMiddleware(store, tracer)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if g.Verbose {
		logger = slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	env.Store = fold.New(store,
		fold.WithSerializer(serializer),
		fold.WithLogger(fold.NewSlogLogger(logger)),
	)
	env.Carts = shoppingcart.NewService(env.Store, shoppingcart.WithReducer(reducer))

	env.Aggregate = fold.StreamAggregator(reducer)
	if env.metrics != nil {
		env.Aggregate = metrics.Aggregator(env.metrics, reducerName, env.Aggregate)
	}
	if tracer != nil {
		env.Aggregate = tracing.Aggregator(tracer, reducerName, env.Aggregate)
	}

	return env, nil
}

// LoadCart folds a cart through the Env's aggregator.
func (e *Env) LoadCart(ctx context.Context, cartID string) (shoppingcart.ShoppingCart, error) {
	streamID := shoppingcart.StreamID(cartID)
	stream, err := fold.Read[shoppingcart.Event](ctx, e.Store, streamID)
	if err != nil {
		return shoppingcart.ShoppingCart{}, err
	}
	cart, err := e.Aggregate(ctx, stream)
	if errors.Is(err, fold.ErrStreamNotFound) {
		return cart, fold.NewStreamNotFoundError(streamID)
	}
	return cart, err
}

// Close flushes spans, prints collected metrics and closes the store.
func (e *Env) Close() error {
	var errs []error

	if e.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		errs = append(errs, e.provider.Shutdown(ctx))
		cancel()
	}
	if e.registry != nil {
		errs = append(errs, writeMetrics(e.out, e.registry))
	}
	errs = append(errs, e.Store.Close())

	return errors.Join(errs...)
}
