package injector

import (
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zeusync/simcore/internal/config"
	"github.com/zeusync/simcore/internal/core/observability/log"
	"github.com/zeusync/simcore/internal/core/observability/metrics"
	"github.com/zeusync/simcore/internal/core/world"
	"github.com/zeusync/simcore/internal/server"
)

// App is everything cmd/simd needs to run.
type App struct {
	Config config.Config
	Logger *log.Logger
	World  *world.World
	Server *server.Server
}

var providerSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideWorld,
	ProvideServer,
	wire.Bind(new(log.Log), new(*log.Logger)),
	wire.Bind(new(prometheus.Registerer), new(*prometheus.Registry)),
	wire.Bind(new(prometheus.Gatherer), new(*prometheus.Registry)),
	wire.Struct(new(App), "*"),
)

func ProvideLogger(cfg config.Config) (*log.Logger, func(), error) {
	logger, err := log.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = logger.Sync() }, nil
}

// ProvideRegistry returns a registry with the Go runtime and process collectors.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideMetrics(reg prometheus.Registerer) (*metrics.Metrics, error) {
	return metrics.New(reg)
}

func ProvideWorld(cfg config.Config, logger log.Log, m *metrics.Metrics) (*world.World, func(), error) {
	w, err := world.New(cfg.World, logger, m)
	if err != nil {
		return nil, nil, err
	}
	return w, func() { _ = w.Close() }, nil
}

func ProvideServer(cfg config.Config, w *world.World, gatherer prometheus.Gatherer, logger log.Log, m *metrics.Metrics) (*server.Server, error) {
	return server.NewServer(cfg.Server, w, gatherer, logger, m)
}
