package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/gridmon/gridmon/internal/api"
	"github.com/gridmon/gridmon/internal/dispatch"
	"github.com/gridmon/gridmon/internal/grid"
	"github.com/gridmon/gridmon/internal/health"
	"github.com/gridmon/gridmon/internal/infra/sqlite"
	"github.com/gridmon/gridmon/internal/logging"
	"github.com/gridmon/gridmon/internal/query"
	"github.com/gridmon/gridmon/internal/topic"
)

// Daemon is the gridmon agent. It wires the grid, the dispatchers, the
// producers behind the topic hub, the query engine and the HTTP API.
type Daemon struct {
	Config Config
	NodeID string
	Logger *slog.Logger

	Grid   *grid.Grid
	DB     *sqlite.DB
	Stats  *dispatch.Dispatcher
	Query  *query.Engine
	Hub    *topic.Hub
	Health *health.Checker
	Server *api.Server

	cancel context.CancelFunc
}

// New creates a Daemon from the config file.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration. The data
// directory is Home().
func NewWithConfig(cfg Config) (*Daemon, error) {
	return NewInDir(cfg, Home())
}

// NewInDir creates a Daemon keeping its state under dir.
func NewInDir(cfg Config, dir string) (*Daemon, error) {
	logger := logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})

	g, err := grid.New(grid.Config{
		Instance:         cfg.Grid.Instance,
		Members:          cfg.Grid.Members,
		PartitionCount:   cfg.Grid.PartitionCount,
		WorkersPerMember: cfg.Grid.WorkersPerMember,
		Host:             cfg.Grid.Host,
		BasePort:         cfg.Grid.BasePort,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "start grid")
	}

	d := &Daemon{Config: cfg, Logger: logger.With("component", "daemon"), Grid: g}

	// History store also keeps the node identity.
	db, err := sqlite.Open(dir)
	if err != nil {
		g.Close()
		return nil, errors.Wrap(err, "open database")
	}
	d.DB = db
	if d.NodeID, err = nodeID(cfg.Node.ID, db); err != nil {
		d.Close()
		return nil, err
	}

	memberTimeout := parseDuration(cfg.Dispatch.MemberTimeout, 5*time.Second)
	d.Stats = dispatch.New(g, cfg.Dispatch.StatsExecutor, logger)
	d.Query = query.NewEngine(g,
		query.WithExecutor(cfg.Dispatch.QueryExecutor),
		query.WithTimeout(parseDuration(cfg.Dispatch.QueryTimeout, query.DefaultTimeout)),
		query.WithLogger(logger),
	)

	var sink topic.Sink
	if cfg.Topics.History {
		sink = &topic.HistorySink{DB: db, Keep: cfg.Topics.HistoryKeep}
	}
	d.Hub = topic.NewHub(
		topic.NewCatalog(g, d.Stats, memberTimeout, logger),
		sink,
		topic.Config{
			DefaultFrequency: parseDuration(cfg.Topics.DefaultFrequency, 5*time.Second),
			MinFrequency:     parseDuration(cfg.Topics.MinFrequency, time.Second),
			Buffer:           cfg.Topics.Buffer,
		},
		logger,
	)

	d.Health = health.NewChecker(parseDuration(cfg.Health.Interval, 30*time.Second),
		health.HistoryCheck(db),
		health.MembersCheck(g),
		health.DispatchCheck(d.Stats, memberTimeout),
	)

	srv := api.NewServer(logger)
	srv.AddInstance(g.Name(), &api.Instance{
		Source:        g,
		Stats:         d.Stats,
		Query:         d.Query,
		Hub:           d.Hub,
		MemberTimeout: memberTimeout,
	})
	srv.SetHistory(db)
	srv.SetHealth(d.Health)
	if len(cfg.API.CORSOrigins) > 0 {
		srv.SetCORSOrigins(cfg.API.CORSOrigins)
	}
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	if cfg.Grid.Demo {
		if err := seedDemo(g); err != nil {
			d.Close()
			return nil, errors.Wrap(err, "seed demo data")
		}
	}

	d.Logger.Info("agent ready", "node", d.NodeID, "instance", g.Name(), "members", len(g.Members()))
	return d, nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)
	if d.Config.Grid.Demo {
		go runDemo(ctx, d.Grid, d.Logger)
	}

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     d.Server.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		d.Hub.Close()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("gridmon serving on http://%s\n", addr)
	fmt.Printf("  Instance: %s (%d members)\n", d.Grid.Name(), len(d.Grid.Members()))
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Hub != nil {
		d.Hub.Close()
	}
	if d.Grid != nil {
		d.Grid.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

// nodeID returns the configured id, else the one stored from a previous
// run, else a fresh one which is then stored.
func nodeID(configured string, db *sqlite.DB) (string, error) {
	if configured != "" {
		return configured, nil
	}
	id, err := db.GetNodeInfo("node_id")
	if err != nil {
		return "", errors.Wrap(err, "read node id")
	}
	if id != "" {
		return id, nil
	}
	id = "gridmon-" + uuid.NewString()[:8]
	if err := db.SetNodeInfo("node_id", id); err != nil {
		return "", errors.Wrap(err, "store node id")
	}
	return id, nil
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
