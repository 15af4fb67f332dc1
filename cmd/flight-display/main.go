// Command flight-display polls a live flight data source around a fixed
// location and shows the nearby traffic on a terminal board.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/unklstewy/flight-display/internal/auth"
	"github.com/unklstewy/flight-display/internal/db"
	"github.com/unklstewy/flight-display/internal/display"
	"github.com/unklstewy/flight-display/internal/kiosk"
	"github.com/unklstewy/flight-display/internal/metrics"
	"github.com/unklstewy/flight-display/internal/notify"
	"github.com/unklstewy/flight-display/internal/poller"
	"github.com/unklstewy/flight-display/internal/ticker"
	"github.com/unklstewy/flight-display/internal/tui"
	"github.com/unklstewy/flight-display/internal/web"
	"github.com/unklstewy/flight-display/pkg/adsb"
	"github.com/unklstewy/flight-display/pkg/config"
	"github.com/unklstewy/flight-display/pkg/demo"
	"github.com/unklstewy/flight-display/pkg/flight"
	"github.com/unklstewy/flight-display/pkg/flightaware"
	"github.com/unklstewy/flight-display/pkg/fr24"
	"github.com/unklstewy/flight-display/pkg/logger"
)

const (
	appName = "flight-display"

	// defaultLogFile receives logs while a full-screen UI owns the terminal
	defaultLogFile = "/tmp/flight-display.log"

	// demoRefresh is the poll interval used with --demo
	demoRefresh = 5 * time.Second

	dbRetries    = 5
	dbRetryDelay = 2 * time.Second
)

type options struct {
	configPath string
	verbose    bool
	demo       bool
	lat        float64
	lon        float64
	ui         string
	listen     string
	notify     bool
	logFile    string
	issueToken string
}

func main() {
	var opts options
	setupFlags(&opts)
	pflag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func setupFlags(o *options) {
	pflag.StringVarP(&o.configPath, "config", "c", "", "path to configuration file (default: first of the standard locations)")
	pflag.BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")
	pflag.BoolVar(&o.demo, "demo", false, "use simulated flights instead of a live source")
	pflag.Float64Var(&o.lat, "lat", 0, "center latitude (overrides config)")
	pflag.Float64Var(&o.lon, "lon", 0, "center longitude (overrides config)")
	pflag.StringVar(&o.ui, "ui", "", "front end: tui, kiosk or ticker (overrides config)")
	pflag.StringVar(&o.listen, "listen", "", "serve the status API on this address, e.g. :8080")
	pflag.BoolVar(&o.notify, "notify", false, "raise desktop notifications when the source goes down or recovers")
	pflag.StringVar(&o.logFile, "log-file", defaultLogFile, "log file used while a full-screen UI is active")
	pflag.StringVar(&o.issueToken, "issue-token", "", "print a status API token for the named client and exit")
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig(o options) (*config.Config, string, error) {
	path := o.configPath
	if path == "" {
		path = config.Find()
	}

	var cfg *config.Config
	if path == "" {
		cfg = config.DefaultConfig()
	} else {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, path, err
		}
	}

	if o.demo {
		cfg.Source = config.SourceDemo
		cfg.API.EndpointType = string(flight.ModeFull)
		cfg.Display.RefreshIntervalSeconds = int(demoRefresh / time.Second)
	}
	if pflag.CommandLine.Changed("lat") {
		cfg.Location.CenterLat = o.lat
	}
	if pflag.CommandLine.Changed("lon") {
		cfg.Location.CenterLon = o.lon
	}
	if o.ui != "" {
		cfg.UI.Mode = o.ui
	}
	if o.listen != "" {
		cfg.Server.Listen = o.listen
	}
	if o.notify {
		cfg.UI.Notify = true
	}

	// Issuing a token needs only the server secret
	if o.issueToken != "" {
		return cfg, path, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, path, nil
}

func newLogger(o options, mode string) (*logger.ZapLogger, error) {
	lo := logger.Options{Verbose: o.verbose}
	if mode == config.UITicker {
		lo.Console = true
	} else {
		lo.File = o.logFile
	}
	return logger.New(lo)
}

func run(o options) error {
	cfg, path, err := loadConfig(o)
	if err != nil {
		return err
	}

	var authSvc *auth.Service
	if cfg.Server.JWTSecret != "" {
		authSvc = auth.NewService(auth.Config{
			JWTSecret:     cfg.Server.JWTSecret,
			TokenDuration: cfg.TokenTTL(),
		})
	}
	if o.issueToken != "" {
		return issueToken(os.Stdout, authSvc, o.issueToken)
	}

	zl, err := newLogger(o, cfg.UI.Mode)
	if err != nil {
		return err
	}
	defer zl.Sync()

	runID := uuid.NewString()
	log := zl.With("run_id", runID)
	log.Info("Starting",
		"config", path,
		"source", cfg.Source,
		"mode", string(cfg.Mode()),
		"center", fmt.Sprintf("%.4f,%.4f", cfg.Location.CenterLat, cfg.Location.CenterLon),
		"radius_km", cfg.Location.BoundingBoxKm,
		"ui", cfg.UI.Mode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New("flight_display", reg)

	source, err := openSource(ctx, cfg, log)
	if err != nil {
		return err
	}
	if cfg.FlightAware.APIKey != "" {
		source = flightaware.NewEnricher(source, flightaware.Config{
			APIKey:            cfg.FlightAware.APIKey,
			BaseURL:           cfg.FlightAware.BaseURL,
			RequestsPerMinute: cfg.FlightAware.RequestsPerMinute,
			Timeout:           cfg.Timeout(),
			Logger:            log,
		})
		log.Info("FlightAware route lookups enabled", "requests_per_minute", cfg.FlightAware.RequestsPerMinute)
	}
	defer func() {
		if err := source.Close(); err != nil {
			log.Warn("Failed to close source", "error", err)
		}
	}()

	p := poller.New(source, poller.Config{
		Bounds:          cfg.Bounds(),
		CenterLat:       cfg.Location.CenterLat,
		CenterLon:       cfg.Location.CenterLon,
		Limit:           cfg.Display.MaxFlights,
		Mode:            cfg.Mode(),
		RefreshInterval: cfg.RefreshInterval(),
		CacheTTL:        cfg.CacheTTL(),
	}, poller.WithLogger(log.With("component", "poller")), poller.WithMetrics(m))

	boardOpts := []display.Option{display.WithLogger(log.With("component", "board"))}
	if cfg.UI.Notify {
		n := notify.New(appName, nil, log.With("component", "notify"))
		boardOpts = append(boardOpts, display.WithWrapper(n.Wrap))
	}
	board := display.NewBoard(display.Options{
		SortBy:     cfg.Display.SortBy,
		Ascending:  cfg.Display.SortAscending,
		MaxFlights: cfg.Display.MaxFlights,
	}, boardOpts...)

	var server *web.Server
	if cfg.Server.Listen != "" {
		server = web.New(web.Config{
			Listen:         cfg.Server.Listen,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RunID:          runID,
			Auth:           authSvc,
		}, board, p, reg, log.With("component", "web"))
		if err := server.Start(); err != nil {
			return err
		}
	}

	p.Start()

	uiErr := runUI(ctx, cfg, p, board, log)

	p.Stop()
	log.Info("Poller stopped", "stats", p.Stats())

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("Status API shutdown failed", "error", err)
		}
	}

	if uiErr != nil && !errors.Is(uiErr, context.Canceled) {
		return uiErr
	}
	log.Info("Shutdown complete")
	return nil
}

// issueToken writes a signed token for client to w.
func issueToken(w io.Writer, svc *auth.Service, client string) error {
	if svc == nil {
		return fmt.Errorf("cannot issue token: set server.jwt_secret or %s", config.EnvJWTSecret)
	}
	token, err := svc.GenerateToken(client)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// openSource builds the configured data source.
func openSource(ctx context.Context, cfg *config.Config, log logger.Logger) (flight.DataSource, error) {
	switch cfg.Source {
	case config.SourceDemo:
		return demo.NewSource(cfg.Location.CenterLat, cfg.Location.CenterLon, cfg.Location.BoundingBoxKm), nil

	case config.SourceADSB:
		return adsb.NewClient(adsb.Config{
			BaseURL: cfg.ADSB.BaseURL,
			Timeout: cfg.Timeout(),
			Logger:  log,
		}), nil

	case config.SourceFeed:
		database, err := db.ReconnectWithRetry(ctx, cfg.Database, dbRetries, dbRetryDelay, log.With("component", "db"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to feed database: %w", err)
		}
		if err := database.InitSchema(ctx); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		if aircraft, plans, err := database.Counts(ctx); err == nil {
			log.Info("Feed database ready", "aircraft", aircraft, "flight_plans", plans)
		}
		stale := time.Duration(cfg.Database.StaleSeconds) * time.Second
		return db.NewFeedSource(database, db.FeedConfig{
			StaleAfter:   stale,
			QueryTimeout: cfg.Timeout(),
		}, log.With("component", "feed")), nil

	default:
		return fr24.NewClient(fr24.Config{
			APIKey:            cfg.API.Key,
			BaseURL:           cfg.API.BaseURL,
			Timeout:           cfg.Timeout(),
			RequestsPerMinute: cfg.API.RequestsPerMinute,
			Logger:            log,
		}), nil
	}
}

// runUI blocks in the selected front end until the user quits or ctx ends.
func runUI(ctx context.Context, cfg *config.Config, p *poller.Poller, board *display.Board, log logger.Logger) error {
	title := fmt.Sprintf("Flights near %.4f, %.4f (%.0f km)",
		cfg.Location.CenterLat, cfg.Location.CenterLon, cfg.Location.BoundingBoxKm)

	switch cfg.UI.Mode {
	case config.UIKiosk:
		return kiosk.New(p, board, title, log.With("component", "kiosk")).Run(ctx)
	case config.UITicker:
		return ticker.New(p.Results(), board, os.Stdout, log.With("component", "ticker")).Run(ctx)
	default:
		return tui.Run(ctx, p, board, title)
	}
}
