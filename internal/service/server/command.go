package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	transport "github.com/oshokin/anchor-watch/internal/api/grpc/anchor"
	"github.com/oshokin/anchor-watch/internal/config"
	"github.com/oshokin/anchor-watch/internal/logger"
	"github.com/oshokin/anchor-watch/internal/observability"
	"github.com/oshokin/anchor-watch/internal/version"
)

// Options controls the anchor-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// TrackFile overrides the track replayed as the fix feed.
	TrackFile string
	// Registerer receives the metrics; nil means the global registry.
	Registerer prometheus.Registerer
}

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// shutdownTimeout bounds the metrics endpoint shutdown.
const shutdownTimeout = 5 * time.Second

// Run starts the gRPC server and blocks until context is canceled or a component fails.
// A missing settings file means defaults.
func Run(ctx context.Context, opts *Options) error {
	settings, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	configureLogger(settings)

	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "anchor-server")

	logger.InfoKV(ctx, "Anchor server starting", version.KV()...)

	// Determine listen address: CLI argument overrides config port extraction.
	listenAddress, err := resolveListenAddress(settings.ServerAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	metrics, err := observability.NewCollector(opts.Registerer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	ctrl, err := newController(settings, metrics)
	if err != nil {
		return fmt.Errorf("initialise watch: %w", err)
	}

	// Setup TCP listener for gRPC server.
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	api := transport.NewServer(ctrl)

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(transport.UnaryActorInterceptor(), metrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(transport.StreamActorInterceptor()),
	)
	transport.RegisterAnchorWatchServer(grpcServer, api)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)

	// abort stops whatever already started and reports the setup error.
	abort := func(err error) error {
		cancel()
		_ = group.Wait()

		return err
	}

	group.Go(func() error {
		logger.InfoKV(ctx, "Anchor server listening",
			"listen_address", listenAddress,
			"safe_radius_m", settings.Watch.SafeRadiusMeters,
		)

		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		api.Close()
		grpcServer.GracefulStop()
		logger.Info(ctx, "GRPC server stopped")

		return nil
	})

	if settings.MetricsAddress != "" {
		if err = serveMetrics(groupCtx, group, settings.MetricsAddress, metrics.Handler()); err != nil {
			return abort(err)
		}
	}

	if len(settings.Alert.Command) > 0 {
		if err = startAlerts(groupCtx, group, ctrl, &settings.Alert); err != nil {
			return abort(fmt.Errorf("start alerts: %w", err))
		}
	}

	if opts.TrackFile != "" {
		settings.Positioning.TrackFile = opts.TrackFile
	}

	if settings.Positioning.TrackFile != "" {
		if err = attachTrack(groupCtx, group, ctrl, &settings.Positioning, metrics); err != nil {
			return abort(fmt.Errorf("attach track: %w", err))
		}
	}

	return group.Wait()
}

// configureLogger applies the level and encoder from settings.
func configureLogger(settings *config.Config) {
	if format, ok := logger.ParseFormat(settings.LogFormat); ok {
		logger.SetLogger(logger.New(format))
	}

	if level, ok := logger.ParseLevel(settings.LogLevel); ok {
		logger.SetLevel(level)
	}
}

// serveMetrics exposes /metrics until ctx ends.
func serveMetrics(ctx context.Context, group *errgroup.Group, address string, handler http.Handler) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen metrics on %s: %w", address, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	group.Go(func() error {
		logger.InfoKV(ctx, "Metrics endpoint listening", "metrics_address", address)

		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve metrics: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return nil
}

// resolveListenAddress determines the listen address for the gRPC server.
// If override is provided, uses it directly. Otherwise extracts port from configAddr.
// Returns appropriate listen address (e.g., ":8080" for port-only binding).
func resolveListenAddress(configAddr, override string) (string, error) {
	// Use override address if provided (e.g., ":9090", "0.0.0.0:8080").
	if override != "" {
		return override, nil
	}

	// Extract port from config address (e.g., "server.example.com:8080" -> ":8080").
	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	// Parse the address to extract port.
	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	// Return port-only listen address to bind on all interfaces.
	return ":" + port, nil
}
