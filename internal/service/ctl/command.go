package ctl

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/oshokin/anchor-watch/internal/config"
	"github.com/oshokin/anchor-watch/internal/logger"
	"github.com/oshokin/anchor-watch/internal/service/common"
)

// Options configures how anchor-ctl reaches the server.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// ServerAddress overrides server address from config when specified.
	ServerAddress string
	// Out receives the printed results; nil means stdout.
	Out io.Writer
}

// Operation is one anchor-ctl action against a connected client.
type Operation func(ctx context.Context, client *common.Client, out io.Writer) error

// Run loads settings, dials the server and runs op.
func Run(ctx context.Context, opts *Options, op Operation) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "anchor-ctl")

	cfg, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Use server address from options if provided, otherwise use config.
	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	dialOptions := []common.Option{common.WithCallTimeout(cfg.Timeout)}

	// Identify current user and hostname for the server logs.
	if actor, actorErr := common.DetectActor(); actorErr == nil {
		dialOptions = append(dialOptions, common.WithActor(actor))
	} else {
		logger.WarnKV(ctx, "Unable to detect actor", "error", actorErr)
	}

	client, err := common.Dial(ctx, serverAddress, dialOptions...)
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	// Close connection on function exit.
	defer func() {
		_ = client.Close()
	}()

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	logger.DebugKV(ctx, "Connected", "server_address", serverAddress)

	return op(ctx, client, out)
}
