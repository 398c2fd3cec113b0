package integration

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/anchor-watch/internal/config"
	"github.com/oshokin/anchor-watch/internal/service/common"
	"github.com/oshokin/anchor-watch/internal/service/server"
)

// reservePort returns a loopback address that was free a moment ago.
func reservePort(t *testing.T) string {
	t.Helper()

	lc := net.ListenConfig{}

	l, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	require.NoError(t, l.Close())

	return addr
}

// startServer runs anchor-server with settings written to a temporary file
// and waits until it answers. The server is stopped on test cleanup.
func startServer(t *testing.T, settings *config.Config) *common.Client {
	t.Helper()

	cfgPath := filepath.Join(t.TempDir(), config.DefaultConfigFilename)
	require.NoError(t, config.Save(cfgPath, settings))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- server.Run(ctx, &server.Options{
			ConfigPath: cfgPath,
			Registerer: prometheus.NewRegistry(),
		})
	}()

	t.Cleanup(func() {
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})

	client, err := common.Dial(context.Background(), settings.ServerAddress, common.WithCallTimeout(time.Second))
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	require.Eventually(t, func() bool {
		_, err := client.GetVerdict(context.Background())

		return err == nil
	}, 5*time.Second, 20*time.Millisecond, "server did not come up")

	return client
}
