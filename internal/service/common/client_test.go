//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	transport "github.com/oshokin/anchor-watch/internal/api/grpc/anchor"
	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/domain/filter"
	"github.com/oshokin/anchor-watch/internal/domain/geo"
	"github.com/oshokin/anchor-watch/internal/domain/watch"
	"github.com/oshokin/anchor-watch/internal/service/controller"
)

// TestDial_ValidatesAddress verifies that Dial rejects empty addresses.
func TestDial_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "")
	require.Error(t, err)
	require.Nil(t, c)
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{
		callTimeout: 0,
	}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	require.NotNil(t, ctx)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// TestClient_NotConnected asserts that calls on a zero client fail cleanly.
func TestClient_NotConnected(t *testing.T) {
	t.Parallel()

	c := new(Client)

	_, err := c.GetVerdict(context.Background())
	require.ErrorIs(t, err, errNotConnected)
}

// newBufconnClient serves a fresh controller over an in-memory listener.
func newBufconnClient(t *testing.T) *Client {
	t.Helper()

	w, err := watch.New(watch.DefaultConfig(), filter.New(filter.DefaultConfig()))
	require.NoError(t, err)

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(transport.UnaryActorInterceptor()))
	transport.RegisterAnchorWatchServer(server, transport.NewServer(controller.New(w)))

	go func() {
		_ = server.Serve(listener)
	}()

	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	client := &Client{conn: conn, callTimeout: 5 * time.Second}
	WithActor("tester@localhost")(client)

	t.Cleanup(func() { _ = client.Close() })

	return client
}

// TestClient_Roundtrip drives every call against an in-memory server.
func TestClient_Roundtrip(t *testing.T) {
	t.Parallel()

	client := newBufconnClient(t)
	ctx := context.Background()

	stream, err := client.WatchEvents(ctx)
	require.NoError(t, err)

	defer stream.Close()

	anchorage := geo.Coordinate{Latitude: 42.6883, Longitude: 17.939}

	snap, err := client.DropAnchor(ctx, anchorage)
	require.NoError(t, err)
	require.Equal(t, anchor.Safe, snap.Status)
	require.InDelta(t, watch.DefaultSafeRadiusMeters, snap.SafeRadiusMeters, 1e-9)

	_, err = client.DropAtNextFix(ctx)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	drifted, err := geo.Destination(anchorage, 180, 400)
	require.NoError(t, err)

	snap, err = client.SubmitFix(ctx, anchor.PositionFix{Coordinate: drifted, HorizontalAccuracyMeters: 8})
	require.NoError(t, err)
	require.Equal(t, anchor.Alarmed, snap.Status)

	snap, err = client.SetSafeRadius(ctx, 500)
	require.NoError(t, err)
	require.Equal(t, anchor.Safe, snap.Status)

	_, err = client.SetSafeRadius(ctx, 0)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	require.NoError(t, client.Reset(ctx))

	snap, err = client.GetVerdict(ctx)
	require.NoError(t, err)
	require.Equal(t, anchor.NoAnchor, snap.Status)

	want := []controller.EventKind{
		controller.EventAnchorDropped,
		controller.EventTransition,
		controller.EventTransition,
		controller.EventReset,
	}

	for _, kind := range want {
		e, recvErr := stream.Recv()
		require.NoError(t, recvErr)
		require.Equal(t, kind, e.Kind)
	}
}
