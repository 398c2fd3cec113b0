//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	transport "github.com/oshokin/anchor-watch/internal/api/grpc/anchor"
	"github.com/oshokin/anchor-watch/internal/config"
	"github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/domain/geo"
	"github.com/oshokin/anchor-watch/internal/service/controller"
)

// Client wraps a connection to the anchor watch service with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the anchor server.
	conn *grpc.ClientConn

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
	// actor identifies the caller in request metadata when set.
	actor string
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithActor attaches the caller identity to every request.
func WithActor(actor string) Option {
	return func(c *Client) {
		c.actor = actor
	}
}

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// Dial establishes a gRPC connection to the anchor server.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy until native TLS is added.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial anchor server: %w", err)
	}

	client := &Client{
		conn:        conn,
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// GetVerdict retrieves the current watch state.
func (c *Client) GetVerdict(ctx context.Context) (controller.Snapshot, error) {
	resp := new(structpb.Struct)
	if err := c.invoke(ctx, transport.GetVerdictMethod, new(emptypb.Empty), resp); err != nil {
		return controller.Snapshot{}, fmt.Errorf("get verdict: %w", err)
	}

	return decodeSnapshot(resp)
}

// DropAnchor sets the anchor at coordinate.
func (c *Client) DropAnchor(ctx context.Context, coordinate geo.Coordinate) (controller.Snapshot, error) {
	return c.drop(ctx, transport.DropRequest{Coordinate: coordinate})
}

// DropAtNextFix arms a deferred drop on the server.
func (c *Client) DropAtNextFix(ctx context.Context) (controller.Snapshot, error) {
	return c.drop(ctx, transport.DropRequest{UseNextFix: true})
}

// Reset clears the remote anchor.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.invoke(ctx, transport.ResetMethod, new(emptypb.Empty), new(emptypb.Empty)); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	return nil
}

// SetSafeRadius changes the remote safe radius.
func (c *Client) SetSafeRadius(ctx context.Context, meters float64) (controller.Snapshot, error) {
	resp := new(structpb.Struct)
	if err := c.invoke(ctx, transport.SetSafeRadiusMethod, wrapperspb.Double(meters), resp); err != nil {
		return controller.Snapshot{}, fmt.Errorf("set safe radius: %w", err)
	}

	return decodeSnapshot(resp)
}

// SubmitFix sends one position fix. A zero timestamp is stamped by the server.
func (c *Client) SubmitFix(ctx context.Context, fix anchor.PositionFix) (controller.Snapshot, error) {
	resp := new(structpb.Struct)
	if err := c.invoke(ctx, transport.SubmitFixMethod, transport.EncodeFix(fix), resp); err != nil {
		return controller.Snapshot{}, fmt.Errorf("submit fix: %w", err)
	}

	return decodeSnapshot(resp)
}

// EventStream receives change events from WatchEvents.
type EventStream struct {
	stream grpc.ClientStream
	cancel context.CancelFunc
}

// WatchEvents opens the event stream. It returns once the server has
// subscribed, so no event after the call is missed. The call timeout does
// not apply; the stream lives until ctx ends or Close is called.
func (c *Client) WatchEvents(ctx context.Context) (*EventStream, error) {
	streamCtx, cancel := context.WithCancel(c.withActor(ctx))

	desc := &grpc.StreamDesc{
		StreamName:    "WatchEvents",
		ServerStreams: true,
	}

	stream, err := c.conn.NewStream(streamCtx, desc, transport.WatchEventsMethod)
	if err != nil {
		cancel()

		return nil, fmt.Errorf("watch events: %w", err)
	}

	if err = stream.SendMsg(new(emptypb.Empty)); err != nil {
		cancel()

		return nil, fmt.Errorf("watch events: %w", err)
	}

	if err = stream.CloseSend(); err != nil {
		cancel()

		return nil, fmt.Errorf("watch events: %w", err)
	}

	if _, err = stream.Header(); err != nil {
		cancel()

		return nil, fmt.Errorf("watch events: %w", err)
	}

	return &EventStream{stream: stream, cancel: cancel}, nil
}

// Recv blocks for the next event. It returns io.EOF when the server ends the stream.
func (s *EventStream) Recv() (controller.Event, error) {
	msg := new(structpb.Struct)
	if err := s.stream.RecvMsg(msg); err != nil {
		return controller.Event{}, err
	}

	e, err := transport.DecodeEvent(msg)
	if err != nil {
		return controller.Event{}, fmt.Errorf("decode event: %w", err)
	}

	return e, nil
}

// Close cancels the stream.
func (s *EventStream) Close() {
	if s != nil && s.cancel != nil {
		s.cancel()
	}
}

func (c *Client) drop(ctx context.Context, req transport.DropRequest) (controller.Snapshot, error) {
	resp := new(structpb.Struct)
	if err := c.invoke(ctx, transport.DropAnchorMethod, transport.EncodeDropRequest(req), resp); err != nil {
		return controller.Snapshot{}, fmt.Errorf("drop anchor: %w", err)
	}

	return decodeSnapshot(resp)
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	if c == nil || c.conn == nil {
		return errNotConnected
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	return c.conn.Invoke(callCtx, method, req, resp)
}

// errNotConnected is returned by calls on a client that was never dialed.
var errNotConnected = errors.New("client is not connected")

func decodeSnapshot(resp *structpb.Struct) (controller.Snapshot, error) {
	snap, err := transport.DecodeSnapshot(resp)
	if err != nil {
		return controller.Snapshot{}, fmt.Errorf("decode response: %w", err)
	}

	return snap, nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = c.withActor(ctx)

	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

func (c *Client) withActor(ctx context.Context) context.Context {
	if c.actor == "" {
		return ctx
	}

	return metadata.AppendToOutgoingContext(ctx, transport.ActorMetadataKey, c.actor)
}
