package anchor

import (
	"context"
	"errors"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	domain "github.com/oshokin/anchor-watch/internal/domain/anchor"
	"github.com/oshokin/anchor-watch/internal/logger"
	"github.com/oshokin/anchor-watch/internal/service/controller"
)

// Service abstracts the watch operations the transport layer depends on.
// Execute must return the state left by the command itself.
type Service interface {
	Snapshot() controller.Snapshot
	Execute(ctx context.Context, cmd controller.Command) (controller.Snapshot, error)
	Subscribe(buffer int) *controller.Subscription
}

// Server implements AnchorWatchServer on top of a Service.
type Server struct {
	// service provides the watch operations.
	service Service
	// now stamps fixes submitted without a timestamp.
	now func() time.Time

	// done ends open event streams on Close.
	done      chan struct{}
	closeOnce sync.Once
}

var _ AnchorWatchServer = (*Server)(nil)

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Close ends every open WatchEvents stream so a graceful stop can finish.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// DropAnchor sets the anchor at the given coordinate or arms a deferred drop.
func (s *Server) DropAnchor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	drop, err := DecodeDropRequest(req)
	if err != nil {
		return nil, toStatusError(err)
	}

	cmd := controller.DropAnchorCommand(drop.Coordinate)
	if drop.UseNextFix {
		cmd = controller.DropAtNextFixCommand()
	}

	return s.execute(ctx, cmd)
}

// Reset clears the anchor and any pending drop.
func (s *Server) Reset(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if _, err := s.service.Execute(ctx, controller.ResetCommand()); err != nil {
		return nil, toStatusError(err)
	}

	return new(emptypb.Empty), nil
}

// SetSafeRadius changes the safe radius and returns the re-evaluated state.
func (s *Server) SetSafeRadius(ctx context.Context, req *wrapperspb.DoubleValue) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "radius is required")
	}

	return s.execute(ctx, controller.SetSafeRadiusCommand(req.GetValue()))
}

// SubmitFix feeds one position fix into the watch.
func (s *Server) SubmitFix(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	fix, err := DecodeFix(req)
	if err != nil {
		return nil, toStatusError(err)
	}

	if fix.Timestamp.IsZero() {
		fix.Timestamp = s.now()
	}

	return s.execute(ctx, controller.SubmitFixCommand(fix))
}

// execute runs cmd and encodes the state it produced.
func (s *Server) execute(ctx context.Context, cmd controller.Command) (*structpb.Struct, error) {
	snap, err := s.service.Execute(ctx, cmd)
	if err != nil {
		return nil, toStatusError(err)
	}

	return EncodeSnapshot(snap), nil
}

// GetVerdict returns the current state.
func (s *Server) GetVerdict(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return EncodeSnapshot(s.service.Snapshot()), nil
}

// WatchEvents streams change events until the client goes away.
// Headers are sent once the subscription exists so clients can wait on them.
func (s *Server) WatchEvents(_ *emptypb.Empty, stream EventStream) error {
	ctx := stream.Context()

	sub := s.service.Subscribe(0)
	defer sub.Close()

	if err := stream.SendHeader(metadata.MD{}); err != nil {
		return err
	}

	logger.DebugKV(ctx, "Event stream opened")

	for {
		select {
		case <-ctx.Done():
			logger.DebugKV(ctx, "Event stream closed by client")

			return nil
		case <-s.done:
			return nil
		case e, ok := <-sub.Events():
			if !ok {
				return nil
			}

			if err := stream.Send(EncodeEvent(e)); err != nil {
				return err
			}
		}
	}
}

// toStatusError maps domain errors onto gRPC status codes.
func toStatusError(err error) error {
	switch {
	case errors.Is(err, domain.ErrAlreadyAnchored):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrConfiguration),
		errors.Is(err, domain.ErrInvalidFix),
		errors.Is(err, domain.ErrInvalidCoordinate),
		errors.Is(err, ErrMalformed):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// ActorMetadataKey carries the caller identity ("user@hostname").
const ActorMetadataKey = "x-anchorwatch-actor"

// UnaryActorInterceptor tags the request logger with the caller identity.
func UnaryActorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(withActor(ctx), req)
	}
}

// StreamActorInterceptor does the same for streams.
func StreamActorInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &actorStream{ServerStream: ss, ctx: withActor(ss.Context())})
	}
}

type actorStream struct {
	grpc.ServerStream

	ctx context.Context //nolint:containedctx // Overrides grpc.ServerStream.Context.
}

func (s *actorStream) Context() context.Context { return s.ctx }

func withActor(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}

	values := md.Get(ActorMetadataKey)
	if len(values) == 0 || values[0] == "" {
		return ctx
	}

	return logger.WithKV(ctx, "actor", values[0])
}
