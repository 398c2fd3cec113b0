// Package anchor implements the gRPC transport for the anchor watch.
//
// The service is described by a hand-written grpc.ServiceDesc whose messages
// are protobuf well-known types: requests and responses are structpb.Struct
// documents, the safe radius travels as a wrapperspb.DoubleValue and empty
// calls use emptypb.Empty. This package owns both directions of the mapping
// so the client and server agree on field names.
package anchor
