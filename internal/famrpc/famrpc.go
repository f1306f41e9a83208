// Package famrpc holds the helpers shared by both ends of the memory server
// control plane: session metadata and conversion of region capabilities.
package famrpc

import (
	"context"
	"errors"

	"github.com/yuuki/famgraph/internal/rdma"
	"github.com/yuuki/famgraph/proto/memory_server"
	"google.golang.org/grpc/metadata"
)

// SessionHeader carries the client's session id on every call
const SessionHeader = "famgraph-session"

var (
	ErrNoRegion  = errors.New("famrpc: response carries no region")
	ErrNoSession = errors.New("famrpc: request carries no session id")
)

// RegionToProto converts a registered region into its wire form
func RegionToProto(r rdma.RemoteRegion) *memory_server.Region {
	return &memory_server.Region{Addr: r.Addr, Length: r.Length, Rkey: r.RKey}
}

// RegionFromProto converts a region returned by AllocateRegion or
// MapRemoteFile. A missing or empty region is an error.
func RegionFromProto(r *memory_server.Region) (rdma.RemoteRegion, error) {
	if r.GetLength() == 0 {
		return rdma.RemoteRegion{}, ErrNoRegion
	}
	return rdma.RemoteRegion{Addr: r.GetAddr(), Length: r.GetLength(), RKey: r.GetRkey()}, nil
}

// WithSession attaches the session id to outgoing calls made with ctx
func WithSession(ctx context.Context, id string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, SessionHeader, id)
}

// SessionFromContext returns the session id of an incoming call
func SessionFromContext(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ErrNoSession
	}
	ids := md.Get(SessionHeader)
	if len(ids) == 0 || ids[0] == "" {
		return "", ErrNoSession
	}
	return ids[0], nil
}
