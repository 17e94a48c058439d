package session

import (
	"net"

	"github.com/gostdlib/base/context"
)

// remoteAddrKey is a private type used as the context key under which
// WithRemoteAddr stores a peer's network address.
type remoteAddrKey struct{}

// RemoteAddr retrieves the remote address attached to ctx by
// WithRemoteAddr, or nil if none is set.
func RemoteAddr(ctx context.Context) net.Addr {
	addr, _ := ctx.Value(remoteAddrKey{}).(net.Addr)
	return addr
}

// WithRemoteAddr returns a context carrying addr. Neither Server nor
// Session calls it; a caller that wants the address in a context attaches
// it itself.
func WithRemoteAddr(ctx context.Context, addr net.Addr) context.Context {
	return context.WithValue(ctx, remoteAddrKey{}, addr)
}
