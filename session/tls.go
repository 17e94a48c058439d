package session

import (
	"crypto/x509"
	"fmt"
	"net"
	"strings"

	"github.com/gostdlib/base/context"

	"github.com/mcrouterd/session/errors"
	"github.com/mcrouterd/session/transport"
)

// handshake drives hs to completion and, on success, extracts the peer
// certificate's common name and validates the leaf certificate's names
// against the connection's remote address (spec §4.7). Go's crypto/tls
// has no pluggable per-connection verify callback the way the original's
// OpenSSL X509_STORE_CTX does, so the session runs the handshake
// explicitly and inspects ConnectionState afterward instead of hooking a
// verify callback.
func (s *Session) handshake(ctx context.Context, hs transport.TLSHandshaker) error {
	if err := hs.HandshakeContext(ctx); err != nil {
		s.cfg.Logger.Debug("tls handshake failed", map[string]any{"error": err.Error()})
		return err
	}

	state := hs.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil
	}

	leaf := state.PeerCertificates[0]
	cn := leaf.Subject.CommonName

	if err := verifyPeerAddress(leaf, s.transport.RemoteAddr()); err != nil {
		s.cfg.Logger.Warn("tls peer certificate rejected", err, map[string]any{"client_common_name": cn})
		return errors.E(errors.PermissionDenied, err)
	}

	s.mu.Lock()
	s.clientCommonName = cn
	s.mu.Unlock()

	s.cfg.Logger.Debug("tls handshake complete", map[string]any{"client_common_name": cn})
	return nil
}

// verifyPeerAddress implements spec §4.7's PeerCertificateInvalid check
// (spec §7): the leaf certificate must name the connection's remote
// address, either via a SAN entry (crypto/x509's own VerifyHostname) or,
// failing that, its CommonName — Go's VerifyHostname stopped considering
// CommonName a fallback in 1.15, but spec §4.7 asks for CN-or-SAN, so the
// CN comparison is done here explicitly. A remote address with no usable
// host component (e.g. a Unix domain socket path, or a transport that
// reports no address at all) has nothing to validate against and is left
// unchecked.
func verifyPeerAddress(leaf *x509.Certificate, remote net.Addr) error {
	if remote == nil {
		return nil
	}
	host, _, err := net.SplitHostPort(remote.String())
	if err != nil {
		host = remote.String()
	}
	if host == "" {
		return nil
	}

	if err := leaf.VerifyHostname(host); err == nil {
		return nil
	}
	if strings.EqualFold(leaf.Subject.CommonName, host) {
		return nil
	}
	return fmt.Errorf("certificate common name %q and SAN entries do not match peer address %q", leaf.Subject.CommonName, host)
}
