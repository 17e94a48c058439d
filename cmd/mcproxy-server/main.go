// Command mcproxy-server runs a memcached-protocol proxy session server
// over TCP, backed by the in-memory store in store.go. It exists to
// exercise server.Server/session.Session end to end; storage semantics
// themselves are explicitly out of scope (spec.md §1 Non-goals).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gostdlib/base/context"

	"github.com/mcrouterd/session/handler"
	"github.com/mcrouterd/session/log"
	"github.com/mcrouterd/session/metrics"
	"github.com/mcrouterd/session/protocol"
	"github.com/mcrouterd/session/protocol/ascii"
	"github.com/mcrouterd/session/server"
	"github.com/mcrouterd/session/session"
	"github.com/mcrouterd/session/transport/tcp"
)

func main() {
	addr := flag.String("addr", ":11211", "address to listen on")
	maxInFlight := flag.Int("max-in-flight", 1024, "per-session throttle cap; 0 disables")
	singleWrite := flag.Bool("single-write", false, "use single-write mode instead of batched writes")
	flag.Parse()

	ctx := context.Background()
	logger := log.New(os.Stderr)
	metricsCollector := metrics.New(nil)

	store := newMemStore()
	h := handler.Wrap(&storeHandler{store: store},
		handler.RecoveryInterceptor(logger),
		handler.LoggingInterceptor(logger),
	)

	srv := server.New(
		func() protocol.Parser { return ascii.New() },
		ascii.Encoder{},
		h,
		server.WithLogger(logger),
		server.WithMetrics(metricsCollector),
		server.WithSessionOptions(
			session.WithMaxInFlight(*maxInFlight),
			session.WithSingleWrite(*singleWrite),
		),
	)

	ln, err := tcp.Listen(ctx, *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcproxy-server: listen %s: %v\n", *addr, err)
		os.Exit(1)
	}
	logger.Info("listening", map[string]any{"addr": ln.Addr().String()})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(serveCtx, ln) }()

	select {
	case <-sigCh:
		logger.Info("shutting down", nil)
	case err := <-done:
		if err != nil {
			logger.Warn("listen and serve exited", err, nil)
		}
	}

	cancel()
	ln.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown did not complete cleanly", err, nil)
	}
}
