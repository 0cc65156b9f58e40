package proxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

// shutdownDrain is how long Stop waits for in-flight requests to finish
// before aborting them.
const shutdownDrain = 30 * time.Second

// Server wraps a Proxy in an HTTP server bound to exactly one listener:
// either a Unix domain socket or a loopback TCP port, optionally with TLS.
// Binding to a non-loopback address is never offered — this proxy is not a
// multi-tenant or remotely administered service.
type Server struct {
	proxy      *Proxy
	server     *http.Server
	listener   net.Listener
	addr       string
	socketPath string
}

// NewServer creates a new proxy server wrapping proxy. Call exactly one of
// ListenUnix or ListenTCP before Serve.
func NewServer(proxy *Proxy) *Server {
	return &Server{proxy: proxy}
}

// ListenUnix binds a Unix domain socket at socketPath, mode 0600. A stale
// socket file from an unclean previous shutdown is removed first.
func (s *Server) ListenUnix(socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", socketPath, err)
	}

	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listening on unix socket %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		l.Close()
		return fmt.Errorf("setting socket permissions: %w", err)
	}

	s.listener = l
	s.socketPath = socketPath
	s.addr = socketPath
	return nil
}

// ListenTCP binds 127.0.0.1:port. If cert is non-nil the listener wraps
// every accepted connection in TLS using it.
func (s *Server) ListenTCP(port int, cert *tls.Certificate) error {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("listening on 127.0.0.1:%d: %w", port, err)
	}

	if cert != nil {
		l = tls.NewListener(l, &tls.Config{
			Certificates: []tls.Certificate{*cert},
			MinVersion:   tls.VersionTLS12,
		})
	}

	s.listener = l
	s.addr = l.Addr().String()
	return nil
}

// Serve starts accepting connections in the background. ListenUnix or
// ListenTCP must have been called first.
func (s *Server) Serve() error {
	if s.listener == nil {
		return fmt.Errorf("server: no listener configured, call ListenUnix or ListenTCP first")
	}

	s.server = &http.Server{
		Handler:           s.proxy,
		ReadHeaderTimeout: 60 * time.Second, // mitigate Slowloris
	}

	go func() {
		_ = s.server.Serve(s.listener) // returns ErrServerClosed after Stop
	}()
	return nil
}

// Addr returns the listener address: host:port for TCP, the socket path
// for a Unix domain socket.
func (s *Server) Addr() string {
	return s.addr
}

// Port returns the TCP port the proxy is listening on, or "" for a Unix
// socket listener.
func (s *Server) Port() string {
	if s.socketPath != "" {
		return ""
	}
	_, port, _ := net.SplitHostPort(s.addr)
	return port
}

// Stop closes the listener (no new connections), waits up to 30s for
// in-flight requests to finish, then aborts anything remaining and
// unlinks the Unix socket file if one was used. Stop on a server that was
// never started is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	drainCtx, cancel := context.WithTimeout(ctx, shutdownDrain)
	defer cancel()
	err := s.server.Shutdown(drainCtx)
	if err != nil {
		// Shutdown only returns non-nil if the drain deadline (or ctx) expired
		// before every connection finished; Close forcibly severs whatever is
		// still open instead of leaving it to drain indefinitely.
		if closeErr := s.server.Close(); closeErr != nil {
			err = closeErr
		}
	}

	if s.socketPath != "" {
		_ = os.Remove(s.socketPath)
	}
	return err
}

// Proxy returns the underlying proxy.
func (s *Server) Proxy() *Proxy {
	return s.proxy
}
