package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Server is a running HTTP listener for the console API.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	errc   chan error
	cancel context.CancelFunc // ends request contexts, which ends log streams
}

// NewServer binds addr and serves h in the background. Binding errors are
// returned immediately. A non-nil tlsConfig switches the listener to HTTPS.
func NewServer(addr string, h http.Handler, tlsConfig *tls.Config) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		srv: &http.Server{
			BaseContext:       func(net.Listener) context.Context { return base },
			Handler:           h,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// no WriteTimeout: /logs streams for as long as the client stays
			IdleTimeout: 60 * time.Second,
		},
		ln:     ln,
		errc:   make(chan error, 1),
		cancel: cancel,
	}
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.errc <- err
		close(s.errc)
	}()
	return s, nil
}

// Addr returns the bound address, useful with ":0".
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Err delivers the serve error (nil after a clean shutdown) once serving ends.
func (s *Server) Err() <-chan error { return s.errc }

// Shutdown ends log streams, stops accepting requests and waits for active
// ones until ctx ends, then closes what is left.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	err := s.srv.Shutdown(ctx)
	if err != nil {
		_ = s.srv.Close()
	}
	return err
}
