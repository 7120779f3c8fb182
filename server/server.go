// Package server provides a reusable DICOM acceptor: it listens for TCP
// connections, negotiates an association per connection, and hands each one
// off to dimse.Serve against a caller-supplied Registry. Grounded on the
// teacher's server.Server (same Option/New/ListenAndServe/Serve shape),
// adapted to negotiate through assoc.Accept and statemachine instead of the
// teacher's conflated pdu.Layer, and instrumented with metrics.
package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dicomkit/ulp/assoc"
	"github.com/dicomkit/ulp/dimse"
	"github.com/dicomkit/ulp/metrics"
	"github.com/dicomkit/ulp/transport"
	"github.com/dicomkit/ulp/types"
)

// Option configures a Server instance.
type Option func(*Server)

// WithLogger overrides the logger used by the server.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithReadTimeout sets the read timeout for accepted connections.
func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Server) { s.readTimeout = timeout }
}

// WithWriteTimeout sets the write timeout for accepted connections.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Server) { s.writeTimeout = timeout }
}

// WithMaxPDULength overrides the default 16384-byte maximum PDU length
// offered during negotiation.
func WithMaxPDULength(n uint32) Option {
	return func(s *Server) { s.maxPDULength = n }
}

// WithMetrics wires a metrics.Metrics instance; nil (the default) disables
// instrumentation without requiring call sites to nil-check.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithIdentityValidator wires a User Identity validator; nil (the default)
// accepts every association regardless of whether it offers one.
func WithIdentityValidator(v assoc.IdentityValidator) Option {
	return func(s *Server) { s.identityValidator = v }
}

// Server listens for DICOM associations and dispatches their DIMSE traffic
// to a Registry.
type Server struct {
	calledAETitle     types.AET
	registry          *dimse.Registry
	negotiator        assoc.Negotiator
	identityValidator assoc.IdentityValidator

	logger       zerolog.Logger
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxPDULength uint32
	metrics      *metrics.Metrics
}

// New builds a Server that answers as calledAETitle, negotiating
// presentation contexts with negotiator and dispatching accepted
// associations' DIMSE traffic to registry.
func New(calledAETitle types.AET, registry *dimse.Registry, negotiator assoc.Negotiator, opts ...Option) *Server {
	s := &Server{
		calledAETitle: calledAETitle,
		registry:      registry,
		negotiator:    negotiator,
		logger:        log.Logger,
		readTimeout:   60 * time.Second,
		writeTimeout:  60 * time.Second,
		maxPDULength:  16384,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe listens on address and serves until ctx is cancelled or an
// unrecoverable error occurs.
func ListenAndServe(ctx context.Context, address string, calledAETitle types.AET, registry *dimse.Registry, negotiator assoc.Negotiator, opts ...Option) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	defer listener.Close()

	s := New(calledAETitle, registry, negotiator, opts...)
	return s.Serve(ctx, listener)
}

// Serve accepts connections from listener until ctx is cancelled or an
// unrecoverable error occurs, handling each accepted connection in its own
// goroutine.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if listener == nil {
		return errors.New("server: listener is required")
	}
	if s.registry == nil {
		return errors.New("server: registry is required")
	}
	if s.calledAETitle == "" {
		return errors.New("server: called AE title is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	s.logger.Info().Str("address", listener.Addr().String()).Str("ae_title", string(s.calledAETitle)).Msg("DICOM server listening")

	var (
		wg       sync.WaitGroup
		serveErr error
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.logger.Warn().Err(err).Msg("accept timeout")
				continue
			}
			serveErr = err
			break
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			s.handleConnection(ctx, c)
		}(conn)
	}

	wg.Wait()

	if serveErr != nil {
		return serveErr
	}
	return ctx.Err()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr()
	s.logger.Info().Stringer("remote_addr", remote).Msg("accepted connection")

	tr := transport.WrapConn(conn)
	association, err := assoc.Accept(ctx, tr, s.calledAETitle, s.maxPDULength, s.readTimeout, s.writeTimeout, s.negotiator, s.identityValidator, s.logger)
	if err != nil {
		s.logger.Warn().Err(err).Stringer("remote_addr", remote).Msg("association negotiation failed")
		s.metrics.RecordAssociation(metrics.OutcomeRejected)
		return
	}
	s.metrics.RecordAssociation(metrics.OutcomeEstablished)

	if err := dimse.Serve(ctx, association, s.registry, s.logger, s.metrics); err != nil && ctx.Err() == nil {
		s.logger.Warn().Err(err).Stringer("remote_addr", remote).Msg("association ended with error")
		s.metrics.RecordAssociation(metrics.OutcomeAborted)
		return
	}
	s.logger.Info().Stringer("remote_addr", remote).Msg("association closed")
}
