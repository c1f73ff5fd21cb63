// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package dataplane

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hkwi/gopenflow/ofp4"
	log "github.com/sirupsen/logrus"

	"github.com/openflow-firewall/src/controller/pkg/flow"
)

// DefaultHandshakeTimeout bounds HELLO plus FEATURES exchange
const DefaultHandshakeTimeout = 10 * time.Second

// Server accepts OpenFlow switch connections
type Server struct {
	addr             string
	handshakeTimeout time.Duration

	listener net.Listener
	events   chan Event

	mu       sync.Mutex
	sessions map[*conn]struct{}
	wg       sync.WaitGroup
}

// NewServer creates a server listening on addr. buffer sizes the event
// channel.
func NewServer(addr string, buffer int) *Server {
	if buffer < 0 {
		buffer = 0
	}
	return &Server{
		addr:             addr,
		handshakeTimeout: DefaultHandshakeTimeout,
		events:           make(chan Event, buffer),
		sessions:         make(map[*conn]struct{}),
	}
}

// SetHandshakeTimeout overrides DefaultHandshakeTimeout. Call before Serve.
func (s *Server) SetHandshakeTimeout(d time.Duration) {
	s.handshakeTimeout = d
}

// Listen binds the listening socket
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	log.Infof("OpenFlow listener started on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Events returns the event stream. It is closed after Serve returns.
func (s *Server) Events() <-chan Event {
	return s.events
}

// Serve accepts connections until ctx is cancelled, then closes every
// session, waits for the handlers and closes the event channel.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		close(s.events)
		return err
	}

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	var acceptErr error
	for {
		c, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() == nil {
				acceptErr = fmt.Errorf("accept: %w", err)
			}
			break
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, c)
		}()
	}

	s.closeSessions()
	s.wg.Wait()
	close(s.events)

	log.Info("OpenFlow listener stopped")
	return acceptErr
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sess := range s.sessions {
		sess.Close()
	}
}

func (s *Server) track(sess *conn) {
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(sess *conn) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

// handle runs one connection from handshake to teardown
func (s *Server) handle(ctx context.Context, c net.Conn) {
	sess := newConn(c)
	s.track(sess)
	defer s.untrack(sess)
	defer sess.Close()

	// ctx may have been cancelled between accept and track
	if ctx.Err() != nil {
		return
	}

	logger := log.WithField("remote", c.RemoteAddr().String())

	if err := s.handshake(sess); err != nil {
		logger.Warnf("Handshake failed: %v", err)
		return
	}

	logger = logger.WithField("switch", FormatDatapathID(sess.dpid))
	logger.Info("Switch connected")

	if !s.emit(ctx, SwitchConnected{DatapathID: sess.dpid, Session: sess}) {
		return
	}

	err := s.readLoop(ctx, sess, logger)
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		logger.Info("Switch disconnected")
	default:
		logger.Warnf("Switch disconnected: %v", err)
	}

	sess.Close()
	s.emit(ctx, SwitchDisconnected{DatapathID: sess.dpid, Session: sess})
}

// handshake exchanges HELLO and waits for FEATURES_REPLY, answering echo
// requests that arrive in between
func (s *Server) handshake(sess *conn) error {
	if err := sess.c.SetReadDeadline(time.Now().Add(s.handshakeTimeout)); err != nil {
		return err
	}
	defer sess.c.SetReadDeadline(time.Time{})

	if err := sess.Send(ofp4.MakeHello(nil)); err != nil {
		return err
	}

	msg, err := ReadMessage(sess.c)
	if err != nil {
		return fmt.Errorf("waiting for hello: %w", err)
	}
	if msg.Type() != uint8(ofp4.OFPT_HELLO) {
		return fmt.Errorf("expected hello, got type %d", msg.Type())
	}
	if msg.Version() < ofpVersion {
		return fmt.Errorf("%w: peer version %d", ErrUnsupportedVersion, msg.Version())
	}

	if err := sess.Send(ofp4.MakeHeader(uint8(ofp4.OFPT_FEATURES_REQUEST))); err != nil {
		return err
	}

	for {
		msg, err := ReadMessage(sess.c)
		if err != nil {
			return fmt.Errorf("waiting for features: %w", err)
		}

		switch msg.Type() {
		case uint8(ofp4.OFPT_FEATURES_REPLY):
			if len(msg) < 32 {
				return fmt.Errorf("%w: short features reply", flow.ErrMalformedMessage)
			}
			sess.dpid = ofp4.SwitchFeatures(msg).DatapathId()
			return nil
		case uint8(ofp4.OFPT_ECHO_REQUEST):
			if err := sess.write(echoReply(msg)); err != nil {
				return err
			}
		case uint8(ofp4.OFPT_ERROR):
			return fmt.Errorf("switch refused handshake: %s", describeError(msg))
		}
	}
}

func (s *Server) readLoop(ctx context.Context, sess *conn, logger *log.Entry) error {
	assembler := newMultipartAssembler()

	for {
		msg, err := ReadMessage(sess.c)
		if err != nil {
			return err
		}
		if msg.Version() != ofpVersion {
			logger.Debugf("Ignoring message with version %d", msg.Version())
			continue
		}

		switch msg.Type() {
		case uint8(ofp4.OFPT_PACKET_IN):
			ev, err := decodePacketIn(sess.dpid, msg)
			if err != nil {
				logger.Warnf("Dropping packet-in: %v", err)
				continue
			}
			if !s.emit(ctx, ev) {
				return nil
			}

		case uint8(ofp4.OFPT_MULTIPART_REPLY):
			if len(msg) < 16 || ofp4.MultipartReply(msg).Type() != uint16(ofp4.OFPMP_FLOW) {
				continue
			}
			body, done := assembler.add(msg)
			if !done {
				continue
			}
			stats, err := flow.ParseFlowStats(body)
			if err != nil {
				logger.Warnf("Dropping flow stats reply: %v", err)
				continue
			}
			if !s.emit(ctx, FlowStatsReply{DatapathID: sess.dpid, Stats: stats}) {
				return nil
			}

		case uint8(ofp4.OFPT_ECHO_REQUEST):
			if err := sess.write(echoReply(msg)); err != nil {
				return err
			}

		case uint8(ofp4.OFPT_ERROR):
			logger.Warnf("Switch reported error: %s", describeError(msg))

		case uint8(ofp4.OFPT_BARRIER_REPLY), uint8(ofp4.OFPT_ECHO_REPLY):
			// nothing to do

		default:
			logger.Debugf("Ignoring message type %d", msg.Type())
		}
	}
}

// emit delivers ev unless ctx is done
func (s *Server) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func describeError(msg ofp4.Header) string {
	if len(msg) < 12 {
		return "truncated error message"
	}
	// ofp_error_msg: type at 8, code at 10
	return fmt.Sprintf("type=%d code=%d", ofp4.ErrorMsg(msg).Type(), binary.BigEndian.Uint16(msg[10:]))
}
