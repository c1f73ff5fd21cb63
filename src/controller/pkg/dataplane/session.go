// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package dataplane

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hkwi/gopenflow/ofp4"
)

// ErrSessionClosed is returned by Send after the session has been closed
var ErrSessionClosed = errors.New("session closed")

const writeTimeout = 5 * time.Second

// conn is a Session over a TCP connection
type conn struct {
	c    net.Conn
	dpid uint64

	writeMu sync.Mutex
	xid     atomic.Uint32
	closed  atomic.Bool
	once    sync.Once
}

func newConn(c net.Conn) *conn {
	return &conn{c: c}
}

func (s *conn) DatapathID() uint64 {
	return s.dpid
}

// Send assigns a fresh transaction id and writes msg
func (s *conn) Send(msg ofp4.Header) error {
	msg.SetXid(s.xid.Add(1))
	return s.write(msg)
}

func (s *conn) write(msg ofp4.Header) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.c.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := s.c.Write(msg); err != nil {
		if s.closed.Load() {
			return ErrSessionClosed
		}
		return fmt.Errorf("write to %s: %w", s.c.RemoteAddr(), err)
	}
	return nil
}

func (s *conn) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		err = s.c.Close()
	})
	return err
}

func (s *conn) String() string {
	return fmt.Sprintf("%s@%s", FormatDatapathID(s.dpid), s.c.RemoteAddr())
}
