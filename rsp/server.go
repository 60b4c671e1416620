// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rsp implements a GDB Remote Serial Protocol debug server: wire
// codec, command parsing and dispatch, per-session state, and the bridge
// from asynchronous target events to stop-reply packets.
package rsp

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/bloomdbg/dbgbridge/internal/ioloop"
	"github.com/bloomdbg/dbgbridge/target"
)

// Server is a single-threaded, cooperative GDB RSP server. One Server
// instance owns exactly one listening socket and serves at most one
// connected client at a time; a second client cannot connect while a
// debug session is active, mirroring the single-probe ownership model of
// the target-controller service it drives.
type Server struct {
	config Config
	svc    target.Service

	listenFD  int
	interrupt *ioloop.Interrupt

	bridge *StateBridge

	conn    *Connection
	session *Session

	pendingStateChanges chan target.StateChange
}

// NewServer constructs a server for svc using cfg (defaults applied via
// normalize).
func NewServer(cfg Config, svc target.Service) *Server {
	return &Server{
		config:              cfg.normalize(),
		svc:                 svc,
		bridge:              NewStateBridge(svc),
		pendingStateChanges: make(chan target.StateChange, 16),
	}
}

// Init binds and listens on the configured address, and starts forwarding
// target state-change events into the server's interrupt mechanism.
func (s *Server) Init() error {
	interrupt, err := ioloop.NewInterrupt()
	if err != nil {
		return err
	}
	s.interrupt = interrupt

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("rsp: failed to create socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		s.config.Logger.Warnf("rsp: failed to set SO_REUSEADDR: %v", err)
	}

	addr := &unix.SockaddrInet4{Port: s.config.ListenPort}
	copy(addr.Addr[:], s.config.ListenAddress.To4())
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("rsp: failed to bind %s:%d: %w", s.config.ListenAddress, s.config.ListenPort, err)
	}
	if err := unix.Listen(fd, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("rsp: failed to listen: %w", err)
	}
	s.listenFD = fd

	s.config.Logger.Infof("GDB RSP listening on %s:%d", s.config.ListenAddress, s.config.ListenPort)

	go s.forwardStateChanges()

	return nil
}

func (s *Server) forwardStateChanges() {
	for change := range s.svc.StateChanges() {
		s.pendingStateChanges <- change
		s.interrupt.Signal()
	}
}

// Close tears down any active session and the listening socket.
func (s *Server) Close() error {
	s.endSession()
	if s.interrupt != nil {
		s.interrupt.Close()
	}
	return unix.Close(s.listenFD)
}

func (s *Server) endSession() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.session = nil
}

// Run services one iteration of the server loop: accepting a connection if
// none is active, or servicing the active one (a command packet, or a
// queued target state change). It returns when interrupted with no
// actionable work, or when a non-fatal error has already been logged and
// the session dropped. A FatalTargetError is returned to the caller
// unchanged; the caller is expected to shut down.
func (s *Server) Run(ctx context.Context) error {
	if s.conn == nil {
		if err := s.acceptSession(); err != nil {
			return s.handleLoopError(err)
		}
		if s.conn == nil {
			return nil // interrupted while waiting for a connection
		}
	}

	if err := s.serviceSession(ctx); err != nil {
		return s.handleLoopError(err)
	}
	return nil
}

func (s *Server) acceptSession() error {
	s.config.Logger.Info("waiting for GDB RSP connection")
	conn, interrupted, err := acceptConnection(s.listenFD, s.interrupt, s.config.PacketSize)
	if err != nil {
		return err
	}
	if interrupted {
		s.drainPendingStateChanges()
		return nil
	}

	s.config.Logger.Infof("accepted GDB RSP connection from %s", conn.RemoteAddr())
	conn.noAckMode = !s.config.PacketAcknowledgementEnabled
	s.conn = conn
	s.session = NewSession()
	s.session.NoAckMode = conn.noAckMode
	return nil
}

// drainPendingStateChanges discards state changes published while there
// was no session to report them to (e.g. the target was reset before a
// client attached).
func (s *Server) drainPendingStateChanges() {
	for {
		select {
		case <-s.pendingStateChanges:
		default:
			return
		}
	}
}

func (s *Server) serviceSession(ctx context.Context) error {
	packets, err := s.conn.ReadPackets()
	if err != nil {
		if _, ok := err.(*InterruptedError); ok {
			return s.drainAndReportStateChanges(ctx)
		}
		return err
	}

	if len(packets) > 1 {
		if packets[0].Interrupt {
			s.session.PendingInterrupt = true
		}
		s.config.Logger.Warn("multiple packets received from GDB - only the most recent will be processed")
	}

	last := packets[len(packets)-1]
	if last.Interrupt {
		return s.handleInterruptByte(ctx)
	}
	body := last.Body

	cmd, err := ParseCommand(body)
	if err != nil {
		s.conn.WritePacket(ErrorResponse(1))
		return nil
	}

	respBody, err := Handle(ctx, s.session, cmd, s.svc, s.config.PacketSize)
	if err != nil {
		if _, ok := err.(*detachRequested); ok {
			s.config.Logger.Info("GDB RSP client detached")
			return &ClientDisconnectedError{}
		}
		return s.replyError(err)
	}
	s.conn.noAckMode = s.session.NoAckMode
	if respBody == nil {
		return nil
	}
	return s.conn.WritePacket(respBody)
}

func (s *Server) handleInterruptByte(ctx context.Context) error {
	state, err := s.svc.GetState(ctx)
	if err != nil {
		return err
	}
	if state == target.ExecutionStateRunning || state == target.ExecutionStateStepping {
		if s.session.WaitingForStop {
			// The bridge's pending-interrupt path halts the target and
			// builds the signal-2 stop reply.
			s.session.PendingInterrupt = true
			body, err := s.bridge.OnStateChange(ctx, s.session, target.StateChange{Current: state})
			if err != nil || body == nil {
				return err
			}
			return s.conn.WritePacket(body)
		}
		return s.svc.Halt(ctx)
	}
	return nil
}

func (s *Server) drainAndReportStateChanges(ctx context.Context) error {
	for {
		select {
		case change := <-s.pendingStateChanges:
			body, err := s.bridge.OnStateChange(ctx, s.session, change)
			if err != nil {
				return err
			}
			if body != nil {
				if err := s.conn.WritePacket(body); err != nil {
					return err
				}
			}
		default:
			return &InterruptedError{}
		}
	}
}

// replyError maps a recoverable target-operation failure - from this
// package, or from whatever concrete target.Service is attached - to an
// RSP error response and keeps the session alive. Anything else
// (disconnects, fatal failures) is returned unchanged for
// handleLoopError to act on.
func (s *Server) replyError(err error) error {
	switch err.(type) {
	case *OperationError, *target.OperationError, *target.IllegalMemoryAccessError, *ParseError:
		return s.conn.WritePacket(ErrorResponse(1))
	default:
		return err
	}
}

// handleLoopError applies the recovery policy for each error kind this
// server's components can raise: client and session-initialisation
// failures drop the session and return nil; a server-interrupted signal
// returns nil and keeps the session; a fatal target failure drops the
// session and is returned unchanged; any other error is returned unchanged
// with the session kept.
func (s *Server) handleLoopError(err error) error {
	switch e := err.(type) {
	case *ClientDisconnectedError:
		s.config.Logger.Info("GDB RSP client disconnected")
		s.endSession()
		return nil
	case *ClientCommunicationError:
		s.config.Logger.Errorf("GDB RSP client communication error: %s", e.Reason)
		s.endSession()
		return nil
	case *ClientNotSupportedError:
		s.config.Logger.Errorf("unsupported GDB RSP client: %s", e.Reason)
		s.endSession()
		return nil
	case *SessionInitFailureError:
		s.config.Logger.Warnf("debug session initialisation failed: %s", e.Reason)
		s.endSession()
		return nil
	case *InterruptedError:
		s.config.Logger.Debug("GDB RSP server interrupted")
		return nil
	case *FatalTargetError:
		s.config.Logger.Errorf("fatal target failure: %s", e.Reason)
		s.endSession()
		return err
	default:
		return err
	}
}

// Interrupt wakes the server out of any blocking I/O it may be performing.
func (s *Server) Interrupt() error {
	return s.interrupt.Signal()
}
