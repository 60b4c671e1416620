// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsp

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/bloomdbg/dbgbridge/internal/ioloop"
)

// Connection is one accepted TCP connection between this server and a GDB
// client. It owns the raw, non-blocking socket file descriptor and a
// private epoll instance used to multiplex reads and writes against the
// server's interrupt eventfd, so a blocking read or write can always be
// cancelled from another part of the program.
type Connection struct {
	fd         int
	remoteAddr string
	interrupt  *ioloop.Interrupt
	notifier   *ioloop.Notifier

	decoder *Decoder

	maxPacketSize int
	noAckMode     bool
}

// acceptConnection blocks until a client connects on listenFD or interrupt
// fires, whichever comes first. interrupt is shared with the rest of the
// server and is not drained here; draining is the caller's responsibility
// once it has decided the interrupt was meant for it.
func acceptConnection(listenFD int, interrupt *ioloop.Interrupt, maxPacketSize int) (*Connection, bool, error) {
	n, err := ioloop.New()
	if err != nil {
		return nil, false, err
	}
	defer n.Close()

	if err := n.Add(listenFD, ioloop.ReadReady); err != nil {
		return nil, false, err
	}
	if err := n.Add(interrupt.FD(), ioloop.ReadReady); err != nil {
		return nil, false, err
	}

	ready, err := n.Wait(0)
	if err != nil {
		return nil, false, err
	}
	if ready == interrupt.FD() {
		return nil, true, nil
	}

	clientFD, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return nil, false, fmt.Errorf("rsp: accept failed: %w", err)
	}

	connNotifier, err := ioloop.New()
	if err != nil {
		unix.Close(clientFD)
		return nil, false, err
	}
	if err := connNotifier.Add(clientFD, ioloop.ReadReady); err != nil {
		connNotifier.Close()
		unix.Close(clientFD)
		return nil, false, err
	}
	if err := connNotifier.Add(interrupt.FD(), ioloop.ReadReady); err != nil {
		connNotifier.Close()
		unix.Close(clientFD)
		return nil, false, err
	}

	return &Connection{
		fd:            clientFD,
		remoteAddr:    remoteAddrString(sa),
		interrupt:     interrupt,
		notifier:      connNotifier,
		decoder:       &Decoder{},
		maxPacketSize: maxPacketSize,
	}, false, nil
}

func remoteAddrString(sa unix.Sockaddr) string {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", addr.Addr[0], addr.Addr[1], addr.Addr[2], addr.Addr[3], addr.Port)
	default:
		return "unknown"
	}
}

// RemoteAddr returns the human-readable address of the connected client.
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// Close releases the connection's socket and private epoll instance.
func (c *Connection) Close() error {
	c.notifier.Close()
	return unix.Close(c.fd)
}

// waitReadable blocks until the socket is readable or the connection is
// interrupted, returning (false, nil) for the interrupted case.
func (c *Connection) waitReadable() (bool, error) {
	ready, err := c.notifier.Wait(0)
	if err != nil {
		return false, &ClientCommunicationError{Reason: err.Error()}
	}
	if ready == c.interrupt.FD() {
		return false, nil
	}
	return true, nil
}

// ReadPackets blocks until at least one complete, checksum-valid packet (or
// an interrupt byte) has been decoded from the client. Each framed packet is
// acknowledged as it arrives unless ack-mode has been disabled: '+' if its
// checksum matched, '-' if not, per §4.1. A negatively acknowledged packet
// is dropped rather than returned, since GDB is expected to retransmit it.
// It returns InterruptedError if cancelled before a full packet arrived.
func (c *Connection) ReadPackets() ([]DecodedPacket, error) {
	buf := make([]byte, c.maxPacketSize)
	for {
		readable, err := c.waitReadable()
		if err != nil {
			return nil, err
		}
		if !readable {
			return nil, &InterruptedError{}
		}

		n, err := unix.Read(c.fd, buf)
		if err != nil {
			if err == unix.EAGAIN {
				continue
			}
			return nil, &ClientCommunicationError{Reason: err.Error()}
		}
		if n == 0 {
			return nil, &ClientDisconnectedError{}
		}

		packets, consumed := c.decoder.Feed(buf[:n])
		_ = consumed
		if len(packets) == 0 {
			continue
		}

		good := packets[:0]
		for _, p := range packets {
			if p.Interrupt {
				good = append(good, p)
				continue
			}
			if !c.noAckMode {
				if err := c.WriteAck(p.ChecksumOK); err != nil {
					return nil, err
				}
			}
			if p.ChecksumOK {
				good = append(good, p)
			}
		}
		if len(good) > 0 {
			return good, nil
		}
	}
}

// WritePacket encodes and sends body as a single RSP packet.
func (c *Connection) WritePacket(body []byte) error {
	return c.writeRaw(Encode(body))
}

// WriteAck sends a bare acknowledgement byte: '+' when good, '-' (asking
// the client to retransmit) otherwise. ReadPackets calls it only while
// ack-mode is enabled.
func (c *Connection) WriteAck(good bool) error {
	if good {
		return c.writeRaw([]byte{ackGood})
	}
	return c.writeRaw([]byte{ackBad})
}

func (c *Connection) writeRaw(buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Write(c.fd, buf)
		if err != nil {
			if err == unix.EAGAIN {
				ready, werr := c.waitWritable()
				if werr != nil {
					return werr
				}
				if !ready {
					return &InterruptedError{}
				}
				continue
			}
			return &ClientCommunicationError{Reason: err.Error()}
		}
		buf = buf[n:]
	}
	return nil
}

func (c *Connection) waitWritable() (bool, error) {
	if err := c.notifier.Remove(c.fd); err != nil {
		return false, &ClientCommunicationError{Reason: err.Error()}
	}
	if err := c.notifier.Add(c.fd, ioloop.WriteReady); err != nil {
		return false, &ClientCommunicationError{Reason: err.Error()}
	}
	defer func() {
		c.notifier.Remove(c.fd)
		c.notifier.Add(c.fd, ioloop.ReadReady)
	}()

	ready, err := c.notifier.Wait(0)
	if err != nil {
		return false, &ClientCommunicationError{Reason: err.Error()}
	}
	return ready == c.fd, nil
}
