// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsp

import (
	"net"

	"github.com/sirupsen/logrus"
)

// Config is the small configuration surface the server takes. Invalid
// values are ignored with a warning; defaults are preserved.
type Config struct {
	// ListenAddress is the IP the server listens on.
	ListenAddress net.IP
	// ListenPort is the TCP port the server listens on.
	ListenPort int
	// RangeSteppingEnabled is carried in the configuration only: the
	// vCont;r handler does not consult it, so range-step requests are
	// handled the same way whether it is set or not.
	RangeSteppingEnabled bool
	// PacketAcknowledgementEnabled toggles RSP ack-mode on session start.
	// The client may still negotiate it off via QStartNoAckMode.
	PacketAcknowledgementEnabled bool
	// PacketSize is advertised to the client during feature negotiation.
	PacketSize int

	Logger *logrus.Logger
}

const (
	defaultListenPort = 1442
	defaultPacketSize = 4096
)

// DefaultConfig returns the server's default configuration: 127.0.0.1:1442,
// range-stepping and packet acknowledgement both enabled.
func DefaultConfig() Config {
	return Config{
		ListenAddress:                net.IPv4(127, 0, 0, 1),
		ListenPort:                    defaultListenPort,
		RangeSteppingEnabled:         true,
		PacketAcknowledgementEnabled: true,
		PacketSize:                   defaultPacketSize,
		Logger:                       logrus.StandardLogger(),
	}
}

// normalize applies DefaultConfig's values to any address, port, packet
// size or logger left at its zero value, logging a warning for values that
// are present but invalid. The two boolean toggles are copied as given.
func (c Config) normalize() Config {
	out := DefaultConfig()
	if c.Logger != nil {
		out.Logger = c.Logger
	}

	if c.ListenAddress != nil {
		out.ListenAddress = c.ListenAddress
	}
	if c.ListenPort != 0 {
		if c.ListenPort < 0 || c.ListenPort > 65535 {
			out.Logger.Warnf("rsp: invalid listen port %d, using default %d", c.ListenPort, defaultListenPort)
		} else {
			out.ListenPort = c.ListenPort
		}
	}
	if c.PacketSize != 0 {
		if c.PacketSize < 0 {
			out.Logger.Warnf("rsp: invalid packet size %d, using default %d", c.PacketSize, defaultPacketSize)
		} else {
			out.PacketSize = c.PacketSize
		}
	}

	out.RangeSteppingEnabled = c.RangeSteppingEnabled
	out.PacketAcknowledgementEnabled = c.PacketAcknowledgementEnabled
	return out
}
