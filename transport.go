package ftsboot

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
)

// Bus is a full-duplex exchange primitive: w is shifted out while r, which
// has the same length, is shifted in. periph.io spi.Conn implements it.
type Bus interface {
	Tx(w, r []byte) error
}

// limiter is implemented by buses that cap the size of a single exchange.
type limiter interface {
	MaxTxSize() int
}

// DefaultBufferSize is the size of the buffer pair a Channel keeps for
// exchanges that fit into it.
const DefaultBufferSize = 256

// DefaultRetries is the number of attempts made for a single exchange.
const DefaultRetries = 5

// Frame layout.
const (
	frameHeaderLen   = 4
	frameReservedLen = 3
	frameDataOffset  = frameHeaderLen + frameReservedLen
	frameCRCLen      = 2
	frameStatusIndex = 3
	maxFrameData     = 0xFFFF
)

// Control byte and status bits.
const (
	ctrlWrite       = 0x00
	ctrlRead        = 0x80
	ctrlDuplex      = 0x20
	statusErrorMask = 0xA0
)

// Channel frames commands for the controller and exchanges them over a Bus.
// Exchanges are serialised; a Channel is safe for concurrent use.
type Channel struct {
	mu       sync.Mutex
	bus      Bus
	wbuf     []byte
	rbuf     []byte
	attempts int
}

// NewChannel creates a channel on the given bus. bufferSize is the size of
// the reusable buffer pair and retries the number of attempts made for an
// exchange; zero selects the defaults.
func NewChannel(bus Bus, bufferSize, retries int) *Channel {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if retries <= 0 {
		retries = DefaultRetries
	}
	return &Channel{
		bus:      bus,
		wbuf:     make([]byte, bufferSize),
		rbuf:     make([]byte, bufferSize),
		attempts: retries,
	}
}

// buffers returns a zeroed write/read pair of length n. Requests that do
// not fit the default pair get a pair of their own which is dropped when
// the caller returns.
func (c *Channel) buffers(n int) (w, r []byte, err error) {
	if l, ok := c.bus.(limiter); ok {
		if limit := l.MaxTxSize(); limit > 0 && n > limit {
			return nil, nil, errors.Wrapf(ErrResource, "frame of %d bytes exceeds bus limit of %d", n, limit)
		}
	}
	if n <= len(c.wbuf) {
		w, r = c.wbuf[:n], c.rbuf[:n]
		clear(w)
		clear(r)
		return w, r, nil
	}
	pkgLog.Debugf("allocating %d byte transfer buffers", n)
	return make([]byte, n), make([]byte, n), nil
}

// MaxPayload returns the largest write payload that fits a single exchange
// on the bus.
func (c *Channel) MaxPayload() int {
	if l, ok := c.bus.(limiter); ok {
		if limit := l.MaxTxSize(); limit > 0 {
			if limit-frameDataOffset < maxFrameData {
				return max(limit-frameDataOffset, 0)
			}
		}
	}
	return maxFrameData
}

// Write sends the command op followed by data. An exchange is retried while
// the controller reports an error status or the bus fails.
func (c *Channel) Write(op byte, data ...byte) error {
	if len(data) > maxFrameData {
		return errors.Wrapf(ErrResource, "command %02X payload of %d bytes is too long", op, len(data))
	}
	n := frameHeaderLen
	if len(data) > 0 {
		n = frameDataOffset + len(data)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	w, r, err := c.buffers(n)
	if err != nil {
		return err
	}
	w[0] = op
	w[1] = ctrlWrite
	binary.BigEndian.PutUint16(w[2:], uint16(len(data)))
	if len(data) > 0 {
		copy(w[frameDataOffset:], data)
	}

	err = retry(c.attempts, func(attempt int) error {
		if err := c.bus.Tx(w, r); err != nil {
			pkgLog.Errorf("command %02X exchange failed: %v, retry: %d", op, err, attempt)
			return &BusError{Opcode: op, Err: err}
		}
		if status := r[frameStatusIndex]; status&statusErrorMask != 0 {
			pkgLog.Warnf("command %02X write status %02X, retry: %d", op, status, attempt)
			return &StatusError{Opcode: op, Status: status}
		}
		return nil
	})
	if err != nil {
		return err
	}
	pkgLog.Debugf("command %02X write ok", op)
	return nil
}

// Read issues the command op and returns the n data bytes the controller
// answers with. The exchange is retried while the controller reports an
// error status, the bus fails, or the checksum trailer does not match.
func (c *Channel) Read(op byte, n int) ([]byte, error) {
	if n < 0 || n > maxFrameData {
		return nil, errors.Wrapf(ErrResource, "command %02X read of %d bytes is out of range", op, n)
	}
	length := frameDataOffset + n + frameCRCLen

	c.mu.Lock()
	defer c.mu.Unlock()

	w, r, err := c.buffers(length)
	if err != nil {
		return nil, err
	}
	w[0] = op
	w[1] = ctrlRead | ctrlDuplex
	binary.BigEndian.PutUint16(w[2:], uint16(n))

	data := make([]byte, n)
	err = retry(c.attempts, func(attempt int) error {
		if err := c.bus.Tx(w, r); err != nil {
			pkgLog.Errorf("command %02X exchange failed: %v, retry: %d", op, err, attempt)
			return &BusError{Opcode: op, Err: err}
		}
		if status := r[frameStatusIndex]; status&statusErrorMask != 0 {
			pkgLog.Warnf("command %02X read status %02X, retry: %d", op, status, attempt)
			return &StatusError{Opcode: op, Status: status}
		}
		resp := r[frameDataOffset:]
		copy(data, resp[:n])
		// The trailer is sent low byte first.
		received := uint16(resp[n+1])<<8 | uint16(resp[n])
		if calculated := TransportCRC(resp[:n]); calculated != received {
			pkgLog.Warnf("command %02X read crc mismatch, retry: %d", op, attempt)
			return &CRCError{Opcode: op, Expected: calculated, Actual: received}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	pkgLog.Debugf("command %02X read %d bytes, crc ok", op, n)
	return data, nil
}
