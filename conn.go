// Package opc implements the Open Pixel Control wire protocol: a
// compact length-prefixed binary format for commanding addressable
// LED pixel strands over a byte stream. The package provides the
// message model, an encoder, a stream frame decoder, and a Conn that
// drives both over a caller-supplied connection. Establishing the
// transport (TCP, serial, ...) is the caller's job.
package opc

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Errors returned by Conn operations.
var (
	// ErrInvalidDevice is returned when no device is provided.
	ErrInvalidDevice = errors.New("invalid device callback")
	// ErrConnectionClosed is returned when operating on a closed
	// connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// ErrBufferFull is returned when the outbound buffer is full and
// cannot accept more messages. This signals backpressure: the peer or
// the transport is not draining frames fast enough. Drop the frame,
// or use WriteBlocking to wait for space.
var ErrBufferFull = errors.New("send buffer full")

// defaultBufferSize is the default size of the outbound message
// channel.
const defaultBufferSize = 1

// Conn drives one Encoder and one Decoder over a single byte stream.
// The stream is supplied by the caller (typically a net.Conn); the
// Conn never dials or listens. It runs one read loop delivering
// decoded messages to the configured Device and one write loop
// draining queued outbound messages.
type Conn struct {
	rwc io.ReadWriteCloser
	enc *Encoder
	dec *Decoder

	logger Logger
	opts   options

	sendMsg chan Message
	closed  atomic.Bool
	cancel  context.CancelFunc
}

// NewConn creates a Conn around the given stream. It applies the
// provided options and validates them before returning; a Device is
// required.
func NewConn(rwc io.ReadWriteCloser, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	return &Conn{
		rwc:     rwc,
		enc:     NewEncoder(rwc),
		dec:     NewDecoder(rwc),
		logger:  opts.logger,
		opts:    opts,
		sendMsg: make(chan Message, opts.bufferSize),
	}, nil
}

// Run starts the connection's read and write loops and blocks until
// an error occurs or the context is canceled. The underlying stream
// is closed when Run returns.
func (c *Conn) Run(ctx context.Context) error {
	c.logger.Info("connection started", "device_channel", c.opts.device.Channel())

	ctx, c.cancel = context.WithCancel(ctx)
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	group.Go(func() error {
		// Unblock any pending read or write once the group winds down.
		<-child.Done()
		c.closeConn()
		return nil
	})

	err := group.Wait()
	c.closeConn()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		c.logger.Info("connection closed with error", "error", err)
	} else {
		c.logger.Info("connection closed")
	}

	return err
}

// Close gracefully closes the connection. Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}
	if c.cancel != nil {
		c.cancel()
	}
	return c.rwc.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Write queues a message for sending without blocking
// (fire-and-forget). The message is validated up front; the actual
// encoding happens on the write loop.
//
// Returns:
//   - nil: message was successfully queued (not yet sent)
//   - ErrNoCommand, ErrPayloadTooLarge: message cannot be framed
//   - ErrBufferFull: outbound buffer is full, message was NOT queued
//   - ErrConnectionClosed: connection is closed
//
// For guaranteed queueing under backpressure, use WriteBlocking.
func (c *Conn) Write(msg Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	if msg.Command == nil {
		return ErrNoCommand
	}
	if !msg.IsValid() {
		return ErrPayloadTooLarge
	}

	select {
	case c.sendMsg <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// WriteBlocking queues a message for sending, blocking until the
// message is queued or the context is canceled.
func (c *Conn) WriteBlocking(ctx context.Context, msg Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	if msg.Command == nil {
		return ErrNoCommand
	}
	if !msg.IsValid() {
		return ErrPayloadTooLarge
	}

	select {
	case c.sendMsg <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readLoop continuously decodes frames from the stream and hands them
// to the device. Errors go through the error callback: Disconnect
// tears the connection down, Continue keeps reading, skipping the
// offending frame when its announced span is trustworthy.
func (c *Conn) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			err := c.dec.Receive(c.opts.device)
			if err == nil {
				continue
			}

			if c.closed.Load() {
				return ctx.Err()
			}

			c.logger.Debug("receive error", "error", err)
			if c.opts.onError(err) == Disconnect {
				return err
			}

			if resyncable(err) {
				if err := c.dec.SkipFrame(); err != nil {
					return err
				}
			}
		}
	}
}

// writeLoop drains the outbound channel onto the stream.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-c.sendMsg:
			if err := c.enc.Send(msg); err != nil {
				c.logger.Debug("send error", "error", err)
				if c.opts.onError(err) == Disconnect {
					return err
				}
			}
		}
	}
}

// resyncable reports whether the decode error leaves a trustworthy
// length field at the head of the stream, so the frame can be skipped.
func resyncable(err error) bool {
	var unknown *UnknownCommandError
	var malformed *MalformedFrameError
	return errors.As(err, &unknown) || errors.As(err, &malformed)
}

// closeConn marks the connection as closed and closes the underlying
// stream.
func (c *Conn) closeConn() {
	c.closed.Store(true)
	c.rwc.Close()
}
