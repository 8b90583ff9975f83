package utils

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

type CANWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

// CANReader yields received frames one at a time. ReadFrame blocks until a frame
// arrives, the context ends or the socket fails.
type CANReader interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

type SocketCANWriter struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

func NewSocketCANWriter(ctx context.Context, iface string) (*SocketCANWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	return &SocketCANWriter{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

func (w *SocketCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	return w.tx.TransmitFrame(ctx, frame)
}

func (w *SocketCANWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

type SocketCANReader struct {
	conn   net.Conn
	recv   *socketcan.Receiver
	frames chan can.Frame
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

func NewSocketCANReader(ctx context.Context, iface string) (*SocketCANReader, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	r := &SocketCANReader{
		conn:   conn,
		recv:   socketcan.NewReceiver(conn),
		frames: make(chan can.Frame, 64),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go r.pump()
	return r, nil
}

// pump owns the receiver. It exits when the socket fails or Close is called,
// even if nobody is reading frames any more.
func (r *SocketCANReader) pump() {
	r.forward(r.recv.Receive, r.recv.HasErrorFrame, r.recv.Frame)
	err := r.recv.Err()
	if err == nil {
		err = fmt.Errorf("socketcan receiver closed")
	}
	r.errs <- err
	close(r.frames)
}

func (r *SocketCANReader) forward(next func() bool, isError func() bool, frame func() can.Frame) {
	for next() {
		if isError() {
			continue
		}
		select {
		case r.frames <- frame():
		case <-r.done:
			return
		}
	}
}

func (r *SocketCANReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case frame, ok := <-r.frames:
		if !ok {
			select {
			case err := <-r.errs:
				return can.Frame{}, err
			default:
				return can.Frame{}, fmt.Errorf("socketcan receiver closed")
			}
		}
		return frame, nil
	}
}

func (r *SocketCANReader) Close() error {
	r.once.Do(func() { close(r.done) })
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
