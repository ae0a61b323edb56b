package emitter

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/segtrace/internal/entity"
	"github.com/GriffinCanCode/segtrace/internal/infrastructure/monitoring"
)

const (
	// DefaultDaemonAddress is where the trace daemon listens by default.
	DefaultDaemonAddress = "127.0.0.1:2000"

	// DaemonHeader prefixes every datagram.
	DaemonHeader = `{"format": "json", "version": 1}` + "\n"

	// MaxPacketSize is the largest datagram the daemon accepts.
	MaxPacketSize = 64 * 1024
)

// UDPEmitter writes one datagram per document to the trace daemon.
type UDPEmitter struct {
	addr string
	opts options

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// NewUDPEmitter resolves addr and prepares a socket. Nothing is sent until
// the first document.
func NewUDPEmitter(addr string, opts ...Option) (*UDPEmitter, error) {
	if addr == "" {
		addr = DefaultDaemonAddress
	}
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial daemon %s: %w", addr, err)
	}
	return &UDPEmitter{addr: addr, conn: conn, opts: buildOptions(opts)}, nil
}

// Addr returns the daemon address.
func (u *UDPEmitter) Addr() string { return u.addr }

// Send encodes each document and writes it as its own datagram. A document
// that fails does not stop the rest.
func (u *UDPEmitter) Send(docs ...entity.Document) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return ErrEmitterClosed
	}

	var errs []error
	for _, doc := range docs {
		timer := monitoring.NewTimer(u.opts.metrics, "udp")
		err := u.write(doc)
		timer.Stop(err)
		if err != nil {
			u.opts.logger.Debug("Failed to emit document",
				zap.String("id", doc.ID),
				zap.String("daemon", u.addr),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (u *UDPEmitter) write(doc entity.Document) error {
	raw, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	packet := make([]byte, 0, len(DaemonHeader)+len(raw))
	packet = append(packet, DaemonHeader...)
	packet = append(packet, raw...)
	if len(packet) > MaxPacketSize {
		return fmt.Errorf("%w: %s is %d bytes", ErrDocumentTooLarge, doc.ID, len(packet))
	}
	if _, err := u.conn.Write(packet); err != nil {
		return fmt.Errorf("write to daemon: %w", err)
	}
	return nil
}

// Close releases the socket.
func (u *UDPEmitter) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil
	}
	u.closed = true
	return u.conn.Close()
}
