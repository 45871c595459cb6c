package sensor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"go.bug.st/serial"
)

// LineSource yields one text sample per call.
type LineSource interface {
	ReadLine(ctx context.Context) (string, error)
	Close() error
}

// maxLineLen bounds the bytes buffered while waiting for a newline.
const maxLineLen = 4096

// ReaderSource splits a byte stream into lines. A read that returns no
// bytes (such as a serial read timeout) yields ErrNoData and keeps any
// partial line for the next call.
type ReaderSource struct {
	r     io.Reader
	buf   []byte
	chunk []byte
}

// NewReaderSource wraps r. If r is an io.Closer, Close closes it.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r, chunk: make([]byte, 256)}
}

// ReadLine returns the next line with surrounding whitespace removed and
// invalid UTF-8 dropped.
func (s *ReaderSource) ReadLine(_ context.Context) (string, error) {
	for {
		if i := bytes.IndexByte(s.buf, '\n'); i >= 0 {
			line := decodeLine(s.buf[:i])
			s.buf = s.buf[i+1:]
			return line, nil
		}

		if len(s.buf) > maxLineLen {
			partial := decodeLine(s.buf[:32])
			s.buf = nil
			return "", malformed(partial, "no newline within %d bytes", maxLineLen)
		}

		n, err := s.r.Read(s.chunk)
		s.buf = append(s.buf, s.chunk[:n]...)
		if bytes.IndexByte(s.buf, '\n') >= 0 {
			continue
		}
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", ErrNoData
		}
	}
}

// Close closes the underlying reader if it supports it.
func (s *ReaderSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func decodeLine(b []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(b), ""))
}

// SerialConfig describes a microcontroller serial link.
type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

// OpenSerial opens a serial port as a line source. Reads time out after
// ReadTimeout so that producers observe shutdown.
func OpenSerial(cfg SerialConfig) (*ReaderSource, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port required")
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %q: %w", cfg.Port, err)
	}

	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %q: %w", cfg.Port, err)
	}

	lg.Infof("Opened serial port %s at %d baud", cfg.Port, cfg.BaudRate)
	return NewReaderSource(port), nil
}

// UDPSource reads one sample per datagram.
type UDPSource struct {
	conn        net.PacketConn
	readTimeout time.Duration
	buf         []byte
}

// ListenUDP binds addr (e.g. "0.0.0.0:5005"). Each ReadLine waits at most
// readTimeout.
func ListenUDP(addr string, readTimeout time.Duration) (*UDPSource, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on udp %q: %w", addr, err)
	}
	lg.Infof("Listening for UDP on %s", conn.LocalAddr())
	return &UDPSource{conn: conn, readTimeout: readTimeout, buf: make([]byte, 1024)}, nil
}

// Addr returns the bound local address.
func (s *UDPSource) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// ReadLine returns the trimmed payload of the next datagram, or ErrNoData
// if none arrives before the read timeout or ctx deadline.
func (s *UDPSource) ReadLine(ctx context.Context) (string, error) {
	deadline := time.Now().Add(s.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}

	n, from, err := s.conn.ReadFrom(s.buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return "", ErrNoData
		}
		return "", err
	}

	line := decodeLine(s.buf[:n])
	lg.Debugf("UDP [%s] -> %q", from, line)
	return line, nil
}

// Close releases the socket.
func (s *UDPSource) Close() error {
	return s.conn.Close()
}
