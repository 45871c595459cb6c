package sensor

import (
	"context"
	"fmt"
	"net"
)

// LineFunc receives every raw line read from a source.
type LineFunc func(line string)

// EchoSource hands every non-empty line it reads to its LineFuncs before
// returning it, so a microcontroller's debug output can be watched while
// it is being parsed.
type EchoSource struct {
	src  LineSource
	echo []LineFunc
}

// NewEchoSource wraps src.
func NewEchoSource(src LineSource, echo ...LineFunc) *EchoSource {
	return &EchoSource{src: src, echo: echo}
}

func (s *EchoSource) ReadLine(ctx context.Context) (string, error) {
	line, err := s.src.ReadLine(ctx)
	if err != nil || line == "" {
		return line, err
	}
	for _, f := range s.echo {
		f(line)
	}
	return line, nil
}

// Close closes the wrapped source.
func (s *EchoSource) Close() error {
	return s.src.Close()
}

// LogLines returns a LineFunc logging each line under name.
func LogLines(name string) LineFunc {
	return func(line string) {
		lg.Infof("[%s] %s", name, line)
	}
}

// LineForwarder sends each raw line as one UDP datagram.
type LineForwarder struct {
	conn net.Conn
	errs repeatLog
}

// DialLineForwarder returns a forwarder sending to addr, e.g.
// "127.0.0.1:5005".
func DialLineForwarder(addr string) (*LineForwarder, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial udp %q: %w", addr, err)
	}
	return &LineForwarder{conn: conn}, nil
}

// Forward sends line. Failures are logged and otherwise ignored.
func (f *LineForwarder) Forward(line string) {
	if _, err := f.conn.Write([]byte(line + "\n")); err != nil {
		if f.errs.next(err.Error()) {
			lg.Warningf("Forwarding raw line to %s failed: %v", f.conn.RemoteAddr(), err)
		}
		return
	}
	f.errs.reset()
}

// Close releases the socket.
func (f *LineForwarder) Close() error {
	return f.conn.Close()
}
