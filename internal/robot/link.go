package robot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rovercontrol/robot-panel/internal/pktdef"
)

// Protocol selects the socket type used to reach the robot
type Protocol string

const (
	ProtocolUDP Protocol = "udp"
	ProtocolTCP Protocol = "tcp"
)

// ParseProtocol accepts "udp" or "tcp" in any case. Empty means UDP.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "udp":
		return ProtocolUDP, nil
	case "tcp":
		return ProtocolTCP, nil
	}
	return "", fmt.Errorf("%w: unsupported protocol %q", ErrInvalidTarget, s)
}

// Target identifies a robot endpoint
type Target struct {
	Host     string   `json:"ip"`
	Port     int      `json:"port"`
	Protocol Protocol `json:"protocol"`
}

// Addr returns host:port
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	return fmt.Sprintf("%s://%s", t.Protocol, t.Addr())
}

// Validate checks host, port and protocol
func (t Target) Validate() error {
	if strings.TrimSpace(t.Host) == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidTarget)
	}
	if t.Port < 1 || t.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidTarget, t.Port)
	}
	if t.Protocol != ProtocolUDP && t.Protocol != ProtocolTCP {
		return fmt.Errorf("%w: unsupported protocol %q", ErrInvalidTarget, t.Protocol)
	}
	return nil
}

// Transport moves raw frames to and from the robot
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Link is a client socket connected to a robot
type Link struct {
	target  Target
	conn    net.Conn
	bufSize int
	mu      sync.Mutex
}

// Dial opens a client socket to the robot. For UDP this only binds the
// remote address; no packet is exchanged.
func Dial(ctx context.Context, target Target, bufSize int) (*Link, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if bufSize <= 0 {
		bufSize = 1024
	}

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, string(target.Protocol), target.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to robot: %w", err)
	}

	return &Link{
		target:  target,
		conn:    conn,
		bufSize: bufSize,
	}, nil
}

// Target returns the endpoint this link was dialed with
func (l *Link) Target() Target {
	return l.target
}

// Send writes one frame
func (l *Link) Send(ctx context.Context, frame []byte) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}

	conn.SetWriteDeadline(deadline(ctx, 10*time.Second))
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("failed to send data to robot: %w", err)
	}
	return nil
}

// Receive reads one frame. For UDP that is one datagram of at most the
// buffer size; for TCP the frame is delimited by its length byte.
func (l *Link) Receive(ctx context.Context) ([]byte, error) {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return nil, net.ErrClosed
	}

	conn.SetReadDeadline(deadline(ctx, 10*time.Second))

	var frame []byte
	var err error
	if l.target.Protocol == ProtocolTCP {
		frame, err = pktdef.ReadFrame(conn)
	} else {
		buf := make([]byte, l.bufSize)
		var n int
		n, err = conn.Read(buf)
		frame = buf[:n]
	}
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, ErrNoResponse
		}
		return nil, fmt.Errorf("failed to read from robot: %w", err)
	}
	return frame, nil
}

// Close closes the robot connection
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		err := l.conn.Close()
		l.conn = nil
		return err
	}
	return nil
}

func deadline(ctx context.Context, fallback time.Duration) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(fallback)
}
