package robot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/rovercontrol/robot-panel/internal/pktdef"
)

var (
	ErrNotConnected   = errors.New("robot not connected")
	ErrInvalidTarget  = errors.New("invalid robot target")
	ErrUnknownCommand = errors.New("unknown command")
	ErrOutOfRange     = errors.New("value out of range")
	ErrNoResponse     = errors.New("no response from robot")
	ErrNak            = errors.New("robot rejected command")
	ErrBadReply       = errors.New("unexpected reply from robot")
)

// SleepCommand is the telecommand name that puts the robot to sleep
const SleepCommand = "sleep"

// DialFunc opens a transport to a target
type DialFunc func(ctx context.Context, target Target, bufSize int) (Transport, error)

// Options configures a Controller
type Options struct {
	BufferSize      int
	ResponseTimeout time.Duration
	RequestAck      bool
	Dial            DialFunc
}

// Reply summarizes the robot's answer to a telecommand
type Reply struct {
	PktCount uint16         `json:"pkt_count"`
	Cmd      pktdef.CmdType `json:"-"`
	Acked    bool           `json:"acked"`
}

// Status reports the controller's connection
type Status struct {
	Connected   bool      `json:"connected"`
	Target      Target    `json:"target"`
	PktCount    uint16    `json:"pkt_count"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
}

// Controller owns the link to one robot and runs request/reply exchanges
// over it. Exchanges are serialized and each reply must carry the packet
// count of its request; stale replies left over from a timed-out exchange
// are discarded.
type Controller struct {
	opts Options

	// xmu serializes exchanges; mu guards the fields below and is never
	// held across network I/O
	xmu         sync.Mutex
	mu          sync.Mutex
	link        Transport
	target      Target
	pktCount    uint16
	connectedAt time.Time
}

// NewController creates a controller with no active link
func NewController(opts Options) *Controller {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = 2 * time.Second
	}
	if opts.Dial == nil {
		opts.Dial = func(ctx context.Context, t Target, n int) (Transport, error) {
			return Dial(ctx, t, n)
		}
	}
	return &Controller{opts: opts}
}

// Connect dials target and replaces any existing link
func (c *Controller) Connect(ctx context.Context, target Target) error {
	if err := target.Validate(); err != nil {
		return err
	}
	link, err := c.opts.Dial(ctx, target, c.opts.BufferSize)
	if err != nil {
		return err
	}

	c.mu.Lock()
	old := c.link
	c.link = link
	c.target = target
	c.pktCount = 0
	c.connectedAt = time.Now()
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	log.Printf("Robot link open: %s", target)
	return nil
}

// Disconnect closes the active link, if any
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link == nil {
		return nil
	}
	err := c.link.Close()
	c.link = nil
	return err
}

// Status returns the current connection state
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		Connected:   c.link != nil,
		Target:      c.target,
		PktCount:    c.pktCount,
		ConnectedAt: c.connectedAt,
	}
}

// Execute runs a named telecommand. "sleep" ignores duration and angle;
// any other name must be a drive direction.
func (c *Controller) Execute(ctx context.Context, command string, duration, angle int) (Reply, error) {
	if strings.EqualFold(strings.TrimSpace(command), SleepCommand) {
		return c.Sleep(ctx)
	}
	return c.Drive(ctx, command, duration, angle)
}

// Drive sends a DRIVE packet and waits for the ACK
func (c *Controller) Drive(ctx context.Context, direction string, duration, speed int) (Reply, error) {
	dir, ok := pktdef.ParseDirection(direction)
	if !ok {
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownCommand, direction)
	}
	if err := checkByte("duration", duration); err != nil {
		return Reply{}, err
	}
	if err := checkByte("speed", speed); err != nil {
		return Reply{}, err
	}

	var p pktdef.Packet
	p.SetCmd(pktdef.CmdDrive)
	p.SetDriveBody(dir, uint8(duration), uint8(speed))
	return c.command(ctx, &p)
}

// Sleep sends a SLEEP packet and waits for the ACK
func (c *Controller) Sleep(ctx context.Context) (Reply, error) {
	var p pktdef.Packet
	p.SetCmd(pktdef.CmdSleep)
	return c.command(ctx, &p)
}

// RequestTelemetry sends an empty RESPONSE packet and decodes the
// robot's status reply.
func (c *Controller) RequestTelemetry(ctx context.Context) (pktdef.Telemetry, error) {
	var p pktdef.Packet
	p.SetCmd(pktdef.CmdResponse)

	reply, err := c.exchange(ctx, &p)
	if err != nil {
		return pktdef.Telemetry{}, err
	}
	if reply.Cmd() != pktdef.CmdResponse {
		return pktdef.Telemetry{}, fmt.Errorf("%w: got %s, want response", ErrBadReply, reply.Cmd())
	}
	t, err := reply.Telemetry()
	if err != nil {
		return pktdef.Telemetry{}, fmt.Errorf("%w: %v", ErrBadReply, err)
	}
	return t, nil
}

func (c *Controller) command(ctx context.Context, p *pktdef.Packet) (Reply, error) {
	reply, err := c.exchange(ctx, p)
	if err != nil {
		return Reply{}, err
	}
	r := Reply{PktCount: p.PktCount, Cmd: p.Cmd(), Acked: reply.Ack()}
	if !r.Acked {
		return r, ErrNak
	}
	return r, nil
}

// exchange stamps the packet count, sends p and returns the reply that
// carries the same count
func (c *Controller) exchange(ctx context.Context, p *pktdef.Packet) (*pktdef.Packet, error) {
	c.xmu.Lock()
	defer c.xmu.Unlock()

	c.mu.Lock()
	link := c.link
	if link == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pktCount++
	p.PktCount = c.pktCount
	protocol := c.target.Protocol
	c.mu.Unlock()

	p.SetAck(c.opts.RequestAck)
	frame, err := p.Marshal()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.ResponseTimeout)
	defer cancel()

	if err := link.Send(ctx, frame); err != nil {
		return nil, err
	}
	for {
		raw, err := link.Receive(ctx)
		if err != nil {
			// a TCP read cut short may leave half a frame in the stream
			if protocol == ProtocolTCP {
				c.drop(link)
			}
			return nil, err
		}
		reply, err := pktdef.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadReply, err)
		}
		switch {
		case reply.PktCount == p.PktCount:
			return reply, nil
		case olderCount(reply.PktCount, p.PktCount):
			log.Printf("Discarding stale robot reply for packet %d (waiting for %d)", reply.PktCount, p.PktCount)
		default:
			return nil, fmt.Errorf("%w: reply for packet %d, want %d", ErrBadReply, reply.PktCount, p.PktCount)
		}
	}
}

// drop closes link and forgets it if it is still the active one
func (c *Controller) drop(link Transport) {
	c.mu.Lock()
	if c.link == link {
		c.link = nil
	}
	c.mu.Unlock()
	link.Close()
	log.Printf("Robot link dropped after a failed read")
}

// olderCount reports whether got precedes want, allowing for wraparound
func olderCount(got, want uint16) bool {
	return int16(want-got) > 0
}

func checkByte(name string, v int) error {
	if v < 0 || v > 0xFF {
		return fmt.Errorf("%w: %s %d not in 0..255", ErrOutOfRange, name, v)
	}
	return nil
}
