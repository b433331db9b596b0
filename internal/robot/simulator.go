package robot

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/rovercontrol/robot-panel/internal/pktdef"
)

// Simulator is a stand-in robot that speaks the packet protocol over UDP
// or TCP. It ACKs well-formed drive and sleep packets, NAKs anything it
// cannot act on and answers telemetry requests with its counters.
type Simulator struct {
	protocol Protocol
	pc       net.PacketConn
	ln       net.Listener

	mu     sync.Mutex
	state  pktdef.Telemetry
	asleep bool

	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once
}

// NewSimulator binds addr (e.g. "127.0.0.1:0") for the given protocol
func NewSimulator(protocol Protocol, addr string) (*Simulator, error) {
	s := &Simulator{
		protocol: protocol,
		closed:   make(chan struct{}),
		state:    pktdef.Telemetry{CurrentGrade: 100},
	}

	var err error
	switch protocol {
	case ProtocolUDP:
		s.pc, err = net.ListenPacket("udp", addr)
	case ProtocolTCP:
		s.ln, err = net.Listen("tcp", addr)
	default:
		return nil, fmt.Errorf("%w: unsupported protocol %q", ErrInvalidTarget, protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("simulator listen: %w", err)
	}
	return s, nil
}

// Addr returns the bound address
func (s *Simulator) Addr() net.Addr {
	if s.pc != nil {
		return s.pc.LocalAddr()
	}
	return s.ln.Addr()
}

// Target returns a Target that dials this simulator
func (s *Simulator) Target() Target {
	host, port := splitAddr(s.Addr())
	return Target{Host: host, Port: port, Protocol: s.protocol}
}

// Serve answers packets until ctx is cancelled or Close is called
func (s *Simulator) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.closed:
		}
	}()

	if s.pc != nil {
		return s.serveUDP()
	}
	return s.serveTCP()
}

// Close stops the simulator and waits for connection handlers
func (s *Simulator) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		if s.pc != nil {
			err = s.pc.Close()
		}
		if s.ln != nil {
			err = s.ln.Close()
		}
	})
	s.wg.Wait()
	return err
}

// Telemetry returns the simulator's current counters
func (s *Simulator) Telemetry() pktdef.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Asleep reports whether the last accepted command was sleep
func (s *Simulator) Asleep() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asleep
}

func (s *Simulator) serveUDP() error {
	buf := make([]byte, 1024)
	for {
		n, from, err := s.pc.ReadFrom(buf)
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return err
		}
		reply := s.Handle(buf[:n])
		if reply == nil {
			continue
		}
		if _, err := s.pc.WriteTo(reply, from); err != nil {
			log.Printf("Simulator write error: %v", err)
		}
	}
}

func (s *Simulator) serveTCP() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

func (s *Simulator) serveConn(conn net.Conn) {
	defer conn.Close()
	go func() {
		<-s.closed
		conn.Close()
	}()

	for {
		frame, err := pktdef.ReadFrame(conn)
		if err != nil {
			return
		}
		reply := s.Handle(frame)
		if reply == nil {
			continue
		}
		if _, err := conn.Write(reply); err != nil {
			return
		}
	}
}

// Handle computes the reply frame for one inbound frame. It returns nil
// for input too short to carry a header.
func (s *Simulator) Handle(frame []byte) []byte {
	p, err := pktdef.Unmarshal(frame)
	if err != nil {
		return nil
	}
	if !pktdef.CheckCRC(frame[:p.Length()]) {
		return s.reply(p.PktCount, p.Cmd(), false, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch p.Cmd() {
	case pktdef.CmdDrive:
		body := p.DriveBody()
		if len(p.Body) < pktdef.DriveBodySize || !validDirection(body.Direction) {
			return s.reply(p.PktCount, pktdef.CmdDrive, false, nil)
		}
		s.state.LastPktCounter = p.PktCount
		s.state.LastCmd = body.Direction
		s.state.LastCmdValue = body.Duration
		s.state.LastCmdSpeed = body.Speed
		s.state.HitCount++
		s.asleep = false
		return s.reply(p.PktCount, pktdef.CmdDrive, true, nil)

	case pktdef.CmdSleep:
		s.state.LastPktCounter = p.PktCount
		s.state.LastCmd = 0
		s.state.LastCmdValue = 0
		s.state.LastCmdSpeed = 0
		s.asleep = true
		return s.reply(p.PktCount, pktdef.CmdSleep, true, nil)

	case pktdef.CmdResponse:
		return s.reply(p.PktCount, pktdef.CmdResponse, true, s.state.Bytes())
	}
	return nil
}

func (s *Simulator) reply(count uint16, cmd pktdef.CmdType, ack bool, body []byte) []byte {
	r := pktdef.Packet{PktCount: count}
	r.SetCmd(cmd)
	r.SetAck(ack)
	r.Body = body
	raw, err := r.Marshal()
	if err != nil {
		return nil
	}
	return raw
}

func (s *Simulator) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func validDirection(dir uint8) bool {
	return dir >= pktdef.Forward && dir <= pktdef.Left
}

func splitAddr(addr net.Addr) (string, int) {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.String(), a.Port
	case *net.TCPAddr:
		return a.IP.String(), a.Port
	}
	return "", 0
}
