package pktdef

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"
)

// CmdType is the command carried in the low nibble of the flags byte
type CmdType int

const (
	CmdDrive CmdType = iota
	CmdSleep
	CmdResponse
)

func (c CmdType) String() string {
	switch c {
	case CmdDrive:
		return "drive"
	case CmdSleep:
		return "sleep"
	case CmdResponse:
		return "response"
	}
	return fmt.Sprintf("cmd(%d)", int(c))
}

// Drive directions
const (
	Forward  uint8 = 1
	Backward uint8 = 2
	Right    uint8 = 3
	Left     uint8 = 4
)

const (
	// HeaderSize is PktCount(2) + Flags(1) + Length(1)
	HeaderSize = 4
	// CRCSize is the trailing checksum byte
	CRCSize = 1
	// MaxBodySize keeps the total length inside the one-byte length field
	MaxBodySize = 0xFF - HeaderSize - CRCSize

	DriveBodySize     = 3
	TelemetryBodySize = 9
)

const (
	flagDrive    uint8 = 0b0000_0001
	flagResponse uint8 = 0b0000_0010
	flagSleep    uint8 = 0b0000_0100
	flagAck      uint8 = 0b0000_1000
	cmdMask      uint8 = 0b0000_1111
)

var (
	ErrShortPacket  = errors.New("pktdef: packet shorter than declared length")
	ErrBadLength    = errors.New("pktdef: invalid length field")
	ErrBadCRC       = errors.New("pktdef: crc mismatch")
	ErrBodyTooLarge = errors.New("pktdef: body too large")
	ErrShortBody    = errors.New("pktdef: body too short")
)

// DriveBody is the 3-byte payload of a drive command
type DriveBody struct {
	Direction uint8 `json:"direction"`
	Duration  uint8 `json:"duration"`
	Speed     uint8 `json:"speed"`
}

// Packet is a single robot command or response frame.
//
// The zero value is an empty DRIVE packet with count 0.
type Packet struct {
	PktCount uint16
	Flags    uint8
	Body     []byte
	crc      uint8
}

// SetCmd replaces the command bits, keeping the ACK flag.
func (p *Packet) SetCmd(cmd CmdType) {
	p.Flags &^= cmdMask &^ flagAck
	switch cmd {
	case CmdDrive:
		p.Flags |= flagDrive
	case CmdResponse:
		p.Flags |= flagResponse
	case CmdSleep:
		p.Flags |= flagSleep
	}
}

// Cmd decodes the command bits. When several are set DRIVE wins over
// RESPONSE, which wins over SLEEP; no bit at all reads as DRIVE.
func (p *Packet) Cmd() CmdType {
	switch {
	case p.Flags&flagDrive != 0:
		return CmdDrive
	case p.Flags&flagResponse != 0:
		return CmdResponse
	case p.Flags&flagSleep != 0:
		return CmdSleep
	}
	return CmdDrive
}

func (p *Packet) SetAck(ack bool) {
	if ack {
		p.Flags |= flagAck
	} else {
		p.Flags &^= flagAck
	}
}

func (p *Packet) Ack() bool {
	return p.Flags&flagAck != 0
}

// SetBody copies raw body bytes into the packet
func (p *Packet) SetBody(body []byte) error {
	if len(body) > MaxBodySize {
		return fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(body))
	}
	p.Body = append([]byte(nil), body...)
	return nil
}

// SetDriveBody sets the direction/duration/speed payload
func (p *Packet) SetDriveBody(dir, dur, spd uint8) {
	p.Body = []byte{dir, dur, spd}
}

// DriveBody returns the drive payload, or a zero body when the packet
// is too short to carry one.
func (p *Packet) DriveBody() DriveBody {
	if len(p.Body) < DriveBodySize {
		return DriveBody{}
	}
	return DriveBody{Direction: p.Body[0], Duration: p.Body[1], Speed: p.Body[2]}
}

// Telemetry decodes the 9-byte status body of a RESPONSE packet
func (p *Packet) Telemetry() (Telemetry, error) {
	if len(p.Body) < TelemetryBodySize {
		return Telemetry{}, fmt.Errorf("%w: need %d bytes, have %d", ErrShortBody, TelemetryBodySize, len(p.Body))
	}
	b := p.Body
	return Telemetry{
		LastPktCounter: binary.LittleEndian.Uint16(b[0:2]),
		CurrentGrade:   binary.LittleEndian.Uint16(b[2:4]),
		HitCount:       binary.LittleEndian.Uint16(b[4:6]),
		LastCmd:        b[6],
		LastCmdValue:   b[7],
		LastCmdSpeed:   b[8],
	}, nil
}

// Length is the total wire length including header and CRC
func (p *Packet) Length() int {
	return HeaderSize + len(p.Body) + CRCSize
}

// CRC returns the checksum last computed by CalcCRC or read by Unmarshal
func (p *Packet) CRC() uint8 {
	return p.crc
}

// CalcCRC counts the 1-bits over the header and body
func (p *Packet) CalcCRC() {
	p.crc = popcount(p.header()) + popcount(p.Body)
}

func (p *Packet) header() []byte {
	h := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(h[0:2], p.PktCount)
	h[2] = p.Flags
	h[3] = uint8(p.Length())
	return h
}

// Marshal computes the CRC and serializes the packet
func (p *Packet) Marshal() ([]byte, error) {
	if len(p.Body) > MaxBodySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(p.Body))
	}
	p.CalcCRC()
	buf := make([]byte, 0, p.Length())
	buf = append(buf, p.header()...)
	buf = append(buf, p.Body...)
	buf = append(buf, p.crc)
	return buf, nil
}

// Unmarshal parses a raw frame. Trailing bytes past the declared length
// are ignored. The CRC is read but not verified; use CheckCRC for that.
func Unmarshal(raw []byte) (*Packet, error) {
	if len(raw) < HeaderSize+CRCSize {
		return nil, ErrShortPacket
	}
	length := int(raw[3])
	if length < HeaderSize+CRCSize {
		return nil, fmt.Errorf("%w: %d", ErrBadLength, length)
	}
	if len(raw) < length {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrShortPacket, len(raw), length)
	}
	p := &Packet{
		PktCount: binary.LittleEndian.Uint16(raw[0:2]),
		Flags:    raw[2],
		crc:      raw[length-1],
	}
	if n := length - HeaderSize - CRCSize; n > 0 {
		p.Body = append([]byte(nil), raw[HeaderSize:HeaderSize+n]...)
	}
	return p, nil
}

// CheckCRC verifies that the last byte of frame equals the bit count of
// everything before it.
func CheckCRC(frame []byte) bool {
	if len(frame) < 1 {
		return false
	}
	return popcount(frame[:len(frame)-1]) == frame[len(frame)-1]
}

// Decode unmarshals a frame and rejects it when the checksum is wrong
func Decode(raw []byte) (*Packet, error) {
	p, err := Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	if !CheckCRC(raw[:p.Length()]) {
		return nil, ErrBadCRC
	}
	return p, nil
}

func popcount(b []byte) uint8 {
	var n uint8
	for _, v := range b {
		n += uint8(bits.OnesCount8(v))
	}
	return n
}

// ReadFrame reads exactly one length-prefixed frame from a stream
func ReadFrame(r io.Reader) ([]byte, error) {
	head := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	length := int(head[3])
	if length < HeaderSize+CRCSize {
		return nil, fmt.Errorf("%w: %d", ErrBadLength, length)
	}
	frame := make([]byte, length)
	copy(frame, head)
	if _, err := io.ReadFull(r, frame[HeaderSize:]); err != nil {
		return nil, err
	}
	return frame, nil
}
