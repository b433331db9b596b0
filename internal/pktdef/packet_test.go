package pktdef

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrivePacketWireFormat(t *testing.T) {
	var p Packet
	p.SetCmd(CmdDrive)
	p.SetAck(false)
	p.PktCount = 1
	p.SetDriveBody(Forward, 5, 90)

	raw, err := p.Marshal()
	require.NoError(t, err)

	// header 01 00 01 08 has 3 set bits, body 01 05 5a has 7
	assert.Equal(t, []byte{0x01, 0x00, 0x01, 0x08, 0x01, 0x05, 0x5a, 10}, raw)
	assert.Equal(t, 8, p.Length())
	assert.Equal(t, uint8(10), p.CRC())
	assert.True(t, CheckCRC(raw))
}

func TestCmdFlags(t *testing.T) {
	var p Packet
	assert.Equal(t, CmdDrive, p.Cmd(), "no bits reads as drive")

	p.SetCmd(CmdSleep)
	assert.Equal(t, CmdSleep, p.Cmd())
	assert.Equal(t, uint8(0b0100), p.Flags)

	p.SetAck(true)
	p.SetCmd(CmdResponse)
	assert.Equal(t, CmdResponse, p.Cmd())
	assert.True(t, p.Ack(), "SetCmd keeps the ack bit")

	p.SetAck(false)
	assert.False(t, p.Ack())
	assert.Equal(t, uint8(0b0010), p.Flags)
}

func TestCmdPrecedence(t *testing.T) {
	p := Packet{Flags: flagSleep | flagResponse}
	assert.Equal(t, CmdResponse, p.Cmd())

	p.Flags |= flagDrive
	assert.Equal(t, CmdDrive, p.Cmd())
}

func TestUnmarshalRoundTrip(t *testing.T) {
	p := Packet{PktCount: 0x1234}
	p.SetCmd(CmdSleep)
	p.SetAck(true)

	raw, err := p.Marshal()
	require.NoError(t, err)
	require.Len(t, raw, HeaderSize+CRCSize)

	got, err := Decode(append(raw, 0xff, 0xff))
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), got.PktCount)
	assert.Equal(t, CmdSleep, got.Cmd())
	assert.True(t, got.Ack())
	assert.Empty(t, got.Body)
	assert.Equal(t, p.CRC(), got.CRC())
}

func TestDecodeRejectsCorruptFrames(t *testing.T) {
	var p Packet
	p.SetDriveBody(Left, 3, 40)
	raw, err := p.Marshal()
	require.NoError(t, err)

	bad := append([]byte(nil), raw...)
	bad[5] ^= 0x01
	_, err = Decode(bad)
	assert.ErrorIs(t, err, ErrBadCRC)

	_, err = Decode(raw[:3])
	assert.ErrorIs(t, err, ErrShortPacket)

	_, err = Decode(raw[:len(raw)-1])
	assert.ErrorIs(t, err, ErrShortPacket)

	short := append([]byte(nil), raw...)
	short[3] = 2
	_, err = Decode(short)
	assert.ErrorIs(t, err, ErrBadLength)
}

func TestTelemetryBody(t *testing.T) {
	want := Telemetry{
		LastPktCounter: 513,
		CurrentGrade:   87,
		HitCount:       4,
		LastCmd:        Right,
		LastCmdValue:   6,
		LastCmdSpeed:   95,
	}
	p := Packet{}
	p.SetCmd(CmdResponse)
	require.NoError(t, p.SetBody(want.Bytes()))

	raw, err := p.Marshal()
	require.NoError(t, err)
	decoded, err := Decode(raw)
	require.NoError(t, err)

	got, err := decoded.Telemetry()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Contains(t, got.String(), "LastCmd: right")

	_, err = (&Packet{Body: []byte{1, 2}}).Telemetry()
	assert.ErrorIs(t, err, ErrShortBody)
}

func TestDriveBodyTooShort(t *testing.T) {
	p := Packet{Body: []byte{1}}
	assert.Equal(t, DriveBody{}, p.DriveBody())
}

func TestSetBodyLimit(t *testing.T) {
	var p Packet
	assert.NoError(t, p.SetBody(make([]byte, MaxBodySize)))
	assert.ErrorIs(t, p.SetBody(make([]byte, MaxBodySize+1)), ErrBodyTooLarge)
}

func TestCRCWrapsAtByte(t *testing.T) {
	var p Packet
	require.NoError(t, p.SetBody(bytesOf(0xff, 40)))
	raw, err := p.Marshal()
	require.NoError(t, err)
	assert.True(t, CheckCRC(raw))
	// 320 body bits plus the header, truncated to a byte
	assert.Equal(t, uint8((320+popcountInt(p.header()))%256), p.CRC())
}

func TestParseDirection(t *testing.T) {
	for _, name := range []string{"forward", "backward", "right", "left"} {
		dir, ok := ParseDirection(name)
		require.True(t, ok, name)
		assert.Equal(t, name, DirectionName(dir))
	}
	dir, ok := ParseDirection(" Forward ")
	assert.True(t, ok)
	assert.Equal(t, Forward, dir)

	_, ok = ParseDirection("sideways")
	assert.False(t, ok)
}

func bytesOf(v byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func popcountInt(b []byte) int {
	n := 0
	for _, v := range b {
		for ; v != 0; v >>= 1 {
			n += int(v & 1)
		}
	}
	return n
}
