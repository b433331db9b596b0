package pktdef

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Telemetry is the robot status carried in a RESPONSE body
type Telemetry struct {
	LastPktCounter uint16 `json:"last_pkt_counter"`
	CurrentGrade   uint16 `json:"current_grade"`
	HitCount       uint16 `json:"hit_count"`
	LastCmd        uint8  `json:"last_cmd"`
	LastCmdValue   uint8  `json:"last_cmd_value"`
	LastCmdSpeed   uint8  `json:"last_cmd_speed"`
}

// Bytes encodes the telemetry as a RESPONSE body
func (t Telemetry) Bytes() []byte {
	b := make([]byte, TelemetryBodySize)
	binary.LittleEndian.PutUint16(b[0:2], t.LastPktCounter)
	binary.LittleEndian.PutUint16(b[2:4], t.CurrentGrade)
	binary.LittleEndian.PutUint16(b[4:6], t.HitCount)
	b[6] = t.LastCmd
	b[7] = t.LastCmdValue
	b[8] = t.LastCmdSpeed
	return b
}

// String renders the multi-line text shown to operators
func (t Telemetry) String() string {
	var sb strings.Builder
	sb.WriteString("Telemetry Packet Received:\n")
	fmt.Fprintf(&sb, " - LastPktCounter: %d\n", t.LastPktCounter)
	fmt.Fprintf(&sb, " - CurrentGrade: %d\n", t.CurrentGrade)
	fmt.Fprintf(&sb, " - HitCount: %d\n", t.HitCount)
	fmt.Fprintf(&sb, " - LastCmd: %s\n", DirectionName(t.LastCmd))
	fmt.Fprintf(&sb, " - LastCmdValue: %d\n", t.LastCmdValue)
	fmt.Fprintf(&sb, " - LastCmdSpeed: %d", t.LastCmdSpeed)
	return sb.String()
}

// DirectionName returns the lowercase name of a drive direction
func DirectionName(dir uint8) string {
	switch dir {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Right:
		return "right"
	case Left:
		return "left"
	}
	return fmt.Sprintf("%d", dir)
}

// ParseDirection is the inverse of DirectionName. It is case-insensitive.
func ParseDirection(name string) (uint8, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "forward":
		return Forward, true
	case "backward":
		return Backward, true
	case "right":
		return Right, true
	case "left":
		return Left, true
	}
	return 0, false
}
