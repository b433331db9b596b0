package panel

import (
	"strconv"
	"strings"
	"unicode"
)

// ConnectRequest is the body of POST /connect. Protocol is only sent when
// the operator picked one.
type ConnectRequest struct {
	IP       string `json:"ip"`
	Port     *int   `json:"port"`
	Protocol string `json:"protocol,omitempty"`
}

// Telecommand is the body of PUT /telecommand/. A nil Duration or Angle is
// the not-a-number sentinel and encodes as null.
type Telecommand struct {
	Command  string `json:"command"`
	Duration *int   `json:"duration"`
	Angle    *int   `json:"angle"`
}

// SleepCommand returns the fixed payload sent by SendSleep. Each call
// builds a fresh value so callers cannot alter later sleeps.
func SleepCommand() Telecommand {
	return Telecommand{Command: "sleep", Duration: Int(0), Angle: Int(0)}
}

// DriveForm holds the raw drive form fields as typed by the operator
type DriveForm struct {
	Direction string
	Duration  string
	Speed     string
}

// Int returns a pointer to v
func Int(v int) *int {
	return &v
}

// ParseInt parses the leading integer of s the way a browser's parseInt
// does: leading whitespace and an optional sign are skipped, a 0x prefix
// selects hex, and parsing stops at the first non-digit. It returns nil
// (not-a-number) when no digit is found or the value does not fit an int.
func ParseInt(s string) *int {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)

	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	base := 10
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
	}

	end := 0
	for end < len(s) && isDigit(s[end], base) {
		end++
	}
	if end == 0 {
		return nil
	}

	digits := s[:end]
	if neg {
		digits = "-" + digits
	}
	v, err := strconv.ParseInt(digits, base, strconv.IntSize)
	if err != nil {
		return nil
	}
	return Int(int(v))
}

func isDigit(c byte, base int) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case base == 16 && c >= 'a' && c <= 'f':
		return true
	case base == 16 && c >= 'A' && c <= 'F':
		return true
	}
	return false
}
