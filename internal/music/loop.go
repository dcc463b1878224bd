package music

import (
	"fmt"
	"strings"
)

type LoopMode int

const (
	LoopOff LoopMode = iota
	LoopSingle
	LoopAll
)

func (m LoopMode) Valid() bool {
	return m >= LoopOff && m <= LoopAll
}

func (m LoopMode) String() string {
	switch m {
	case LoopOff:
		return "off"
	case LoopSingle:
		return "single"
	case LoopAll:
		return "all"
	default:
		return fmt.Sprintf("LoopMode(%d)", int(m))
	}
}

// ParseLoopMode accepts the mode names and their numeric forms 0, 1 and 2.
func ParseLoopMode(s string) (LoopMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none", "0":
		return LoopOff, nil
	case "single", "track", "song", "1":
		return LoopSingle, nil
	case "all", "queue", "2":
		return LoopAll, nil
	}
	return LoopOff, fmt.Errorf("%w: %q", ErrInvalidLoopMode, s)
}
