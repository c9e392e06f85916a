package pdr

import "fmt"

// CalibrationType selects how an operator correction is applied to the
// recorded path.
type CalibrationType int

const (
	// AddLine appends the corrected point, leaving a visible jump.
	AddLine CalibrationType = iota
	// SetPosition overwrites the last recorded point.
	SetPosition
	// ShiftPath translates the whole path by the correction offset.
	ShiftPath
)

func (c CalibrationType) String() string {
	switch c {
	case AddLine:
		return "add_line"
	case SetPosition:
		return "set_position"
	case ShiftPath:
		return "shift_path"
	default:
		return fmt.Sprintf("calibration(%d)", int(c))
	}
}

// ParseCalibrationType maps a name produced by String back to its type.
func ParseCalibrationType(s string) (CalibrationType, error) {
	switch s {
	case "add_line":
		return AddLine, nil
	case "set_position":
		return SetPosition, nil
	case "shift_path":
		return ShiftPath, nil
	}
	return 0, fmt.Errorf("unknown calibration type %q", s)
}

// MarshalText encodes the type by name.
func (c CalibrationType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a type name.
func (c *CalibrationType) UnmarshalText(b []byte) error {
	v, err := ParseCalibrationType(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Calibrate applies a correction from prev to next on history and returns
// the resulting history. The input slice is modified in place; AddLine may
// return a reallocated slice.
func Calibrate(history []Position, prev, next Position, kind CalibrationType) []Position {
	switch kind {
	case AddLine:
		return append(history, next)
	case SetPosition:
		if len(history) > 0 {
			history[len(history)-1] = next
		}
		return history
	case ShiftPath:
		offset := next.Sub(prev)
		for i := range history {
			history[i] = history[i].Add(offset)
		}
		return history
	}
	return history
}
