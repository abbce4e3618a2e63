package scanner

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
)

// DefaultPortRange is used when no range expression is supplied.
var DefaultPortRange = PortRange{Start: 1, End: 1024}

// PortRange is a closed interval of TCP ports.
type PortRange struct {
	Start uint16 `json:"start"`
	End   uint16 `json:"end"`
}

// ParsePortRange extracts start and end port from the "start-end" format.
// An empty expression yields DefaultPortRange; anything malformed is a *ConfigError.
func ParsePortRange(text string) (PortRange, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return DefaultPortRange, nil
	}

	parts := strings.Split(text, "-")
	if len(parts) != 2 {
		return PortRange{}, newConfigError("ports", text, fmt.Errorf("%w: use startPort-endPort", ErrInvalidRange))
	}

	start, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 16)
	if err != nil {
		return PortRange{}, newConfigError("ports", text, fmt.Errorf("%w: start port is not a number: %s", ErrInvalidRange, parts[0]))
	}

	end, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 16)
	if err != nil {
		return PortRange{}, newConfigError("ports", text, fmt.Errorf("%w: end port is not a number: %s", ErrInvalidRange, parts[1]))
	}

	if start > end {
		return PortRange{}, newConfigError("ports", text, fmt.Errorf("%w: start port must be less than or equal to end port", ErrInvalidRange))
	}

	return PortRange{Start: uint16(start), End: uint16(end)}, nil
}

// ParsePortRangeLenient falls back to DefaultPortRange on any parse failure.
// The boolean reports whether the fallback was taken.
func ParsePortRangeLenient(text string) (PortRange, bool) {
	r, err := ParsePortRange(text)
	if err != nil {
		return DefaultPortRange, true
	}
	return r, false
}

// All yields every port from Start to End inclusive, ascending.
func (r PortRange) All() iter.Seq[uint16] {
	return func(yield func(uint16) bool) {
		for p := uint32(r.Start); p <= uint32(r.End); p++ {
			if !yield(uint16(p)) {
				return
			}
		}
	}
}

// Len returns the number of ports in the range.
func (r PortRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return int(r.End) - int(r.Start) + 1
}

func (r PortRange) Contains(port uint16) bool {
	return port >= r.Start && port <= r.End
}

func (r PortRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}
