package scanner

import (
	"cmp"
	"iter"
	"net/netip"
	"slices"
	"time"
)

// Status classifies the outcome of a single probe.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
	StatusError  Status = "ERROR"
)

// ProbeOutcome represents the outcome of one port probe.
type ProbeOutcome struct {
	Port    uint16        `json:"port"`
	Status  Status        `json:"status"`
	Reason  string        `json:"reason,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Summary counts outcomes per status.
type Summary struct {
	Open   int `json:"open"`
	Closed int `json:"closed"`
	Error  int `json:"error"`
}

// ResultSet is the ordered collection of outcomes for one scan.
// Only the scheduler appends to it; callers get a read-only view.
type ResultSet struct {
	target    netip.Addr
	portRange PortRange
	outcomes  []ProbeOutcome
	complete  bool
}

func newResultSet(target netip.Addr, r PortRange, capacity int) *ResultSet {
	return &ResultSet{
		target:    target,
		portRange: r,
		outcomes:  make([]ProbeOutcome, 0, capacity),
	}
}

func (rs *ResultSet) add(o ProbeOutcome) {
	rs.outcomes = append(rs.outcomes, o)
}

// finalize orders outcomes by port and records whether every port in range was scanned.
func (rs *ResultSet) finalize() {
	slices.SortFunc(rs.outcomes, func(a, b ProbeOutcome) int {
		return cmp.Compare(a.Port, b.Port)
	})
	rs.complete = len(rs.outcomes) == rs.portRange.Len()
}

func (rs *ResultSet) Target() netip.Addr { return rs.target }

func (rs *ResultSet) Range() PortRange { return rs.portRange }

// Complete reports whether every port in the configured range has an outcome.
// A cancelled scan is incomplete and omits the ports it never classified.
func (rs *ResultSet) Complete() bool { return rs.complete }

func (rs *ResultSet) Len() int { return len(rs.outcomes) }

// All yields outcomes in ascending port order.
func (rs *ResultSet) All() iter.Seq[ProbeOutcome] {
	return func(yield func(ProbeOutcome) bool) {
		for _, o := range rs.outcomes {
			if !yield(o) {
				return
			}
		}
	}
}

// Outcomes returns a copy of the ordered outcomes.
func (rs *ResultSet) Outcomes() []ProbeOutcome {
	return slices.Clone(rs.outcomes)
}

// Lookup returns the outcome recorded for port, if any.
func (rs *ResultSet) Lookup(port uint16) (ProbeOutcome, bool) {
	i, found := slices.BinarySearchFunc(rs.outcomes, port, func(o ProbeOutcome, p uint16) int {
		return cmp.Compare(o.Port, p)
	})
	if !found {
		return ProbeOutcome{}, false
	}
	return rs.outcomes[i], true
}

func (rs *ResultSet) Count(status Status) int {
	n := 0
	for _, o := range rs.outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Filter returns the subset with the given status. The subset keeps the parent's
// target, range and completeness flag.
func (rs *ResultSet) Filter(status Status) *ResultSet {
	sub := &ResultSet{
		target:    rs.target,
		portRange: rs.portRange,
		complete:  rs.complete,
	}
	for _, o := range rs.outcomes {
		if o.Status == status {
			sub.outcomes = append(sub.outcomes, o)
		}
	}
	return sub
}

func (rs *ResultSet) Summary() Summary {
	var s Summary
	for _, o := range rs.outcomes {
		switch o.Status {
		case StatusOpen:
			s.Open++
		case StatusClosed:
			s.Closed++
		case StatusError:
			s.Error++
		}
	}
	return s
}
