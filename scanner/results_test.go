package scanner

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildResultSet(r PortRange, outcomes ...ProbeOutcome) *ResultSet {
	rs := newResultSet(netip.MustParseAddr("192.0.2.1"), r, len(outcomes))
	for _, o := range outcomes {
		rs.add(o)
	}
	rs.finalize()
	return rs
}

func TestResultSet_OrderedAndQueries(t *testing.T) {
	t.Parallel()

	rs := buildResultSet(PortRange{Start: 20, End: 24},
		ProbeOutcome{Port: 23, Status: StatusClosed},
		ProbeOutcome{Port: 20, Status: StatusOpen},
		ProbeOutcome{Port: 24, Status: StatusError, Reason: "local resource exhaustion"},
		ProbeOutcome{Port: 22, Status: StatusOpen},
		ProbeOutcome{Port: 21, Status: StatusClosed},
	)

	require.True(t, rs.Complete())
	require.Equal(t, 5, rs.Len())

	var ports []uint16
	for o := range rs.All() {
		ports = append(ports, o.Port)
	}
	assert.Equal(t, []uint16{20, 21, 22, 23, 24}, ports)

	assert.Equal(t, 2, rs.Count(StatusOpen))
	assert.Equal(t, 2, rs.Count(StatusClosed))
	assert.Equal(t, 1, rs.Count(StatusError))
	assert.Equal(t, Summary{Open: 2, Closed: 2, Error: 1}, rs.Summary())

	open := rs.Filter(StatusOpen)
	assert.Equal(t, 2, open.Len())
	assert.Equal(t, rs.Target(), open.Target())
	for o := range open.All() {
		assert.Equal(t, StatusOpen, o.Status)
	}

	o, ok := rs.Lookup(24)
	require.True(t, ok)
	assert.Equal(t, StatusError, o.Status)
	_, ok = rs.Lookup(99)
	assert.False(t, ok)
}

func TestResultSet_IncompleteWhenPortsMissing(t *testing.T) {
	t.Parallel()

	rs := buildResultSet(PortRange{Start: 1, End: 10},
		ProbeOutcome{Port: 2, Status: StatusClosed},
		ProbeOutcome{Port: 1, Status: StatusClosed},
	)
	assert.False(t, rs.Complete())
	assert.False(t, rs.Filter(StatusClosed).Complete())
	assert.Equal(t, PortRange{Start: 1, End: 10}, rs.Range())
}

func TestResultSet_OutcomesIsACopy(t *testing.T) {
	t.Parallel()

	rs := buildResultSet(PortRange{Start: 1, End: 1}, ProbeOutcome{Port: 1, Status: StatusOpen})
	copied := rs.Outcomes()
	copied[0].Status = StatusClosed

	o, ok := rs.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, StatusOpen, o.Status)
}
