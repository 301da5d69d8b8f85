package collector

import (
	"time"

	"github.com/scan-io-git/ot-collector/internal/checkpoint"
)

const secondsPerDay = 24 * 60 * 60

// Window is the query window of one run together with the cursor bounds that
// follow from it.
type Window struct {
	// Earliest and Latest bound the query; Latest is exclusive.
	Earliest time.Time
	Latest   time.Time
	// Floor is the lowest value the run may save as its cursor: the previous
	// cursor, or the epoch on a resync run.
	Floor int64
	// Resync is set when this run re-fetches from the epoch.
	Resync bool
	// ResyncMark is written as the full resync cursor when the run succeeds.
	// Zero leaves the stored value untouched.
	ResyncMark int64
}

// WindowParams are the inputs of PlanWindow.
type WindowParams struct {
	State      checkpoint.State
	Initial    time.Time
	Lookback   int
	ResyncDays int
	Now        time.Time
}

// PlanWindow computes the window of a run. It has no side effects: the same
// parameters always give the same window.
func PlanWindow(p WindowParams) Window {
	wall := p.Now.Unix()
	cursor, ok := p.State.Get(checkpoint.LastTimestamp)
	if !ok {
		cursor = p.Initial.Unix()
	}
	if cursor < 0 {
		cursor = 0
	}

	lookback := int64(p.Lookback)
	w := Window{
		Earliest: unixUTC(clampEpoch(cursor - lookback)),
		Latest:   unixUTC(clampEpoch(wall - lookback)),
		Floor:    cursor,
	}

	if p.ResyncDays > 0 {
		last, seen := p.State.Get(checkpoint.LastFullResync)
		switch {
		case !seen:
			// first run with resync enabled: start the interval without resetting
			w.ResyncMark = wall
		case wall >= last+int64(p.ResyncDays)*secondsPerDay:
			w.Earliest = unixUTC(0)
			w.Floor = 0
			w.Resync = true
			w.ResyncMark = wall
		}
	}
	return w
}

func clampEpoch(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func unixUTC(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
