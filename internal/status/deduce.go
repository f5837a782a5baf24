// Package status derives aggregate statuses for tests, files and whole runs
// from the statuses of their run units.
package status

import (
	"github.com/leapstack-labs/testide/pkg/core"
)

// Deduce rolls unit statuses up into a single group status. The rules are
// evaluated in order and the first match wins:
//
//  1. all units unstarted            -> unstarted
//  2. any unit unstarted or running  -> running
//  3. all units succeeded            -> success
//  4. any unit errored               -> error
//  5. any unit stopped               -> stopped
//  6. anything else                  -> *core.UndeducableStatusError
//
// The result does not depend on the order of statuses. An empty group and
// unknown statuses are defects and fail with *core.UndeducableStatusError.
func Deduce(statuses []core.Status) (core.Status, error) {
	if len(statuses) == 0 {
		return "", &core.UndeducableStatusError{}
	}

	var unstarted, running, success, failed, stopped int
	for _, s := range statuses {
		switch s {
		case core.StatusUnstarted:
			unstarted++
		case core.StatusRunning:
			running++
		case core.StatusSuccess:
			success++
		case core.StatusError:
			failed++
		case core.StatusStopped:
			stopped++
		default:
			return "", &core.UndeducableStatusError{Statuses: statuses}
		}
	}

	n := len(statuses)
	switch {
	case unstarted == n:
		return core.StatusUnstarted, nil
	case unstarted > 0 || running > 0:
		return core.StatusRunning, nil
	case success == n:
		return core.StatusSuccess, nil
	case failed > 0:
		return core.StatusError, nil
	case stopped > 0:
		return core.StatusStopped, nil
	}
	return "", &core.UndeducableStatusError{Statuses: statuses}
}

// DeduceUnits is Deduce over the statuses of units.
func DeduceUnits(units []core.RunUnit) (core.Status, error) {
	statuses := make([]core.Status, len(units))
	for i, u := range units {
		statuses[i] = u.Status
	}
	return Deduce(statuses)
}

// Elapsed sums the time taken by units, treating a missing time as zero.
// A zero sum is reported as nil ("none").
func Elapsed(units []core.RunUnit) *int64 {
	var total int64
	for _, u := range units {
		if u.TimeTakenMS != nil {
			total += *u.TimeTakenMS
		}
	}
	if total == 0 {
		return nil
	}
	return &total
}
