package status

import (
	"github.com/leapstack-labs/testide/internal/selection"
	"github.com/leapstack-labs/testide/pkg/core"
)

// Names resolves display names and existence of tree nodes.
type Names interface {
	File(id string) (core.File, bool)
	Test(id string) (core.Test, bool)
	Version(id string) (core.Version, bool)
}

// Report is the aggregated view of a run, ready for observers.
type Report struct {
	RunID    string        `json:"run_id"`
	Kind     core.RunKind  `json:"kind"`
	Phase    core.RunPhase `json:"phase"`
	Stopping bool          `json:"stopping"`
	Error    string        `json:"error,omitempty"`

	// Status is empty until units exist (gating, aborted).
	Status    core.Status `json:"status,omitempty"`
	ElapsedMS *int64      `json:"elapsed_ms,omitempty"`
	Counts    Counts      `json:"counts"`
	Files     []FileNode  `json:"files,omitempty"`

	// CanRerunFailed gates the "run failed only" action.
	CanRerunFailed bool `json:"can_rerun_failed"`
}

// Counts is the passed/failed/total roll-up of a run.
type Counts struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Stopped int `json:"stopped"`
	Total   int `json:"total"`
}

// FileNode is a file with its aggregated status.
type FileNode struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Status    core.Status `json:"status"`
	ElapsedMS *int64      `json:"elapsed_ms,omitempty"`
	Tests     []TestNode  `json:"tests"`
}

// TestNode is a test with its aggregated status.
type TestNode struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    core.Status   `json:"status"`
	ElapsedMS *int64        `json:"elapsed_ms,omitempty"`
	Versions  []VersionNode `json:"versions"`
}

// VersionNode is a leaf carrying its run unit.
type VersionNode struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	Unit core.RunUnit `json:"unit"`
}

// Rollup aggregates a run snapshot over its selection. Tests and files that
// were removed from the tree are left out of every aggregate, while a removed
// version whose test still exists keeps contributing its last status.
// An error is always a defect (see Deduce).
func Rollup(names Names, run *core.Run, sel selection.Selection) (Report, error) {
	rep := Report{
		RunID:    run.ID,
		Kind:     run.Kind,
		Phase:    run.Phase,
		Stopping: run.Stopping,
		Error:    run.Error,
	}
	if len(run.Units) == 0 {
		return rep, nil
	}

	var all []core.RunUnit
	for _, fg := range sel.Groups {
		f, ok := names.File(fg.FileID)
		if !ok {
			continue
		}
		fileNode := FileNode{ID: f.ID, Name: f.Name}
		var fileUnits []core.RunUnit

		for _, tg := range fg.Tests {
			test, ok := names.Test(tg.TestID)
			if !ok || test.FileID != f.ID {
				continue
			}
			testNode := TestNode{ID: test.ID, Name: test.Name}
			var testUnits []core.RunUnit

			for _, vid := range tg.VersionIDs {
				u, ok := run.Units[vid]
				if !ok {
					continue
				}
				name := vid
				if v, ok := names.Version(vid); ok {
					name = v.Name
				}
				testNode.Versions = append(testNode.Versions, VersionNode{ID: vid, Name: name, Unit: u})
				testUnits = append(testUnits, u)
			}
			if len(testUnits) == 0 {
				continue
			}

			s, err := DeduceUnits(testUnits)
			if err != nil {
				return rep, err
			}
			testNode.Status = s
			testNode.ElapsedMS = Elapsed(testUnits)
			fileNode.Tests = append(fileNode.Tests, testNode)
			fileUnits = append(fileUnits, testUnits...)
		}
		if len(fileUnits) == 0 {
			continue
		}

		s, err := DeduceUnits(fileUnits)
		if err != nil {
			return rep, err
		}
		fileNode.Status = s
		fileNode.ElapsedMS = Elapsed(fileUnits)
		rep.Files = append(rep.Files, fileNode)
		all = append(all, fileUnits...)
	}

	for _, u := range all {
		rep.Counts.Total++
		switch u.Status {
		case core.StatusSuccess:
			rep.Counts.Passed++
		case core.StatusError:
			rep.Counts.Failed++
		case core.StatusStopped:
			rep.Counts.Stopped++
		}
	}

	if len(all) > 0 {
		s, err := DeduceUnits(all)
		if err != nil {
			return rep, err
		}
		rep.Status = s
		rep.ElapsedMS = Elapsed(all)
	}
	rep.CanRerunFailed = run.Phase.IsTerminal() && rep.Counts.Failed > 0

	return rep, nil
}
