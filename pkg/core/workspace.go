package core

import "fmt"

// =============================================================================
// Workspace entities
// =============================================================================

// File is a workspace file holding an ordered list of tests.
type File struct {
	ID      string
	Name    string
	TestIDs []string
}

// Test belongs to exactly one File and holds an ordered list of versions.
type Test struct {
	ID         string
	Name       string
	FileID     string
	VersionIDs []string
}

// Version is a single revision of a test's source code.
// It is the unit of parsing and execution.
type Version struct {
	ID        string
	Name      string
	TestID    string
	Code      string
	IsCurrent bool

	// LastParseVerdict is nil until a parse response for the current code
	// arrives. It is cleared whenever the code changes.
	LastParseVerdict *ParseVerdict

	// Revision increments on every code change. A verdict is only accepted
	// for the revision it was requested for.
	Revision uint64
}

// =============================================================================
// Parse verdicts
// =============================================================================

// Position is a 1-based line/column location inside version code.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// ParseProblem describes why a version failed to parse.
type ParseProblem struct {
	Message string   `json:"message"`
	From    Position `json:"from_pos"`
	To      Position `json:"to_pos"`
}

// ParseVerdict is the cached result of parsing a version's current code.
// A verdict with a nil Problem is a success.
type ParseVerdict struct {
	Problem *ParseProblem `json:"error,omitempty"`
}

// OK reports whether the verdict is a success.
func (v ParseVerdict) OK() bool {
	return v.Problem == nil
}

// VerdictOK returns a successful verdict.
func VerdictOK() ParseVerdict {
	return ParseVerdict{}
}

// VerdictError returns a failed verdict with the given problem.
func VerdictError(p ParseProblem) ParseVerdict {
	return ParseVerdict{Problem: &p}
}
