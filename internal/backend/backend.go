// Package backend defines the contracts between the run engine and the
// services that parse and execute version code.
//
// Two implementations ship with testide: local (an in-process Starlark
// sandbox) and remote (a JSON client for an HTTP execution service).
package backend

import (
	"context"

	"github.com/leapstack-labs/testide/pkg/core"
)

// Source is the code snapshot of one version sent for parsing.
type Source struct {
	VersionID string `json:"version_id"`
	Code      string `json:"code"`
}

// ParseFailure is one entry of a sparse parse response.
type ParseFailure struct {
	VersionID string            `json:"version_id"`
	Problem   core.ParseProblem `json:"error"`
}

// Parser validates a batch of versions in one request.
//
// The response is sparse: only versions that failed are returned. Versions
// absent from the response parsed successfully. A non-nil error means the
// whole batch failed and no verdicts may be derived from it.
type Parser interface {
	Parse(ctx context.Context, batch []Source) ([]ParseFailure, error)
}

// Job is a request to execute a single version within a run.
type Job struct {
	RunID     string       `json:"run_id"`
	Kind      core.RunKind `json:"kind"`
	VersionID string       `json:"version_id"`
	Code      string       `json:"code"`

	// Stop is closed when the run is asked to stop. Executors that can
	// interrupt work should watch it and report StatusStopped.
	Stop <-chan struct{} `json:"-"`
}

// Executor runs a single version. An error is a transport or service
// failure local to that unit; it never aborts the run.
type Executor interface {
	Execute(ctx context.Context, job Job) (core.UnitResult, error)
}

// Stopper is implemented by executors that want to hear about stop requests
// for a whole run.
type Stopper interface {
	StopRun(ctx context.Context, runID string) error
}

// Backend is a service that both parses and executes.
type Backend interface {
	Parser
	Executor
}

