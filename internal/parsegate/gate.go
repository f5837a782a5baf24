// Package parsegate makes sure every version of a run carries a parse
// verdict for its current code before the run may execute.
package parsegate

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/leapstack-labs/testide/internal/backend"
	"github.com/leapstack-labs/testide/internal/tree"
	"github.com/leapstack-labs/testide/pkg/core"
)

// Gate requests parsing for versions that lack a verdict and merges the
// sparse results back into the tree. It is the only writer of verdicts.
type Gate struct {
	tree   *tree.Tree
	parser backend.Parser
	logger *slog.Logger

	// inflight collapses concurrent EnsureParsed calls sharing a key.
	inflight singleflight.Group
}

// Config holds gate configuration.
type Config struct {
	Tree   *tree.Tree
	Parser backend.Parser
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates a gate.
func New(cfg Config) *Gate {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gate{
		tree:   cfg.Tree,
		parser: cfg.Parser,
		logger: logger,
	}
}

// EnsureParsed returns the ids among versionIDs whose verdict is an error,
// in input order. Versions without a verdict are parsed in one batched
// request first; versions that already carry a verdict are never re-sent.
//
// Calls sharing key while a batch is outstanding wait for that batch and
// receive its result instead of issuing a duplicate request. Callers use the
// run id as key.
//
// A failed batch returns *core.ParseServiceError and writes no verdicts.
func (g *Gate) EnsureParsed(ctx context.Context, key string, versionIDs []string) ([]string, error) {
	v, err, shared := g.inflight.Do(key, func() (any, error) {
		return g.ensure(ctx, versionIDs)
	})
	if shared {
		g.logger.Debug("joined in-flight parse", "key", key)
	}
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (g *Gate) ensure(ctx context.Context, versionIDs []string) ([]string, error) {
	var (
		needsParse []tree.ParseInput
		failed     = make(map[string]bool)
	)

	for _, id := range versionIDs {
		v, ok := g.tree.Version(id)
		if !ok {
			return nil, &core.OrphanVersionError{VersionID: id}
		}
		if v.LastParseVerdict == nil {
			needsParse = append(needsParse, tree.ParseInput{VersionID: id, Code: v.Code, Revision: v.Revision})
			continue
		}
		if !v.LastParseVerdict.OK() {
			failed[id] = true
		}
	}

	if len(needsParse) > 0 {
		newlyFailed, err := g.parse(ctx, needsParse)
		if err != nil {
			return nil, err
		}
		for _, id := range newlyFailed {
			failed[id] = true
		}
	}

	var result []string
	for _, id := range versionIDs {
		if failed[id] {
			result = append(result, id)
			delete(failed, id)
		}
	}
	return result, nil
}

// parse issues the batch and records every verdict atomically.
func (g *Gate) parse(ctx context.Context, inputs []tree.ParseInput) ([]string, error) {
	batch := make([]backend.Source, len(inputs))
	for i, in := range inputs {
		batch[i] = backend.Source{VersionID: in.VersionID, Code: in.Code}
	}

	g.logger.Debug("requesting parse", "versions", len(batch))

	failures, err := g.parser.Parse(ctx, batch)
	if err != nil {
		var pse *core.ParseServiceError
		if errors.As(err, &pse) {
			return nil, err
		}
		return nil, &core.ParseServiceError{Message: "batch request failed", Cause: err}
	}

	writes, unknown := CompleteSparse(inputs, failures)
	if len(unknown) > 0 {
		g.logger.Warn("parse response named versions outside the batch", "ids", unknown)
	}

	var failed []string
	for _, w := range writes {
		if !w.Verdict.OK() {
			failed = append(failed, w.VersionID)
		}
	}

	// A stale verdict belongs to code that has since changed. It is dropped
	// and the version fails this gate.
	stale := g.tree.RecordVerdicts(writes)
	for _, id := range stale {
		g.logger.Info("version modified while parsing", "version_id", id)
	}
	failed = append(failed, stale...)

	g.logger.Debug("parse complete", "versions", len(inputs), "failed", len(failed))
	return failed, nil
}
