// Package core defines the shared language of the testide run engine.
//
// This package contains:
//   - Workspace entities (File, Test, Version, ParseVerdict)
//   - Run entities (Run, RunUnit, Status, RunKind, RunPhase)
//   - The error taxonomy shared by the engine packages
//   - The run history Store interface
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
