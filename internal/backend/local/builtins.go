package local

import (
	"fmt"
	"strings"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/testide/pkg/core"
)

// predeclaredNames is the set of globals every script may reference.
// Parsing resolves against it, so it must match predeclared.
var predeclaredNames = map[string]struct{}{
	"assert_eq":   {},
	"assert_true": {},
	"fail":        {},
	"log":         {},
	"KIND":        {},
}

// predeclared returns the globals for one execution. log writes to out.
func predeclared(kind core.RunKind, out *strings.Builder) starlark.StringDict {
	return starlark.StringDict{
		"assert_eq":   starlark.NewBuiltin("assert_eq", assertEq),
		"assert_true": starlark.NewBuiltin("assert_true", assertTrue),
		"fail":        starlark.NewBuiltin("fail", failBuiltin),
		"log":         starlark.NewBuiltin("log", logBuiltin(out)),
		"KIND":        starlark.String(kind),
	}
}

func assertEq(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var got, want starlark.Value
	var msg string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "got", &got, "want", &want, "msg?", &msg); err != nil {
		return nil, err
	}
	eq, err := starlark.Equal(got, want)
	if err != nil {
		return nil, err
	}
	if !eq {
		if msg == "" {
			msg = "values differ"
		}
		return nil, fmt.Errorf("assert_eq: %s: got %s, want %s", msg, got, want)
	}
	return starlark.None, nil
}

func assertTrue(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var cond starlark.Value
	var msg string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "cond", &cond, "msg?", &msg); err != nil {
		return nil, err
	}
	if !cond.Truth() {
		if msg == "" {
			msg = "condition is false"
		}
		return nil, fmt.Errorf("assert_true: %s", msg)
	}
	return starlark.None, nil
}

func failBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var msg string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &msg); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("fail: %s", msg)
}

func logBuiltin(out *strings.Builder) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			if s, ok := starlark.AsString(a); ok {
				parts[i] = s
			} else {
				parts[i] = a.String()
			}
		}
		out.WriteString(strings.Join(parts, " "))
		out.WriteByte('\n')
		return starlark.None, nil
	}
}
