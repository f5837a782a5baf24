// Package output renders command results for terminals, markdown consumers
// and machines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
)

// OutputMode selects how results are rendered.
type OutputMode string

// Output modes.
const (
	ModeAuto     OutputMode = "auto" // TTY=text, non-TTY=markdown
	ModeText     OutputMode = "text"
	ModeMarkdown OutputMode = "markdown"
	ModeJSON     OutputMode = "json"
)

// Mode converts a configured output format into an OutputMode. Unknown
// values fall back to auto.
func Mode(s string) OutputMode {
	switch OutputMode(s) {
	case ModeText, ModeMarkdown, ModeJSON:
		return OutputMode(s)
	default:
		return ModeAuto
	}
}

// Renderer writes command output in the selected mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   OutputMode
	isTTY  bool
	styles *Styles
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode OutputMode) *Renderer {
	isTTY := false
	if f, ok := out.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}
	return NewRendererWithTTY(out, errOut, isTTY, mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode OutputMode) *Renderer {
	r := &Renderer{out: out, errOut: errOut, mode: mode, isTTY: isTTY}
	if r.EffectiveMode() == ModeText && isTTY {
		r.styles = NewStyles()
	} else {
		r.styles = plainStyles()
	}
	return r
}

// EffectiveMode resolves auto into text or markdown.
func (r *Renderer) EffectiveMode() OutputMode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool {
	return r.isTTY
}

// Styles returns the styles for the effective mode.
func (r *Renderer) Styles() *Styles {
	return r.styles
}

// Writer returns the standard output writer.
func (r *Renderer) Writer() io.Writer {
	return r.out
}

// Println writes a line to standard output.
func (r *Renderer) Println(s string) {
	_, _ = fmt.Fprintln(r.out, s)
}

// Printf writes formatted output to standard output.
func (r *Renderer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// Header writes a level 1 or 2 heading.
func (r *Renderer) Header(level int, title string) {
	if r.EffectiveMode() == ModeMarkdown {
		prefix := "#"
		if level > 1 {
			prefix = "##"
		}
		r.Println(prefix + " " + title)
		r.Println("")
		return
	}
	style := r.styles.Header1
	if level > 1 {
		style = r.styles.Header2
	}
	r.Println(style.Render(title))
}

// Success writes a success message.
func (r *Renderer) Success(msg string) {
	r.Println(r.styles.Success.Render("✓ " + msg))
}

// Warning writes a warning to the error stream.
func (r *Renderer) Warning(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render("! "+msg))
}

// Error writes an error to the error stream.
func (r *Renderer) Error(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render("✗ "+msg))
}

// Muted writes secondary information.
func (r *Renderer) Muted(msg string) {
	r.Println(r.styles.Muted.Render(msg))
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// JSONLine writes v as one compact JSON line.
func (r *Renderer) JSONLine(v any) error {
	return json.NewEncoder(r.out).Encode(v)
}

// Table renders rows under header, as a box table in text mode and as a
// markdown table otherwise.
func (r *Renderer) Table(header table.Row, rows []table.Row) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.AppendHeader(header)
	t.AppendRows(rows)

	if r.EffectiveMode() == ModeText {
		t.SetStyle(table.StyleLight)
		t.Render()
		return
	}
	t.RenderMarkdown()
}
