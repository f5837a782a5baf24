package server

import (
	"net/http"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/testide/internal/notifier"
	"github.com/leapstack-labs/testide/internal/status"
)

// runSignal is the value of the "run" signal patched into the client.
type runSignal struct {
	Event  notifier.EventType `json:"event,omitempty"`
	Report *status.Report     `json:"report"`
}

// RunUpdates is the long-lived SSE endpoint for one run kind. It sends the
// current report first and patches the "run" signal on every event.
func (h *handlers) RunUpdates(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	// Subscribe before the initial send so no event falls in between.
	sub := h.engine.Notifier().Subscribe(ctrl.Kind())
	defer h.engine.Notifier().Unsubscribe(sub)

	sse := datastar.NewSSE(w, r)

	var initial runSignal
	if rep, ok := ctrl.Rollup(); ok {
		initial.Report = &rep
	}
	if err := patchRun(sse, initial); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			sig := runSignal{Event: ev.Type, Report: ev.Report}
			if sig.Report == nil {
				// Invalidations carry no report.
				rep, ok := ctrl.Rollup()
				if !ok {
					continue
				}
				sig.Report = &rep
			}
			if err := patchRun(sse, sig); err != nil {
				_ = sse.ConsoleError(err)
				if sse.IsClosed() {
					return
				}
			}
		}
	}
}

func patchRun(sse *datastar.ServerSentEventGenerator, sig runSignal) error {
	return sse.MarshalAndPatchSignals(map[string]any{"run": sig})
}
