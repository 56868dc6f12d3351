package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/mindwave.report/internal/blink"
	"github.com/banshee-data/mindwave.report/internal/thinkgear"
)

// tailBuffer is how many undelivered samples one SSE client may fall
// behind before samples are skipped for it.
const tailBuffer = 64

// TailEvent is the data of one /debug/tail server-sent event.
type TailEvent struct {
	thinkgear.Sample
	Blink *blink.Event `json:"blink,omitempty"`
}

// AttachAdminRoutes mounts the live tail and history chart under /debug/.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("history-chart", "Chart of the recent headset history", s.handleHistoryChart)

	// Server-Sent Events, one per decoded sample.
	debug.HandleSilentFunc("tail", s.handleTail)
}

func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	// The headset never blocks on a subscriber, so a client that cannot
	// keep up loses samples here instead of growing the queue.
	events := make(chan TailEvent, tailBuffer)
	id := s.h.Subscribe(func(sample thinkgear.Sample, ev *blink.Event) {
		select {
		case events <- TailEvent{Sample: sample, Blink: ev}:
		default:
		}
	})
	defer s.h.Unsubscribe(id)

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case ev := <-events:
			payload, err := json.Marshal(ev)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
