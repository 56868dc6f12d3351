package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/mindwave.report/internal/blink"
	"github.com/banshee-data/mindwave.report/internal/db"
	"github.com/banshee-data/mindwave.report/internal/headset"
	"github.com/banshee-data/mindwave.report/internal/history"
	"github.com/banshee-data/mindwave.report/internal/serialport"
	"github.com/banshee-data/mindwave.report/internal/version"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	headset.Status
	Stats     headset.Stats `json:"stats"`
	LastBlink *blink.Event  `json:"last_blink"`
	Version   string        `json:"version"`
	GitSHA    string        `json:"git_sha"`
}

func (s *Server) status() StatusResponse {
	return StatusResponse{
		Status:    s.h.Status(),
		Stats:     s.h.Stats(),
		LastBlink: s.h.LastBlink(),
		Version:   version.Version,
		GitSHA:    version.GitSHA,
	}
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	err := s.h.Connect(s.ctx)
	switch {
	case errors.Is(err, headset.ErrAlreadyConnected):
		s.writeJSONError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.writeJSONError(w, http.StatusBadGateway, err.Error())
	default:
		s.writeJSON(w, http.StatusOK, s.status())
	}
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	err := s.h.Disconnect()
	switch {
	case errors.Is(err, headset.ErrNotConnected):
		s.writeJSONError(w, http.StatusConflict, err.Error())
	case err != nil:
		// the loop has stopped; only closing the port failed
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to close port: %v", err))
	default:
		s.writeJSON(w, http.StatusOK, s.status())
	}
}

// ChannelHistory is the body of GET /api/history?channel=.
type ChannelHistory struct {
	Channel history.Channel  `json:"channel"`
	Values  []float64        `json:"values"`
	Summary *history.Summary `json:"summary,omitempty"`
}

// HistoryResponse is the body of GET /api/history.
type HistoryResponse struct {
	Channels  history.Snapshot                    `json:"channels"`
	Summaries map[history.Channel]history.Summary `json:"summaries,omitempty"`
}

func (s *Server) showHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	withSummary := q.Get("summary") == "1" || q.Get("summary") == "true"

	if name := q.Get("channel"); name != "" {
		ch, err := history.ParseChannel(name)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp := ChannelHistory{Channel: ch, Values: s.h.HistoryChannel(ch)}
		if resp.Values == nil {
			resp.Values = []float64{}
		}
		if withSummary {
			sum := history.Summarize(resp.Values)
			resp.Summary = &sum
		}
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	resp := HistoryResponse{Channels: s.h.History()}
	if withSummary {
		resp.Summaries = make(map[history.Channel]history.Summary, len(resp.Channels))
		for ch, values := range resp.Channels {
			resp.Summaries[ch] = history.Summarize(values)
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) requireDB(w http.ResponseWriter, r *http.Request) (int, bool) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return 0, false
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "recording is disabled")
		return 0, false
	}
	limit, ok := limitParam(r)
	if !ok {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
		return 0, false
	}
	return limit, true
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.requireDB(w, r)
	if !ok {
		return
	}
	rows, err := s.db.RecentSamples(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve samples: %v", err))
		return
	}
	if rows == nil {
		rows = []db.SampleRow{}
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) listBlinks(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.requireDB(w, r)
	if !ok {
		return
	}
	rows, err := s.db.RecentBlinks(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve blinks: %v", err))
		return
	}
	if rows == nil {
		rows = []db.BlinkRow{}
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.requireDB(w, r)
	if !ok {
		return
	}
	rows, err := s.db.Sessions(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve sessions: %v", err))
		return
	}
	if rows == nil {
		rows = []db.Session{}
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) listPorts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ports, err := s.ListPorts()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ports == nil {
		ports = []serialport.PortInfo{}
	}
	s.writeJSON(w, http.StatusOK, ports)
}
