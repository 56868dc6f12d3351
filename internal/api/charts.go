package api

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/mindwave.report/internal/history"
)

// channelParam reads ?channel=, defaulting to attention.
func channelParam(r *http.Request) (history.Channel, error) {
	name := r.URL.Query().Get("channel")
	if name == "" {
		return history.Attention, nil
	}
	return history.ParseChannel(name)
}

// historyPNG renders one channel of the history as a line plot.
func (s *Server) historyPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ch, err := channelParam(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	values := s.h.HistoryChannel(ch)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (last %d samples)", ch, len(values))
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = string(ch)

	if len(values) > 0 {
		pts := make(plotter.XYs, len(values))
		for i, v := range values {
			pts[i].X = float64(i)
			pts[i].Y = v
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("plot error: %v", err))
			return
		}
		line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
		line.Width = vg.Points(1.5)
		p.Add(line, plotter.NewGrid())
	}

	wt, err := p.WriterTo(8*vg.Inch, 3*vg.Inch, "png")
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}

// handleHistoryChart renders the eSense and band histories as an
// interactive go-echarts page. ?channel= may be repeated to pick series.
func (s *Server) handleHistoryChart(w http.ResponseWriter, r *http.Request) {
	channels := []history.Channel{history.Attention, history.Meditation}
	if names := r.URL.Query()["channel"]; len(names) > 0 {
		channels = channels[:0]
		for _, name := range names {
			ch, err := history.ParseChannel(name)
			if err != nil {
				s.writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			channels = append(channels, ch)
		}
	}

	snap := s.h.History()
	longest := 0
	for _, ch := range channels {
		if n := len(snap[ch]); n > longest {
			longest = n
		}
	}
	x := make([]string, longest)
	for i := range x {
		x[i] = strconv.Itoa(i)
	}

	st := s.h.Status()
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "MindWave History", Theme: "dark", Width: "1100px", Height: "560px"}),
		charts.WithTitleOpts(opts.Title{Title: "Headset History", Subtitle: fmt.Sprintf("port=%s connected=%v samples=%d", st.Path, st.Connected, longest)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Sample", NameLocation: "middle", NameGap: 25}),
	)
	line.SetXAxis(x)
	for _, ch := range channels {
		values := snap[ch]
		// right-align shorter series so the newest values line up
		data := make([]opts.LineData, longest)
		offset := longest - len(values)
		for i, v := range values {
			data[offset+i] = opts.LineData{Value: v}
		}
		line.AddSeries(string(ch), data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
