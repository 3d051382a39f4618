package httpapi

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chart "github.com/wcharczuk/go-chart/v2"

	"makerwatch/internal/model"
)

func (s *Server) supplyChart(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	snap, ok := s.state.Supply(token)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown token "+token)
		return
	}

	var buf bytes.Buffer
	if err := renderSupplyPNG(&buf, snap); err != nil {
		s.logger.Error().Err(err).Str("token", token).Msg("render supply chart")
		s.writeError(w, http.StatusInternalServerError, "render chart failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// renderSupplyPNG plots the recorded window followed by the current reading.
func renderSupplyPNG(out io.Writer, snap model.SupplySnapshot) error {
	x := make([]time.Time, 0, len(snap.History)+1)
	y := make([]float64, 0, len(snap.History)+1)
	for _, sample := range snap.History {
		x = append(x, sample.Timestamp)
		y = append(y, sample.Value.Scaled())
	}
	if len(x) == 0 || snap.Timestamp.After(x[len(x)-1]) {
		x = append(x, snap.Timestamp)
		y = append(y, snap.Value.Scaled())
	}
	// go-chart needs two points to derive a range
	if len(x) == 1 {
		x = append([]time.Time{x[0].Add(-time.Minute)}, x...)
		y = append([]float64{y[0]}, y...)
	}

	supplyFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.3f")
	}
	graph := chart.Chart{
		Title:  fmt.Sprintf("%s total supply (last %s)", snap.Token, snap.Window),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           fmt.Sprintf("Supply (%s)", snap.Unit),
			ValueFormatter: supplyFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    snap.Token,
				XValues: x,
				YValues: y,
			},
		},
	}
	if lo, hi := bounds(y); lo == hi {
		// a flat series has no y-range of its own
		pad := math.Max(math.Abs(lo)*0.001, 1)
		graph.YAxis.Range = &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, out)
}

func bounds(values []float64) (lo, hi float64) {
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
