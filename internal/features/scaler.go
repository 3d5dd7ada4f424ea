package features

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// robustScaler centers on the per-column median and scales by the IQR, which
// keeps single-day sortie spikes from dominating the fit. A zero IQR column
// degrades to a unit divisor.
type robustScaler struct {
	center []float64
	scale  []float64
}

func (s *robustScaler) fit(rows [][]float64) {
	if len(rows) == 0 {
		return
	}
	cols := len(rows[0])
	s.center = make([]float64, cols)
	s.scale = make([]float64, cols)

	column := make([]float64, len(rows))
	for c := 0; c < cols; c++ {
		for r, row := range rows {
			column[r] = row[c]
		}
		sort.Float64s(column)
		s.center[c] = stat.Quantile(0.5, stat.Empirical, column, nil)
		iqr := stat.Quantile(0.75, stat.Empirical, column, nil) -
			stat.Quantile(0.25, stat.Empirical, column, nil)
		if iqr == 0 {
			iqr = 1
		}
		s.scale[c] = iqr
	}
}

func (s *robustScaler) transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for i, v := range row {
		out[i] = (v - s.center[i]) / s.scale[i]
	}
	return out
}

// GroupedScaler fits an independent robust scaler on the continuous and
// count feature groups; the cyclical block and the holiday flag pass through
// untouched. Each training context (the production fit and every validation
// fold) must own and fit its own instance.
type GroupedScaler struct {
	continuous robustScaler
	counts     robustScaler
	fitted     bool
}

// NewGroupedScaler returns an unfitted scaler.
func NewGroupedScaler() *GroupedScaler { return &GroupedScaler{} }

// Fit learns centers and scales from the training samples. It must be called
// exactly once per instance, before any transform.
func (g *GroupedScaler) Fit(samples []Sample) error {
	if g.fitted {
		return fmt.Errorf("grouped scaler already fitted")
	}
	if len(samples) == 0 {
		return fmt.Errorf("cannot fit scaler on zero samples")
	}
	continuous := make([][]float64, len(samples))
	counts := make([][]float64, len(samples))
	for i := range samples {
		continuous[i] = samples[i].Vector.Continuous()
		counts[i] = samples[i].Vector.Counts()
	}
	g.continuous.fit(continuous)
	g.counts.fit(counts)
	g.fitted = true
	return nil
}

// Fitted reports whether Fit has run.
func (g *GroupedScaler) Fitted() bool { return g.fitted }

// TransformBase returns cyclical ++ scaled continuous ++ scaled counts: the
// classifier input block.
func (g *GroupedScaler) TransformBase(v *Vector) []float64 {
	out := v.Cyclical()
	out = append(out, g.continuous.transform(v.Continuous())...)
	out = append(out, g.counts.transform(v.Counts())...)
	return out
}

// TransformFull appends the unscaled holiday flag to the base block: the
// regressor input.
func (g *GroupedScaler) TransformFull(v *Vector) []float64 {
	return append(g.TransformBase(v), v.Holiday)
}
