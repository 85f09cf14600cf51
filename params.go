package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Slider describes a range control: values are clamped to [Min, Max]
// and snapped to the nearest Step counted from Min.
type Slider struct {
	Name    string  `json:"name"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Step    float64 `json:"step"`
	Default float64 `json:"default"`
}

var (
	DiamondSizeSlider  = Slider{Name: "diamond_size", Min: 0, Max: 1, Step: 0.1, Default: 0.5}
	EdgeSoftnessSlider = Slider{Name: "edge_softness", Min: 0, Max: 100, Step: 5, Default: 20}
	RotationSlider     = Slider{Name: "rotation", Min: 0, Max: 360, Step: 15, Default: 0}
)

// Value returns v clamped and quantized to the slider's domain.
func (s Slider) Value(v float64) float64 {
	if math.IsNaN(v) {
		return s.Min
	}
	if v <= s.Min {
		return s.Min
	}
	if v >= s.Max {
		return s.Max
	}
	if s.Step > 0 {
		v = s.Min + math.Round((v-s.Min)/s.Step)*s.Step
		// 7*0.1 is 0.7000000000000001
		v = roundTo(v, s.decimals())
	}
	return math.Min(math.Max(v, s.Min), s.Max)
}

// decimals is the number of fractional digits in Step.
func (s Slider) decimals() int {
	str := strconv.FormatFloat(s.Step, 'f', -1, 64)
	if i := strings.IndexByte(str, '.'); i >= 0 {
		return len(str) - i - 1
	}
	return 0
}

func roundTo(v float64, decimals int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', decimals, 64), 64)
	if err != nil {
		return v
	}
	return r
}

type Params struct {
	DiamondSize  float64 `json:"diamond_size"`
	EdgeSoftness float64 `json:"edge_softness"`
	Rotation     float64 `json:"rotation"`
}

func DefaultParams() Params {
	return Params{
		DiamondSize:  DiamondSizeSlider.Default,
		EdgeSoftness: EdgeSoftnessSlider.Default,
		Rotation:     RotationSlider.Default,
	}
}

// ParamsPatch carries the sliders that moved; nil fields are left alone.
type ParamsPatch struct {
	DiamondSize  *float64 `json:"diamond_size,omitempty"`
	EdgeSoftness *float64 `json:"edge_softness,omitempty"`
	Rotation     *float64 `json:"rotation,omitempty"`
}

func (p Params) Apply(patch ParamsPatch) Params {
	if patch.DiamondSize != nil {
		p.DiamondSize = DiamondSizeSlider.Value(*patch.DiamondSize)
	}
	if patch.EdgeSoftness != nil {
		p.EdgeSoftness = EdgeSoftnessSlider.Value(*patch.EdgeSoftness)
	}
	if patch.Rotation != nil {
		p.Rotation = RotationSlider.Value(*patch.Rotation)
	}
	return p
}

// FormFields renders the parameters the way the effect service expects them:
// the shortest decimal representation of each value.
func (p Params) FormFields() map[string]string {
	return map[string]string{
		DiamondSizeSlider.Name:  formatFloat(p.DiamondSize),
		EdgeSoftnessSlider.Name: formatFloat(p.EdgeSoftness),
		RotationSlider.Name:     formatFloat(p.Rotation),
	}
}

func (p Params) String() string {
	return fmt.Sprintf("params(diamond_size=%s,edge_softness=%s,rotation=%s)",
		formatFloat(p.DiamondSize), formatFloat(p.EdgeSoftness), formatFloat(p.Rotation))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
