package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSliderValue(t *testing.T) {
	tests := []struct {
		name   string
		slider Slider
		input  float64
		want   float64
	}{
		{name: "diamond size on step", slider: DiamondSizeSlider, input: 0.7, want: 0.7},
		{name: "diamond size snaps", slider: DiamondSizeSlider, input: 0.33, want: 0.3},
		{name: "diamond size below min", slider: DiamondSizeSlider, input: -2, want: 0},
		{name: "diamond size above max", slider: DiamondSizeSlider, input: 1.4, want: 1},
		{name: "edge softness snaps up", slider: EdgeSoftnessSlider, input: 38, want: 40},
		{name: "edge softness snaps down", slider: EdgeSoftnessSlider, input: 41, want: 40},
		{name: "edge softness above max", slider: EdgeSoftnessSlider, input: 250, want: 100},
		{name: "rotation on step", slider: RotationSlider, input: 90, want: 90},
		{name: "rotation snaps", slider: RotationSlider, input: 100, want: 105},
		{name: "rotation full turn", slider: RotationSlider, input: 360, want: 360},
		{name: "rotation negative", slider: RotationSlider, input: -15, want: 0},
		{name: "nan", slider: RotationSlider, input: math.NaN(), want: 0},
		{name: "infinity", slider: EdgeSoftnessSlider, input: math.Inf(1), want: 100},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.slider.Value(tc.input))
		})
	}
}

func TestSliderValueStaysOnGrid(t *testing.T) {
	for _, s := range []Slider{DiamondSizeSlider, EdgeSoftnessSlider, RotationSlider} {
		for v := s.Min - s.Step; v <= s.Max+s.Step; v += s.Step / 3 {
			got := s.Value(v)
			assert.GreaterOrEqual(t, got, s.Min, "%s(%v)", s.Name, v)
			assert.LessOrEqual(t, got, s.Max, "%s(%v)", s.Name, v)

			steps := (got - s.Min) / s.Step
			assert.InDelta(t, math.Round(steps), steps, 1e-9, "%s(%v) = %v is off grid", s.Name, v, got)
		}
	}
}

func TestParamsApply(t *testing.T) {
	diamond := 0.7
	rotation := 95.0

	got := DefaultParams().Apply(ParamsPatch{DiamondSize: &diamond, Rotation: &rotation})

	assert.Equal(t, Params{DiamondSize: 0.7, EdgeSoftness: 20, Rotation: 90}, got)
}

func TestParamsFormFields(t *testing.T) {
	p := Params{DiamondSize: 0.7, EdgeSoftness: 40, Rotation: 90}

	assert.Equal(t, map[string]string{
		"diamond_size":  "0.7",
		"edge_softness": "40",
		"rotation":      "90",
	}, p.FormFields())
	assert.Equal(t, "params(diamond_size=0.7,edge_softness=40,rotation=90)", p.String())
}

func TestDefaultParams(t *testing.T) {
	assert.Equal(t, map[string]string{
		"diamond_size":  "0.5",
		"edge_softness": "20",
		"rotation":      "0",
	}, DefaultParams().FormFields())
}
