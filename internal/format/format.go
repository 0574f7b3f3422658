// Package format turns derived metrics into the strings and colour classes
// shown in the pool, analytics and lab tables.
package format

import (
	"math"
	"strconv"
)

const (
	DefaultPayoutDecimals = 3
	DefaultPctDecimals    = 1
)

// Missing is rendered for values the API did not provide.
const Missing = "-"

// EmDash is rendered for ROI values that cannot be computed.
const EmDash = "—"

// Tone classifies a metric for colouring.
type Tone string

const (
	ToneMuted          Tone = "muted"
	ToneStrongPositive Tone = "strong-positive"
	TonePositive       Tone = "positive"
	ToneNeutral        Tone = "neutral"
	ToneWarning        Tone = "warning"
	ToneNegative       Tone = "negative"
)

var toneClasses = map[Tone]string{
	ToneMuted:          "text-gray-400",
	ToneStrongPositive: "text-green-700 font-semibold",
	TonePositive:       "text-green-600",
	ToneNeutral:        "text-gray-700",
	ToneWarning:        "text-yellow-600",
	ToneNegative:       "text-red-600",
}

// Class returns the Tailwind class for the tone.
func (t Tone) Class() string {
	if c, ok := toneClasses[t]; ok {
		return c
	}
	return toneClasses[ToneNeutral]
}

// PayoutX formats a payout multiplier, e.g. 1.235x.
func PayoutX(v *float64, decimals int) string {
	if v == nil {
		return Missing
	}
	return strconv.FormatFloat(*v, 'f', decimals, 64) + "x"
}

// Pct formats a probability or ratio as a percentage.
func Pct(v *float64, decimals int) string {
	if v == nil {
		return Missing
	}
	return strconv.FormatFloat(*v*100, 'f', decimals, 64) + "%"
}

// PayoutColor buckets an expected payout multiplier.
func PayoutColor(v *float64) Tone {
	switch {
	case v == nil:
		return ToneNeutral
	case *v >= 1.2:
		return ToneStrongPositive
	case *v >= 0.9:
		return ToneWarning
	default:
		return ToneNegative
	}
}

// RoiColor buckets an ROI where 1.0 is break-even.
func RoiColor(v float64) Tone {
	switch {
	case v >= 2.0:
		return ToneStrongPositive
	case v >= 1.5:
		return TonePositive
	case v >= 1.0:
		return ToneNeutral
	case v >= 0.5:
		return ToneWarning
	default:
		return ToneNegative
	}
}

// Roi formats an ROI with two decimals.
func Roi(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return EmDash
	}
	return strconv.FormatFloat(v, 'f', 2, 64) + "x"
}

// Ptr is a convenience for building nullable metrics from literals.
func Ptr(v float64) *float64 {
	return &v
}

// Metric is the JSON shape the console renders for a formatted number.
type Metric struct {
	Value   *float64 `json:"value"`
	Display string   `json:"display"`
	Tone    Tone     `json:"tone"`
	Class   string   `json:"class"`
}

// PayoutMetric bundles the formatted payout with its colour.
func PayoutMetric(v *float64) Metric {
	tone := PayoutColor(v)
	return Metric{Value: v, Display: PayoutX(v, DefaultPayoutDecimals), Tone: tone, Class: tone.Class()}
}

// PctMetric bundles a percentage. Percentages carry no colour.
func PctMetric(v *float64) Metric {
	return Metric{Value: v, Display: Pct(v, DefaultPctDecimals), Tone: ToneNeutral, Class: ToneNeutral.Class()}
}

// RoiMetric bundles an ROI with its colour. Non-finite values are reported
// with a nil value so they survive JSON encoding.
func RoiMetric(v float64) Metric {
	tone := RoiColor(v)
	m := Metric{Display: Roi(v), Tone: tone, Class: tone.Class()}
	if !math.IsNaN(v) && !math.IsInf(v, 0) {
		m.Value = Ptr(v)
	} else {
		m.Tone = ToneMuted
		m.Class = ToneMuted.Class()
	}
	return m
}
