package usage

// DefaultModel is the label used when no model selector can be read.
const DefaultModel = "default"

// Limits holds per-model token ceilings used to render progress.
type Limits struct {
	Models           map[string]int64
	Default          int64
	WarningThreshold float64
}

// DefaultLimits returns the built-in ceilings. They are rough guesses,
// not published quotas.
func DefaultLimits() Limits {
	return Limits{
		Models: map[string]int64{
			"3.5 Sonnet (New)": 3_500_000,
			"3.5 Haiku":        2_500_000,
			"3 Opus":           1_500_000,
		},
		Default:          2_500_000,
		WarningThreshold: 0.9,
	}
}

// For returns the ceiling for model, falling back to Default.
func (l Limits) For(model string) int64 {
	if v, ok := l.Models[model]; ok && v > 0 {
		return v
	}
	if l.Default > 0 {
		return l.Default
	}
	return DefaultLimits().Default
}

// Percent returns total as a percentage of the model's ceiling, unclamped.
func (l Limits) Percent(model string, total int64) float64 {
	return float64(total) / float64(l.For(model)) * 100
}

// Warning reports whether total has reached the warning threshold.
func (l Limits) Warning(model string, total int64) bool {
	return float64(total) >= float64(l.For(model))*l.WarningThreshold
}
