package control

// Smooth applies one exponential moving average step.
func Smooth(previous, sample, decay float64) float64 {
	return previous*(1-decay) + sample*decay
}

// AsymmetricDecay smooths with a faster decay when the sample rises above the average.
type AsymmetricDecay struct {
	Attack  float64
	Release float64
}

func (d AsymmetricDecay) Smooth(average, sample float64) float64 {
	if sample > average {
		return Smooth(average, sample, d.Attack)
	}
	return Smooth(average, sample, d.Release)
}
