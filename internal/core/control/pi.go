package control

import "math"

type Gains struct {
	Kc float64
	Ki float64
}

type Bounds struct {
	MaxOutput   float64
	ClampOutput bool
}

type StepResult struct {
	Output           int
	Integral         float64
	ProportionalTerm float64
	IntegralTerm     float64
}

// MaxIntegral is the anti-windup ceiling of the accumulator.
func MaxIntegral(g Gains, b Bounds) float64 {
	return b.MaxOutput / g.Ki
}

func InitialIntegral(initialOutput float64, g Gains) float64 {
	return initialOutput / g.Ki
}

// Step advances the PI controller by one error sample.
func Step(e, integral float64, g Gains, b Bounds) StepResult {
	integral += e
	integral = math.Max(0, math.Min(integral, MaxIntegral(g, b)))

	yp := g.Kc * e
	yi := g.Ki * integral

	out := math.Round(math.Max(0, yp+yi))
	if b.ClampOutput {
		out = math.Min(out, b.MaxOutput)
	}
	return StepResult{
		Output:           int(out),
		Integral:         integral,
		ProportionalTerm: yp,
		IntegralTerm:     yi,
	}
}
