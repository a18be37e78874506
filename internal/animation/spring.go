package animation

import "math"

// SpringConfig describes a damped harmonic oscillator.
type SpringConfig struct {
	Damping   float64
	Stiffness float64
	Mass      float64
}

var (
	// ScaleInSpring drives the scale-in animation.
	ScaleInSpring = SpringConfig{Damping: 12, Stiffness: 200, Mass: 0.5}
	// WordSpring drives each word of the word-by-word animation.
	WordSpring = SpringConfig{Damping: 15, Stiffness: 200, Mass: 0.4}
)

// Spring returns the progress of a spring released from 0 toward 1 with zero
// initial velocity, frame frames after release. The value stays within [0,1]
// and never decreases: an underdamped spring is held at 1 from its first
// crossing of the target onward.
func Spring(frame int, fps int, cfg SpringConfig) float64 {
	if frame <= 0 || fps <= 0 {
		return 0
	}
	if cfg.Mass <= 0 || cfg.Stiffness <= 0 || cfg.Damping < 0 {
		return 1
	}

	t := float64(frame) / float64(fps)
	omega0 := math.Sqrt(cfg.Stiffness / cfg.Mass)
	zeta := cfg.Damping / (2 * math.Sqrt(cfg.Stiffness*cfg.Mass))

	var v float64
	switch {
	case zeta < 1:
		omegaD := omega0 * math.Sqrt(1-zeta*zeta)
		decay := zeta * omega0
		// First time the displacement reaches zero.
		crossing := (math.Pi - math.Atan2(omegaD, decay)) / omegaD
		if t >= crossing {
			return 1
		}
		v = 1 - math.Exp(-decay*t)*(math.Cos(omegaD*t)+(decay/omegaD)*math.Sin(omegaD*t))
	case zeta == 1:
		v = 1 - math.Exp(-omega0*t)*(1+omega0*t)
	default:
		root := math.Sqrt(zeta*zeta - 1)
		r1 := -omega0 * (zeta - root)
		r2 := -omega0 * (zeta + root)
		c1 := r2 / (r1 - r2)
		c2 := -r1 / (r1 - r2)
		v = 1 + c1*math.Exp(r1*t) + c2*math.Exp(r2*t)
	}
	return clamp01(v)
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
