package gcn

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Optimizer updates parameters in place from their gradients. params and
// grads have the same layout; grads may be overwritten.
type Optimizer interface {
	Step(params, grads [][]float64)
}

// SGD is stochastic gradient descent with momentum and L2 weight decay:
//
//	g = grad + WeightDecay*p
//	v = Momentum*v + g
//	p = p - LearningRate*v
type SGD struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64

	// Velocity holds one momentum buffer per parameter, allocated on the
	// first step.
	Velocity [][]float64
}

// Step applies one update.
func (o *SGD) Step(params, grads [][]float64) {
	if o.Momentum != 0 && o.Velocity == nil {
		o.Velocity = zerosLike(params)
	}
	for i, p := range params {
		g := grads[i]
		if o.WeightDecay != 0 {
			floats.AddScaled(g, o.WeightDecay, p)
		}
		if o.Momentum != 0 {
			v := o.Velocity[i]
			floats.Scale(o.Momentum, v)
			floats.Add(v, g)
			g = v
		}
		floats.AddScaled(p, -o.LearningRate, g)
	}
}

// Adam is the Adam optimizer with L2 weight decay added to the gradient.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	WeightDecay  float64

	M [][]float64
	V [][]float64
	T int
}

// Step applies one update.
func (o *Adam) Step(params, grads [][]float64) {
	if o.M == nil {
		o.M = zerosLike(params)
		o.V = zerosLike(params)
	}
	o.T++
	c1 := 1 - math.Pow(o.Beta1, float64(o.T))
	c2 := 1 - math.Pow(o.Beta2, float64(o.T))
	for i, p := range params {
		g := grads[i]
		if o.WeightDecay != 0 {
			floats.AddScaled(g, o.WeightDecay, p)
		}
		m, v := o.M[i], o.V[i]
		for j, gj := range g {
			m[j] = o.Beta1*m[j] + (1-o.Beta1)*gj
			v[j] = o.Beta2*v[j] + (1-o.Beta2)*gj*gj
			p[j] -= o.LearningRate * (m[j] / c1) / (math.Sqrt(v[j]/c2) + o.Epsilon)
		}
	}
}

// newOptimizer returns the optimizer named by cfg.Optimizer.
func newOptimizer(cfg Config) Optimizer {
	if cfg.Optimizer == OptAdam {
		return &Adam{
			LearningRate: cfg.LearningRate,
			Beta1:        cfg.Beta1,
			Beta2:        cfg.Beta2,
			Epsilon:      cfg.Epsilon,
			WeightDecay:  cfg.WeightDecay,
		}
	}
	return &SGD{
		LearningRate: cfg.LearningRate,
		Momentum:     cfg.Momentum,
		WeightDecay:  cfg.WeightDecay,
	}
}

func zerosLike(xs [][]float64) [][]float64 {
	out := make([][]float64, len(xs))
	for i, x := range xs {
		out[i] = make([]float64, len(x))
	}
	return out
}
