// Package taylor implements a minimal truncated Taylor-series element type:
// a multivariate jet, fixed at second order, over a small set of designated
// indeterminates. It exists to satisfy the automatic-differentiation contract
// required by the symbolic-regression problem's gradient/Hessian evaluation,
// standing in for the external AD library named out of scope by the core
// specification. It is deliberately narrow: one fixed truncation order, a
// closed set of supported transcendentals, and no symbolic simplification.
package taylor

import "math"

// Element is a second-order truncated Taylor series (a 2-jet) in NVars
// designated variables. V is the constant term (constant_cf), G holds the
// first-order partials (length NVars), and H holds the second-order mixed
// partials in lower-triangular order (length NVars*(NVars+1)/2).
type Element struct {
	NVars int
	V     float64
	G     []float64
	H     []float64
}

func hidx(i, j int) int {
	if i < j {
		i, j = j, i
	}
	return i*(i+1)/2 + j
}

// NewConstant builds an Element equal to a constant, with zero derivatives.
func NewConstant(nvars int, c float64) Element {
	return Element{NVars: nvars, V: c, G: make([]float64, nvars), H: make([]float64, nvars*(nvars+1)/2)}
}

// NewVariable builds the indeterminate for variable idx (0-based), i.e. the
// Element whose value is v and whose gradient is the idx-th unit vector.
func NewVariable(nvars, idx int, v float64) Element {
	e := NewConstant(nvars, v)
	e.G[idx] = 1.0
	return e
}

// ConstantCf returns the zeroth-order coefficient.
func (e Element) ConstantCf() float64 { return e.V }

// GetDerivative returns the partial derivative selected by multiIndex, a
// per-variable order vector (e.g. [1,0] is d/dx0, [1,1] is d2/dx0dx1,
// [2,0] is d2/dx0^2). Orders above 2 or below 0 are not supported (degree-2
// truncation) and return 0.
func (e Element) GetDerivative(multiIndex []int) float64 {
	total := 0
	var nz []int
	for i, o := range multiIndex {
		total += o
		for k := 0; k < o; k++ {
			nz = append(nz, i)
		}
	}
	switch total {
	case 0:
		return e.V
	case 1:
		return e.G[nz[0]]
	case 2:
		return e.H[hidx(nz[0], nz[1])]
	default:
		return 0.0
	}
}

// Add returns a + b.
func Add(a, b Element) Element {
	out := NewConstant(a.NVars, a.V+b.V)
	for i := range out.G {
		out.G[i] = a.G[i] + b.G[i]
	}
	for i := range out.H {
		out.H[i] = a.H[i] + b.H[i]
	}
	return out
}

// Sub returns a - b.
func Sub(a, b Element) Element {
	out := NewConstant(a.NVars, a.V-b.V)
	for i := range out.G {
		out.G[i] = a.G[i] - b.G[i]
	}
	for i := range out.H {
		out.H[i] = a.H[i] - b.H[i]
	}
	return out
}

// Neg returns -a.
func Neg(a Element) Element { return Sub(NewConstant(a.NVars, 0), a) }

// Mul returns a * b via the second-order product rule.
func Mul(a, b Element) Element {
	out := NewConstant(a.NVars, a.V*b.V)
	for i := range out.G {
		out.G[i] = a.G[i]*b.V + a.V*b.G[i]
	}
	n := a.NVars
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			out.H[hidx(i, j)] = a.H[hidx(i, j)]*b.V + a.V*b.H[hidx(i, j)] + a.G[i]*b.G[j] + a.G[j]*b.G[i]
		}
	}
	return out
}

// Div returns a / b via the second-order quotient rule. Callers that need
// protected division (pdiv semantics) must guard the b.V magnitude first.
func Div(a, b Element) Element {
	invB := 1.0 / b.V
	q := a.V * invB
	out := NewConstant(a.NVars, q)
	for i := range out.G {
		out.G[i] = (a.G[i] - q*b.G[i]) * invB
	}
	n := a.NVars
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			dqi := out.G[i]
			dqj := out.G[j]
			out.H[hidx(i, j)] = (a.H[hidx(i, j)] - dqi*b.G[j] - dqj*b.G[i] - q*b.H[hidx(i, j)]) * invB
		}
	}
	return out
}

// composeUnary applies a scalar function g (with first and second
// derivatives d1, d2) to the Taylor element a via the chain rule.
func composeUnary(a Element, g, d1, d2 func(float64) float64) Element {
	fv := g(a.V)
	f1 := d1(a.V)
	f2 := d2(a.V)
	out := NewConstant(a.NVars, fv)
	for i := range out.G {
		out.G[i] = f1 * a.G[i]
	}
	n := a.NVars
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			out.H[hidx(i, j)] = f1*a.H[hidx(i, j)] + f2*a.G[i]*a.G[j]
		}
	}
	return out
}

// Exp returns e^a.
func Exp(a Element) Element {
	return composeUnary(a, math.Exp, math.Exp, math.Exp)
}

// Log returns ln(a).
func Log(a Element) Element {
	return composeUnary(a, math.Log,
		func(x float64) float64 { return 1.0 / x },
		func(x float64) float64 { return -1.0 / (x * x) })
}

// Sin returns sin(a).
func Sin(a Element) Element {
	return composeUnary(a, math.Sin, math.Cos, func(x float64) float64 { return -math.Sin(x) })
}

// Cos returns cos(a).
func Cos(a Element) Element {
	return composeUnary(a, math.Cos, func(x float64) float64 { return -math.Sin(x) }, func(x float64) float64 { return -math.Cos(x) })
}

// Tanh returns tanh(a).
func Tanh(a Element) Element {
	return composeUnary(a, math.Tanh,
		func(x float64) float64 { t := math.Tanh(x); return 1 - t*t },
		func(x float64) float64 { t := math.Tanh(x); return -2 * t * (1 - t*t) })
}

// Sigmoid returns the logistic function of a.
func Sigmoid(a Element) Element {
	sig := func(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }
	return composeUnary(a, sig,
		func(x float64) float64 { s := sig(x); return s * (1 - s) },
		func(x float64) float64 { s := sig(x); return s * (1 - s) * (1 - 2*s) })
}

// ReLu returns max(0, a); the kink at 0 is treated as having zero curvature.
func ReLu(a Element) Element {
	return composeUnary(a,
		func(x float64) float64 { return math.Max(0, x) },
		func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		},
		func(float64) float64 { return 0 })
}

// ELU returns the exponential-linear unit of a.
func ELU(a Element) Element {
	g := func(x float64) float64 {
		if x > 0 {
			return x
		}
		return math.Exp(x) - 1
	}
	d1 := func(x float64) float64 {
		if x > 0 {
			return 1
		}
		return math.Exp(x)
	}
	d2 := func(x float64) float64 {
		if x > 0 {
			return 0
		}
		return math.Exp(x)
	}
	return composeUnary(a, g, d1, d2)
}

// ISRU returns x / sqrt(1+x^2), the inverse square root unit with alpha=1.
func ISRU(a Element) Element {
	g := func(x float64) float64 { return x / math.Sqrt(1+x*x) }
	d1 := func(x float64) float64 { return math.Pow(1+x*x, -1.5) }
	d2 := func(x float64) float64 { return -3 * x * math.Pow(1+x*x, -2.5) }
	return composeUnary(a, g, d1, d2)
}

// Sum folds Add across args; it requires at least one argument.
func Sum(args []Element) Element {
	out := args[0]
	for _, a := range args[1:] {
		out = Add(out, a)
	}
	return out
}

// Diff returns args[0] - args[1].
func Diff(args []Element) Element { return Sub(args[0], args[1]) }

// Prod folds Mul across args; it requires at least one argument.
func Prod(args []Element) Element {
	out := args[0]
	for _, a := range args[1:] {
		out = Mul(out, a)
	}
	return out
}

// Quot returns args[0] / args[1].
func Quot(args []Element) Element { return Div(args[0], args[1]) }

// ProtectedQuot implements pdiv: args[0]/args[1] if |args[1]| exceeds eps,
// otherwise the constant 1 (with zero derivatives), per spec.
func ProtectedQuot(args []Element, eps float64) Element {
	if math.Abs(args[1].V) > eps {
		return Div(args[0], args[1])
	}
	return NewConstant(args[0].NVars, 1.0)
}
