package dcgp

import (
	"math"

	"github.com/dcgp-go/dcgp/taylor"
)

// pdivEpsilon is the protected-division threshold: |b| at or below this is
// treated as zero (pdiv returns 1 rather than propagating an overflow).
const pdivEpsilon = 1e-12

// FloatFunc evaluates a kernel over plain float64 arguments.
type FloatFunc func(args []float64) float64

// TaylorFunc evaluates a kernel over second-order Taylor elements, used by
// the symbolic-regression problem to get gradients/Hessians w.r.t. constants
// "for free" from a single forward evaluation.
type TaylorFunc func(args []taylor.Element) taylor.Element

// PrintFunc renders a kernel's symbolic form given the string
// representations of its arguments. It is a pure rendering concern and must
// never influence numeric semantics.
type PrintFunc func(args []string) string

// Kernel is a named polymorphic operator: the same function evaluated over
// whichever element type a caller needs, dispatched through this tagged
// closure table rather than through type-based inheritance.
type Kernel struct {
	Name   string
	Float  FloatFunc
	Taylor TaylorFunc
	Print  PrintFunc
}

func protectedDivFloat(args []float64) float64 {
	if math.Abs(args[1]) > pdivEpsilon {
		return args[0] / args[1]
	}
	return 1.0
}

func sumFloat(args []float64) float64 {
	s := 0.0
	for _, a := range args {
		s += a
	}
	return s
}

func prodFloat(args []float64) float64 {
	p := 1.0
	for _, a := range args {
		p *= a
	}
	return p
}

func sigmoidFloat(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

func eluFloat(x float64) float64 {
	if x > 0 {
		return x
	}
	return math.Exp(x) - 1
}

func isruFloat(x float64) float64 { return x / math.Sqrt(1+x*x) }

func printNary(op string) PrintFunc {
	return func(args []string) string {
		out := args[0]
		for _, a := range args[1:] {
			out = "(" + out + op + a + ")"
		}
		return out
	}
}

func printUnary(name string) PrintFunc {
	return func(args []string) string { return name + "(" + args[0] + ")" }
}

// builtinKernels maps every kernel named by the data model to its closure
// table. The map has no order; KernelSet indices are assigned from
// insertion order, and BuiltinKernelNames gives the canonical order.
var builtinKernels = map[string]Kernel{
	"sum": {Name: "sum", Float: sumFloat, Taylor: taylor.Sum, Print: printNary("+")},
	"diff": {Name: "diff", Float: func(a []float64) float64 { return a[0] - a[1] },
		Taylor: taylor.Diff, Print: printNary("-")},
	"mul": {Name: "mul", Float: prodFloat, Taylor: taylor.Prod, Print: printNary("*")},
	"div": {Name: "div", Float: func(a []float64) float64 { return a[0] / a[1] },
		Taylor: taylor.Quot, Print: printNary("/")},
	"pdiv": {Name: "pdiv", Float: protectedDivFloat,
		Taylor: func(a []taylor.Element) taylor.Element { return taylor.ProtectedQuot(a, pdivEpsilon) },
		Print:  printNary("/")},
	"exp": {Name: "exp", Float: func(a []float64) float64 { return math.Exp(a[0]) },
		Taylor: func(a []taylor.Element) taylor.Element { return taylor.Exp(a[0]) }, Print: printUnary("exp")},
	"log": {Name: "log", Float: func(a []float64) float64 { return math.Log(a[0]) },
		Taylor: func(a []taylor.Element) taylor.Element { return taylor.Log(a[0]) }, Print: printUnary("log")},
	"sin": {Name: "sin", Float: func(a []float64) float64 { return math.Sin(a[0]) },
		Taylor: func(a []taylor.Element) taylor.Element { return taylor.Sin(a[0]) }, Print: printUnary("sin")},
	"cos": {Name: "cos", Float: func(a []float64) float64 { return math.Cos(a[0]) },
		Taylor: func(a []taylor.Element) taylor.Element { return taylor.Cos(a[0]) }, Print: printUnary("cos")},
	"tanh": {Name: "tanh", Float: func(a []float64) float64 { return math.Tanh(a[0]) },
		Taylor: func(a []taylor.Element) taylor.Element { return taylor.Tanh(a[0]) }, Print: printUnary("tanh")},
	"sig": {Name: "sig", Float: func(a []float64) float64 { return sigmoidFloat(a[0]) },
		Taylor: func(a []taylor.Element) taylor.Element { return taylor.Sigmoid(a[0]) }, Print: printUnary("sig")},
	"ReLu": {Name: "ReLu", Float: func(a []float64) float64 { return math.Max(0, a[0]) },
		Taylor: func(a []taylor.Element) taylor.Element { return taylor.ReLu(a[0]) }, Print: printUnary("ReLu")},
	"ELU": {Name: "ELU", Float: func(a []float64) float64 { return eluFloat(a[0]) },
		Taylor: func(a []taylor.Element) taylor.Element { return taylor.ELU(a[0]) }, Print: printUnary("ELU")},
	"ISRU": {Name: "ISRU", Float: func(a []float64) float64 { return isruFloat(a[0]) },
		Taylor: func(a []taylor.Element) taylor.Element { return taylor.ISRU(a[0]) }, Print: printUnary("ISRU")},
}

// BuiltinKernelNames returns the names recognized by LookupBuiltinKernel, in
// the canonical order from the data model.
func BuiltinKernelNames() []string {
	return []string{"sum", "diff", "mul", "div", "pdiv", "exp", "log", "sin", "cos", "tanh", "sig", "ReLu", "ELU", "ISRU"}
}

// LookupBuiltinKernel retrieves a built-in kernel by name.
func LookupBuiltinKernel(name string) (Kernel, error) {
	k, ok := builtinKernels[name]
	if !ok {
		return Kernel{}, NewInvalidArgument("kernel name", "unknown kernel \""+name+"\"")
	}
	return k, nil
}

// DifferentiableActivations is the restricted kernel set WeightedExpression
// accepts: the differentiable activations used as per-node nonlinearities.
func DifferentiableActivations() map[string]bool {
	return map[string]bool{"tanh": true, "sig": true, "ReLu": true, "ELU": true, "ISRU": true}
}
