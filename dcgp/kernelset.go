package dcgp

import (
	"strconv"

	"github.com/dcgp-go/dcgp/taylor"
)

// KernelSet is an ordered, deduplicated collection of kernels. Order matters:
// a kernel's position is the value function genes use to select it.
type KernelSet struct {
	kernels []Kernel
	index   map[string]int
}

// NewKernelSet builds a KernelSet from kernel names, in the given order.
// Unknown names fail with InvalidArgument; repeated names are a no-op after
// the first insertion.
func NewKernelSet(names ...string) (*KernelSet, error) {
	ks := &KernelSet{index: make(map[string]int)}
	for _, n := range names {
		if err := ks.Add(n); err != nil {
			return nil, err
		}
	}
	return ks, nil
}

// Add inserts a built-in kernel by name. Duplicate insertion is a no-op;
// an unknown name fails with InvalidArgument.
func (ks *KernelSet) Add(name string) error {
	if _, exists := ks.index[name]; exists {
		return nil
	}
	k, err := LookupBuiltinKernel(name)
	if err != nil {
		return err
	}
	ks.index[name] = len(ks.kernels)
	ks.kernels = append(ks.kernels, k)
	return nil
}

// Len returns the number of kernels in the set (K in the data model).
func (ks *KernelSet) Len() int { return len(ks.kernels) }

// Name returns the name of the kernel at index i.
func (ks *KernelSet) Name(i int) string { return ks.kernels[i].Name }

// IndexOf returns the index of a kernel by name, or false if absent.
func (ks *KernelSet) IndexOf(name string) (int, bool) {
	i, ok := ks.index[name]
	return i, ok
}

// EvalFloat evaluates kernel i over plain floats.
func (ks *KernelSet) EvalFloat(i int, args []float64) float64 {
	return ks.kernels[i].Float(args)
}

// EvalTaylor evaluates kernel i over second-order Taylor elements.
func (ks *KernelSet) EvalTaylor(i int, args []taylor.Element) taylor.Element {
	return ks.kernels[i].Taylor(args)
}

// EvalString renders kernel i's symbolic form given argument strings.
func (ks *KernelSet) EvalString(i int, args []string) string {
	return ks.kernels[i].Print(args)
}

// Validate checks that every kernel in the set also appears in allowed
// (used by WeightedExpression to restrict itself to differentiable
// activations). Returns InvalidArgument naming the first offending kernel.
func (ks *KernelSet) Validate(allowed map[string]bool) error {
	for _, k := range ks.kernels {
		if !allowed[k.Name] {
			return NewInvalidArgument("kernel \""+k.Name+"\"", "not in the allowed kernel set")
		}
	}
	return nil
}

// Clone returns an independent copy sharing no mutable state (kernels are
// themselves immutable function tables, so a shallow copy suffices).
func (ks *KernelSet) Clone() *KernelSet {
	out := &KernelSet{
		kernels: make([]Kernel, len(ks.kernels)),
		index:   make(map[string]int, len(ks.index)),
	}
	copy(out.kernels, ks.kernels)
	for k, v := range ks.index {
		out.index[k] = v
	}
	return out
}

func formatFloatVars(n int, prefix string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = prefix + strconv.Itoa(i)
	}
	return out
}
