package gapop_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dcgp-go/dcgp/gapop"
)

func TestNonDominatedFront(t *testing.T) {
	p := gapop.New()
	p.PushBack([]float64{0}, []float64{1, 4})
	p.PushBack([]float64{1}, []float64{2, 2})
	p.PushBack([]float64{2}, []float64{3, 1})
	p.PushBack([]float64{3}, []float64{5, 5}) // dominated by every other point

	front := p.NonDominatedFront()
	require.ElementsMatch(t, []int{0, 1, 2}, front)
}

func TestSelectBestNMOReturnsNonDominatedSubset(t *testing.T) {
	p := gapop.New()
	p.PushBack([]float64{0}, []float64{1, 5})
	p.PushBack([]float64{1}, []float64{2, 3})
	p.PushBack([]float64{2}, []float64{3, 2})
	p.PushBack([]float64{3}, []float64{4, 1})
	p.PushBack([]float64{4}, []float64{10, 10})

	selected := p.SelectBestNMO(3)
	require.Len(t, selected, 3)
	require.NotContains(t, selected, 4)
}

func TestSelectBestNMOAllWhenNExceedsSize(t *testing.T) {
	p := gapop.New()
	p.PushBack([]float64{0}, []float64{1, 1})
	p.PushBack([]float64{1}, []float64{2, 2})
	selected := p.SelectBestNMO(10)
	require.ElementsMatch(t, []int{0, 1}, selected)
}

func TestIdealAndNadir(t *testing.T) {
	p := gapop.New()
	p.PushBack([]float64{0}, []float64{1, 4})
	p.PushBack([]float64{1}, []float64{2, 2})
	p.PushBack([]float64{2}, []float64{3, 1})

	require.Equal(t, []float64{1, 1}, p.Ideal())
	require.Equal(t, []float64{3, 4}, p.Nadir())
}

func TestSetXF(t *testing.T) {
	p := gapop.New()
	p.PushBack([]float64{0}, []float64{1, 1})
	p.SetXF(0, []float64{5}, []float64{9, 9})
	require.Equal(t, []float64{5}, p.GetX()[0])
	require.Equal(t, []float64{9, 9}, p.GetF()[0])
}
