/*
 * ad_test.go, part of crystnet.
 *
 * Copyright 2026 The crystnet developers
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package ad

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//numGrad computes the central finite difference of f with respect to every
//element of the leaf x.
func numGrad(t *testing.T, f func(x *Tensor) *Tensor, x *Tensor, h float64) []float64 {
	t.Helper()
	r, c := x.Dims()
	out := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			orig := x.At(i, j)
			x.SetAt(i, j, orig+h)
			plus := f(x).Value()
			x.SetAt(i, j, orig-h)
			minus := f(x).Value()
			x.SetAt(i, j, orig)
			out[i*c+j] = (plus - minus) / (2 * h)
		}
	}
	return out
}

func checkGrad(t *testing.T, f func(x *Tensor) *Tensor, x *Tensor) {
	t.Helper()
	grads, err := Grad(f(x), []*Tensor{x})
	require.NoError(t, err)
	analytic := grads[0].Raw()
	numeric := numGrad(t, f, x, 1e-6)
	require.Len(t, analytic, len(numeric))
	for i := range numeric {
		assert.InDelta(t, numeric[i], analytic[i], 1e-5, "element %d", i)
	}
}

func TestElementwiseValues(t *testing.T) {
	a := New(2, 2, []float64{1, 2, 3, 4}, false)
	b := New(2, 2, []float64{5, 6, 7, 8}, false)
	sum := Add(a, b)
	assert.Equal(t, 6.0, sum.At(0, 0))
	assert.Equal(t, 12.0, sum.At(1, 1))
	prod := Mul(a, b)
	assert.Equal(t, 5.0, prod.At(0, 0))
	assert.Equal(t, 32.0, prod.At(1, 1))
	assert.InDelta(t, math.Sin(3), Sin(a).At(1, 0), 1e-14)
}

func TestMatMulValue(t *testing.T) {
	a := New(2, 3, []float64{1, 2, 3, 4, 5, 6}, false)
	b := New(3, 2, []float64{7, 8, 9, 10, 11, 12}, false)
	p := MatMul(a, b)
	assert.Equal(t, 58.0, p.At(0, 0))
	assert.Equal(t, 154.0, p.At(1, 1))
}

func TestGradElementwiseChain(t *testing.T) {
	x := New(2, 3, []float64{0.3, -0.8, 1.2, 0.1, 2.0, -1.5}, true)
	checkGrad(t, func(x *Tensor) *Tensor {
		return Sum(Mul(Sin(x), Exp(Scale(x, 0.5))))
	}, x)
}

func TestGradSigmoidSiLU(t *testing.T) {
	x := New(1, 4, []float64{-2, -0.5, 0.5, 2}, true)
	checkGrad(t, func(x *Tensor) *Tensor { return Sum(SiLU(x)) }, x)
	checkGrad(t, func(x *Tensor) *Tensor { return Sum(Sigmoid(x)) }, x)
}

func TestGradMatMul(t *testing.T) {
	x := New(2, 3, []float64{0.5, -1, 2, 1.5, 0.2, -0.7}, true)
	w := New(3, 2, []float64{1, -0.5, 0.3, 0.8, -1.2, 0.4}, false)
	checkGrad(t, func(x *Tensor) *Tensor { return Sum(MatMul(x, w)) }, x)
}

func TestGradGatherScatter(t *testing.T) {
	x := New(3, 2, []float64{1, 2, 3, 4, 5, 6}, true)
	idx := []int{0, 2, 0, 1}
	f := func(x *Tensor) *Tensor {
		g := Gather(x, idx)
		return Sum(Mul(g, g))
	}
	checkGrad(t, f, x)

	//scatter-sum of a gathered tensor
	f2 := func(x *Tensor) *Tensor {
		s := Scatter(Gather(x, idx), []int{1, 1, 0, 0}, 2)
		return Sum(Mul(s, s))
	}
	checkGrad(t, f2, x)
}

func TestGradAcosClamped(t *testing.T) {
	//values strictly inside (-1,1), including points close to the ends
	x := New(1, 4, []float64{-0.999999, -0.4, 0.3, 0.999999}, true)
	out := Acos(x)
	for j := 0; j < 4; j++ {
		assert.False(t, math.IsNaN(out.At(0, j)))
	}
	grads, err := Grad(Sum(out), []*Tensor{x})
	require.NoError(t, err)
	for _, v := range grads[0].Raw() {
		assert.False(t, math.IsNaN(v))
		assert.False(t, math.IsInf(v, 0))
	}
}

func TestGradConcatSlice(t *testing.T) {
	x := New(2, 2, []float64{1, -2, 0.5, 3}, true)
	checkGrad(t, func(x *Tensor) *Tensor {
		c := ConcatCols(x, Mul(x, x))
		return Sum(Mul(c, c))
	}, x)
	checkGrad(t, func(x *Tensor) *Tensor {
		r := ConcatRows(x, Scale(x, 2))
		return Sum(Mul(SliceRows(r, 1, 3), SliceRows(r, 1, 3)))
	}, x)
	checkGrad(t, func(x *Tensor) *Tensor {
		return Sum(Mul(SliceCols(x, 1, 2), SliceCols(x, 1, 2)))
	}, x)
}

func TestGradTileBroadcast(t *testing.T) {
	v := New(3, 1, []float64{0.5, -1.5, 2}, true)
	checkGrad(t, func(v *Tensor) *Tensor {
		return Sum(Mul(TileCols(v, 4), TileCols(v, 4)))
	}, v)
	r := New(1, 3, []float64{1, 0.5, -0.5}, true)
	checkGrad(t, func(r *Tensor) *Tensor {
		return Sum(Mul(TileRows(r, 2), TileRows(r, 2)))
	}, r)
}

func TestGradRowNorms(t *testing.T) {
	x := New(2, 3, []float64{1, 2, 2, -3, 0, 4}, true)
	checkGrad(t, func(x *Tensor) *Tensor { return Sum(RowNorms(x)) }, x)
	n := RowNorms(x)
	assert.InDelta(t, 3.0, n.At(0, 0), 1e-12)
	assert.InDelta(t, 5.0, n.At(1, 0), 1e-12)
}

func TestDoubleBackward(t *testing.T) {
	//y = sum(x^3); dy/dx = 3x^2; d2y/dx2 = 6x
	x := New(1, 3, []float64{0.5, -1, 2}, true)
	y := Sum(Mul(Mul(x, x), x))
	first, err := Grad(y, []*Tensor{x})
	require.NoError(t, err)
	for i, v := range first[0].Raw() {
		xi := x.At(0, i)
		assert.InDelta(t, 3*xi*xi, v, 1e-10)
	}
	second, err := Grad(Sum(first[0]), []*Tensor{x})
	require.NoError(t, err)
	for i, v := range second[0].Raw() {
		assert.InDelta(t, 6*x.At(0, i), v, 1e-10)
	}
}

func TestRepeatedGradIsStable(t *testing.T) {
	x := New(2, 2, []float64{1, 2, 3, 4}, true)
	y := Sum(Mul(x, Sin(x)))
	a, err := Grad(y, []*Tensor{x})
	require.NoError(t, err)
	b, err := Grad(y, []*Tensor{x})
	require.NoError(t, err)
	assert.Equal(t, a[0].Raw(), b[0].Raw())
}

func TestGradUntrackedFailsLoudly(t *testing.T) {
	x := New(2, 2, []float64{1, 2, 3, 4}, false)
	y := Sum(Mul(x, x))
	_, err := Grad(y, []*Tensor{x})
	require.Error(t, err)
}

func TestGradUnreachableIsZero(t *testing.T) {
	x := New(2, 2, []float64{1, 2, 3, 4}, true)
	unrelated := New(3, 1, []float64{1, 1, 1}, true)
	grads, err := Grad(Sum(x), []*Tensor{unrelated})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, grads[0].Raw())
}

func TestEmptyTensors(t *testing.T) {
	e := Zeros(0, 4)
	assert.Equal(t, 0, e.Rows())
	assert.Equal(t, 4, e.Cols())

	//elementwise and structural operations propagate emptiness
	assert.Equal(t, 0, Add(e, e).Rows())
	assert.Equal(t, 0, Sin(e).Rows())
	w := New(4, 2, []float64{1, 2, 3, 4, 5, 6, 7, 8}, false)
	assert.Equal(t, 0, MatMul(e, w).Rows())
	assert.Equal(t, 2, MatMul(e, w).Cols())
	assert.Equal(t, 0, Gather(w, nil).Rows())

	//scatter of nothing is a zero matrix
	s := Scatter(Zeros(0, 2), nil, 3)
	assert.Equal(t, 3, s.Rows())
	assert.Equal(t, 0.0, s.At(2, 1))

	//sum of nothing is zero and still differentiable
	x := Var(0, 2)
	total := Sum(x)
	assert.Equal(t, 0.0, total.Value())
	grads, err := Grad(total, []*Tensor{x})
	require.NoError(t, err)
	assert.Equal(t, 0, grads[0].Rows())
}

func TestGradThroughEmptyPath(t *testing.T) {
	//a tracked tensor that only contributes through a zero-row gather
	//gets a well-formed zero gradient
	x := New(3, 2, []float64{1, 2, 3, 4, 5, 6}, true)
	via := Scatter(Gather(x, nil), nil, 3)
	y := Add(Sum(via), Sum(Mul(x, x)))
	grads, err := Grad(y, []*Tensor{x})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(t, 2*x.At(i, j), grads[0].At(i, j), 1e-12)
		}
	}
}

func TestSegmentMax(t *testing.T) {
	x := New(4, 2, []float64{1, -5, 3, 0, -2, 7, 4, 1}, false)
	m := SegmentMax(x, []int{0, 0, 1, 1}, 2)
	assert.Equal(t, 3.0, m.At(0, 0))
	assert.Equal(t, 0.0, m.At(0, 1))
	assert.Equal(t, 4.0, m.At(1, 0))
	assert.Equal(t, 7.0, m.At(1, 1))
	assert.False(t, m.Tracked())
}
