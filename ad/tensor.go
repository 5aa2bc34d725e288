/*
 * tensor.go, part of crystnet.
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
	"fmt"

	"gonum.org/v1/gonum/mat"
)

//Tensor is a node of the differentiation graph: a rows x cols matrix of
//float64 plus the bookkeeping needed to backpropagate through the operation
//that produced it. A Tensor with a nil vjp is a leaf (either a constant or a
//tracked variable). Tensors with zero rows carry a nil Dense; all operations
//in the package accept and produce them.
type Tensor struct {
	rows, cols int
	data       *mat.Dense //nil iff rows == 0
	track      bool
	parents    []*Tensor
	//vjp maps the gradient of the output to the gradients of the parents,
	//in parent order. It is built out of ad operations so the returned
	//gradients are themselves differentiable.
	vjp func(grad *Tensor) []*Tensor
}

//New returns a tracked or untracked leaf tensor with the given data, which
//must have r*c elements. The data slice is used directly, not copied.
func New(r, c int, data []float64, track bool) *Tensor {
	if r == 0 {
		return empty(c, track)
	}
	if len(data) != r*c {
		panic(fmt.Sprintf("ad: New: %d elements for a %dx%d tensor", len(data), r, c))
	}
	return &Tensor{rows: r, cols: c, data: mat.NewDense(r, c, data), track: track}
}

//Zeros returns an untracked leaf filled with zeros. r may be zero.
func Zeros(r, c int) *Tensor {
	if r == 0 {
		return empty(c, false)
	}
	return &Tensor{rows: r, cols: c, data: mat.NewDense(r, c, nil)}
}

//Var returns a tracked, zero-initialized leaf. It is the entry point for
//gradient targets such as the per-structure strain tensors.
func Var(r, c int) *Tensor {
	v := Zeros(r, c)
	v.track = true
	return v
}

//FromDense wraps an existing gonum matrix as an untracked leaf. The matrix is
//used directly, not copied.
func FromDense(d *mat.Dense) *Tensor {
	r, c := d.Dims()
	return &Tensor{rows: r, cols: c, data: d}
}

//Scalar returns a 1x1 untracked leaf holding v.
func Scalar(v float64) *Tensor {
	return New(1, 1, []float64{v}, false)
}

//Ones returns an untracked leaf filled with ones.
func Ones(r, c int) *Tensor {
	d := make([]float64, r*c)
	for i := range d {
		d[i] = 1
	}
	return New(r, c, d, false)
}

//Eye returns the n x n identity as an untracked leaf.
func Eye(n int) *Tensor {
	t := Zeros(n, n)
	for i := 0; i < n; i++ {
		t.data.Set(i, i, 1)
	}
	return t
}

func empty(c int, track bool) *Tensor {
	return &Tensor{rows: 0, cols: c, track: track}
}

//Dims returns the dimensions of the tensor.
func (t *Tensor) Dims() (r, c int) {
	return t.rows, t.cols
}

//Rows returns the number of rows, which may be zero.
func (t *Tensor) Rows() int { return t.rows }

//Cols returns the number of columns.
func (t *Tensor) Cols() int { return t.cols }

//At returns the element at row i, column j.
func (t *Tensor) At(i, j int) float64 {
	if t.rows == 0 {
		panic("ad: At on an empty tensor")
	}
	return t.data.At(i, j)
}

//SetAt overwrites the element at row i, column j. It is only meant for
//loading saved parameters into leaf tensors; calling it on a non-leaf
//is a programming error.
func (t *Tensor) SetAt(i, j int, v float64) {
	if t.vjp != nil {
		panic("ad: SetAt on a non-leaf tensor")
	}
	t.data.Set(i, j, v)
}

//Tracked reports whether gradients flow through this tensor.
func (t *Tensor) Tracked() bool { return t.track }

//Dense returns the underlying gonum matrix, or nil for a zero-row tensor.
//Mutating it on a non-leaf invalidates the recorded graph.
func (t *Tensor) Dense() *mat.Dense { return t.data }

//Raw returns a copy of the values in row-major order.
func (t *Tensor) Raw() []float64 {
	out := make([]float64, t.rows*t.cols)
	for i := 0; i < t.rows; i++ {
		for j := 0; j < t.cols; j++ {
			out[i*t.cols+j] = t.data.At(i, j)
		}
	}
	return out
}

//Value returns the single element of a 1x1 tensor.
func (t *Tensor) Value() float64 {
	if t.rows != 1 || t.cols != 1 {
		panic(fmt.Sprintf("ad: Value on a %dx%d tensor", t.rows, t.cols))
	}
	return t.data.At(0, 0)
}

//Clone returns an untracked leaf copy of the values.
func (t *Tensor) Clone() *Tensor {
	if t.rows == 0 {
		return empty(t.cols, false)
	}
	d := mat.NewDense(t.rows, t.cols, nil)
	d.Copy(t.data)
	return FromDense(d)
}

//node assembles a non-leaf tensor. Tracking is inherited from the parents.
func node(r, c int, data *mat.Dense, parents []*Tensor, vjp func(*Tensor) []*Tensor) *Tensor {
	t := &Tensor{rows: r, cols: c, data: data, parents: parents, vjp: vjp}
	for _, p := range parents {
		if p.track {
			t.track = true
			break
		}
	}
	return t
}

func sameShape(a, b *Tensor, op string) {
	if a.rows != b.rows || a.cols != b.cols {
		panic(fmt.Sprintf("ad: %s: shape mismatch %dx%d vs %dx%d", op, a.rows, a.cols, b.rows, b.cols))
	}
}
