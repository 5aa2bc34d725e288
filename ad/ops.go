/*
 * ops.go, part of crystnet.
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

//ops.go contains the differentiable operations of the engine. Shape
//mismatches panic, as they are programming errors. Zero-row operands are
//accepted everywhere and yield zero-row results; zero-column tensors are not
//supported.

package ad

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

//ew1 builds an elementwise unary node.
func ew1(a *Tensor, f func(float64) float64, vjp func(g *Tensor) []*Tensor) *Tensor {
	if a.rows == 0 {
		return node(0, a.cols, nil, []*Tensor{a}, func(g *Tensor) []*Tensor {
			return []*Tensor{empty(a.cols, false)}
		})
	}
	d := mat.NewDense(a.rows, a.cols, nil)
	d.Apply(func(_, _ int, v float64) float64 { return f(v) }, a.data)
	return node(a.rows, a.cols, d, []*Tensor{a}, vjp)
}

//ew2 builds an elementwise binary node from two same-shaped tensors.
func ew2(a, b *Tensor, op string, f func(x, y float64) float64, vjp func(g *Tensor) []*Tensor) *Tensor {
	sameShape(a, b, op)
	if a.rows == 0 {
		return node(0, a.cols, nil, []*Tensor{a, b}, func(g *Tensor) []*Tensor {
			return []*Tensor{empty(a.cols, false), empty(b.cols, false)}
		})
	}
	d := mat.NewDense(a.rows, a.cols, nil)
	for i := 0; i < a.rows; i++ {
		for j := 0; j < a.cols; j++ {
			d.Set(i, j, f(a.data.At(i, j), b.data.At(i, j)))
		}
	}
	return node(a.rows, a.cols, d, []*Tensor{a, b}, vjp)
}

//Add returns a+b elementwise.
func Add(a, b *Tensor) *Tensor {
	return ew2(a, b, "Add", func(x, y float64) float64 { return x + y },
		func(g *Tensor) []*Tensor { return []*Tensor{g, g} })
}

//Sub returns a-b elementwise.
func Sub(a, b *Tensor) *Tensor {
	return ew2(a, b, "Sub", func(x, y float64) float64 { return x - y },
		func(g *Tensor) []*Tensor { return []*Tensor{g, Neg(g)} })
}

//Mul returns the elementwise (Hadamard) product of a and b.
func Mul(a, b *Tensor) *Tensor {
	return ew2(a, b, "Mul", func(x, y float64) float64 { return x * y },
		func(g *Tensor) []*Tensor { return []*Tensor{Mul(g, b), Mul(g, a)} })
}

//Div returns a/b elementwise.
func Div(a, b *Tensor) *Tensor {
	return ew2(a, b, "Div", func(x, y float64) float64 { return x / y },
		func(g *Tensor) []*Tensor {
			return []*Tensor{Div(g, b), Neg(Div(Mul(g, a), Mul(b, b)))}
		})
}

//Neg returns -a.
func Neg(a *Tensor) *Tensor {
	return ew1(a, func(x float64) float64 { return -x },
		func(g *Tensor) []*Tensor { return []*Tensor{Neg(g)} })
}

//Scale returns c*a.
func Scale(a *Tensor, c float64) *Tensor {
	return ew1(a, func(x float64) float64 { return c * x },
		func(g *Tensor) []*Tensor { return []*Tensor{Scale(g, c)} })
}

//Shift returns a+c elementwise.
func Shift(a *Tensor, c float64) *Tensor {
	return ew1(a, func(x float64) float64 { return x + c },
		func(g *Tensor) []*Tensor { return []*Tensor{g} })
}

//Pow returns a^p elementwise. The gradient assumes a > 0, which holds for
//the normalized distances it is used on.
func Pow(a *Tensor, p float64) *Tensor {
	return ew1(a, func(x float64) float64 { return math.Pow(x, p) },
		func(g *Tensor) []*Tensor { return []*Tensor{Mul(g, Scale(Pow(a, p-1), p))} })
}

//Sin returns sin(a) elementwise.
func Sin(a *Tensor) *Tensor {
	return ew1(a, math.Sin,
		func(g *Tensor) []*Tensor { return []*Tensor{Mul(g, Cos(a))} })
}

//Cos returns cos(a) elementwise.
func Cos(a *Tensor) *Tensor {
	return ew1(a, math.Cos,
		func(g *Tensor) []*Tensor { return []*Tensor{Neg(Mul(g, Sin(a)))} })
}

//Exp returns e^a elementwise.
func Exp(a *Tensor) *Tensor {
	return ew1(a, math.Exp,
		func(g *Tensor) []*Tensor { return []*Tensor{Mul(g, Exp(a))} })
}

//Sqrt returns the elementwise square root.
func Sqrt(a *Tensor) *Tensor {
	return ew1(a, math.Sqrt,
		func(g *Tensor) []*Tensor { return []*Tensor{Div(g, Scale(Sqrt(a), 2))} })
}

//Acos returns the elementwise inverse cosine. Inputs must stay strictly
//inside (-1,1); crystnet guarantees that with its cosine clamp.
func Acos(a *Tensor) *Tensor {
	return ew1(a, math.Acos,
		func(g *Tensor) []*Tensor {
			return []*Tensor{Neg(Div(g, Sqrt(Shift(Neg(Mul(a, a)), 1))))}
		})
}

//Sigmoid returns the elementwise logistic function.
func Sigmoid(a *Tensor) *Tensor {
	return ew1(a, func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
		func(g *Tensor) []*Tensor {
			s := Sigmoid(a)
			return []*Tensor{Mul(g, Mul(s, Shift(Neg(s), 1)))}
		})
}

//SiLU returns x*sigmoid(x) elementwise.
func SiLU(a *Tensor) *Tensor {
	return Mul(a, Sigmoid(a))
}

//Abs returns |a| elementwise. The derivative at zero is taken as zero.
func Abs(a *Tensor) *Tensor {
	return ew1(a, math.Abs,
		func(g *Tensor) []*Tensor { return []*Tensor{Mul(g, signConst(a))} })
}

//signConst returns an untracked tensor holding sign(a).
func signConst(a *Tensor) *Tensor {
	if a.rows == 0 {
		return empty(a.cols, false)
	}
	d := mat.NewDense(a.rows, a.cols, nil)
	d.Apply(func(_, _ int, v float64) float64 {
		switch {
		case v > 0:
			return 1
		case v < 0:
			return -1
		}
		return 0
	}, a.data)
	return FromDense(d)
}

//T returns the transpose. Zero-row tensors cannot be transposed, as the
//engine does not support zero-column tensors.
func T(a *Tensor) *Tensor {
	if a.rows == 0 {
		panic("ad: T on an empty tensor")
	}
	d := mat.NewDense(a.cols, a.rows, nil)
	d.Copy(a.data.T())
	return node(a.cols, a.rows, d, []*Tensor{a}, func(g *Tensor) []*Tensor {
		return []*Tensor{T(g)}
	})
}

//MatMul returns the matrix product a*b. a may have zero rows; the inner
//dimension must be at least one.
func MatMul(a, b *Tensor) *Tensor {
	if a.cols != b.rows {
		panic(fmt.Sprintf("ad: MatMul: inner dimensions %d and %d", a.cols, b.rows))
	}
	vjp := func(g *Tensor) []*Tensor {
		if g.rows == 0 {
			return []*Tensor{empty(a.cols, false), Zeros(b.rows, b.cols)}
		}
		return []*Tensor{MatMul(g, T(b)), MatMul(T(a), g)}
	}
	if a.rows == 0 {
		return node(0, b.cols, nil, []*Tensor{a, b}, vjp)
	}
	d := mat.NewDense(a.rows, b.cols, nil)
	d.Mul(a.data, b.data)
	return node(a.rows, b.cols, d, []*Tensor{a, b}, vjp)
}

//Gather selects the given rows of a, in order and possibly repeated. Its
//gradient is the matching row scatter-sum.
func Gather(a *Tensor, idx []int) *Tensor {
	own := make([]int, len(idx))
	copy(own, idx)
	vjp := func(g *Tensor) []*Tensor {
		return []*Tensor{Scatter(g, own, a.rows)}
	}
	if len(own) == 0 {
		return node(0, a.cols, nil, []*Tensor{a}, vjp)
	}
	d := mat.NewDense(len(own), a.cols, nil)
	for i, ix := range own {
		if ix < 0 || ix >= a.rows {
			panic(fmt.Sprintf("ad: Gather: row %d out of %d", ix, a.rows))
		}
		for j := 0; j < a.cols; j++ {
			d.Set(i, j, a.data.At(ix, j))
		}
	}
	return node(len(own), a.cols, d, []*Tensor{a}, vjp)
}

//Scatter sums the rows of a into an n-row tensor according to idx, which
//must have one destination row per row of a. Its gradient is Gather.
func Scatter(a *Tensor, idx []int, n int) *Tensor {
	if a.rows != len(idx) {
		panic(fmt.Sprintf("ad: Scatter: %d rows with %d indices", a.rows, len(idx)))
	}
	own := make([]int, len(idx))
	copy(own, idx)
	vjp := func(g *Tensor) []*Tensor {
		return []*Tensor{Gather(g, own)}
	}
	if n == 0 {
		return node(0, a.cols, nil, []*Tensor{a}, vjp)
	}
	d := mat.NewDense(n, a.cols, nil)
	for i, ix := range own {
		if ix < 0 || ix >= n {
			panic(fmt.Sprintf("ad: Scatter: destination %d out of %d", ix, n))
		}
		for j := 0; j < a.cols; j++ {
			d.Set(ix, j, d.At(ix, j)+a.data.At(i, j))
		}
	}
	return node(n, a.cols, d, []*Tensor{a}, vjp)
}

//ConcatRows stacks the given tensors vertically. All must share a column
//count; zero-row members are legal and contribute nothing.
func ConcatRows(xs ...*Tensor) *Tensor {
	if len(xs) == 0 {
		panic("ad: ConcatRows of nothing")
	}
	cols := xs[0].cols
	total := 0
	for _, x := range xs {
		if x.cols != cols {
			panic("ad: ConcatRows: column mismatch")
		}
		total += x.rows
	}
	vjp := func(g *Tensor) []*Tensor {
		grads := make([]*Tensor, len(xs))
		off := 0
		for i, x := range xs {
			if x.rows == 0 {
				grads[i] = empty(cols, false)
				continue
			}
			grads[i] = SliceRows(g, off, off+x.rows)
			off += x.rows
		}
		return grads
	}
	if total == 0 {
		return node(0, cols, nil, xs, vjp)
	}
	d := mat.NewDense(total, cols, nil)
	off := 0
	for _, x := range xs {
		for i := 0; i < x.rows; i++ {
			for j := 0; j < cols; j++ {
				d.Set(off+i, j, x.data.At(i, j))
			}
		}
		off += x.rows
	}
	return node(total, cols, d, xs, vjp)
}

//ConcatCols stacks the given tensors horizontally. All must share a row
//count.
func ConcatCols(xs ...*Tensor) *Tensor {
	if len(xs) == 0 {
		panic("ad: ConcatCols of nothing")
	}
	rows := xs[0].rows
	total := 0
	for _, x := range xs {
		if x.rows != rows {
			panic("ad: ConcatCols: row mismatch")
		}
		total += x.cols
	}
	vjp := func(g *Tensor) []*Tensor {
		grads := make([]*Tensor, len(xs))
		off := 0
		for i, x := range xs {
			grads[i] = SliceCols(g, off, off+x.cols)
			off += x.cols
		}
		return grads
	}
	if rows == 0 {
		return node(0, total, nil, xs, vjp)
	}
	d := mat.NewDense(rows, total, nil)
	off := 0
	for _, x := range xs {
		for i := 0; i < rows; i++ {
			for j := 0; j < x.cols; j++ {
				d.Set(i, off+j, x.data.At(i, j))
			}
		}
		off += x.cols
	}
	return node(rows, total, d, xs, vjp)
}

//SliceRows returns rows [from,to) of a as a copy.
func SliceRows(a *Tensor, from, to int) *Tensor {
	if from < 0 || to > a.rows || from > to {
		panic(fmt.Sprintf("ad: SliceRows [%d,%d) of %d rows", from, to, a.rows))
	}
	vjp := func(g *Tensor) []*Tensor {
		return []*Tensor{embedRows(g, from, a.rows, a.cols)}
	}
	if from == to {
		return node(0, a.cols, nil, []*Tensor{a}, vjp)
	}
	d := mat.NewDense(to-from, a.cols, nil)
	for i := from; i < to; i++ {
		for j := 0; j < a.cols; j++ {
			d.Set(i-from, j, a.data.At(i, j))
		}
	}
	return node(to-from, a.cols, d, []*Tensor{a}, vjp)
}

//SliceCols returns columns [from,to) of a as a copy.
func SliceCols(a *Tensor, from, to int) *Tensor {
	if from < 0 || to > a.cols || from >= to {
		panic(fmt.Sprintf("ad: SliceCols [%d,%d) of %d cols", from, to, a.cols))
	}
	vjp := func(g *Tensor) []*Tensor {
		return []*Tensor{embedCols(g, from, a.cols)}
	}
	if a.rows == 0 {
		return node(0, to-from, nil, []*Tensor{a}, vjp)
	}
	d := mat.NewDense(a.rows, to-from, nil)
	for i := 0; i < a.rows; i++ {
		for j := from; j < to; j++ {
			d.Set(i, j-from, a.data.At(i, j))
		}
	}
	return node(a.rows, to-from, d, []*Tensor{a}, vjp)
}

//embedRows places g at row offset from inside an otherwise-zero rows x cols
//tensor. It is the adjoint of SliceRows.
func embedRows(g *Tensor, from, rows, cols int) *Tensor {
	vjp := func(gg *Tensor) []*Tensor {
		return []*Tensor{SliceRows(gg, from, from+g.rows)}
	}
	if rows == 0 {
		return node(0, cols, nil, []*Tensor{g}, vjp)
	}
	d := mat.NewDense(rows, cols, nil)
	for i := 0; i < g.rows; i++ {
		for j := 0; j < cols; j++ {
			d.Set(from+i, j, g.data.At(i, j))
		}
	}
	return node(rows, cols, d, []*Tensor{g}, vjp)
}

//embedCols places g at column offset from inside an otherwise-zero tensor
//with cols columns. It is the adjoint of SliceCols.
func embedCols(g *Tensor, from, cols int) *Tensor {
	vjp := func(gg *Tensor) []*Tensor {
		return []*Tensor{SliceCols(gg, from, from+g.cols)}
	}
	if g.rows == 0 {
		return node(0, cols, nil, []*Tensor{g}, vjp)
	}
	d := mat.NewDense(g.rows, cols, nil)
	for i := 0; i < g.rows; i++ {
		for j := 0; j < g.cols; j++ {
			d.Set(i, from+j, g.data.At(i, j))
		}
	}
	return node(g.rows, cols, d, []*Tensor{g}, vjp)
}

//Sum reduces a to its 1x1 total.
func Sum(a *Tensor) *Tensor {
	vjp := func(g *Tensor) []*Tensor {
		return []*Tensor{Spread(g, a.rows, a.cols)}
	}
	if a.rows == 0 {
		return node(1, 1, mat.NewDense(1, 1, nil), []*Tensor{a}, vjp)
	}
	s := 0.0
	for i := 0; i < a.rows; i++ {
		for j := 0; j < a.cols; j++ {
			s += a.data.At(i, j)
		}
	}
	return node(1, 1, mat.NewDense(1, 1, []float64{s}), []*Tensor{a}, vjp)
}

//Spread replicates a 1x1 tensor into r x c. It is the adjoint of Sum.
func Spread(a *Tensor, r, c int) *Tensor {
	if a.rows != 1 || a.cols != 1 {
		panic("ad: Spread of a non-scalar")
	}
	vjp := func(g *Tensor) []*Tensor {
		return []*Tensor{Sum(g)}
	}
	if r == 0 {
		return node(0, c, nil, []*Tensor{a}, vjp)
	}
	d := mat.NewDense(r, c, nil)
	v := a.data.At(0, 0)
	d.Apply(func(_, _ int, _ float64) float64 { return v }, d)
	return node(r, c, d, []*Tensor{a}, vjp)
}

//TileCols replicates an n x 1 column across m columns.
func TileCols(v *Tensor, m int) *Tensor {
	if v.cols != 1 {
		panic("ad: TileCols of a non-column")
	}
	vjp := func(g *Tensor) []*Tensor {
		if g.rows == 0 {
			return []*Tensor{empty(1, false)}
		}
		return []*Tensor{MatMul(g, Ones(m, 1))}
	}
	if v.rows == 0 {
		return node(0, m, nil, []*Tensor{v}, vjp)
	}
	d := mat.NewDense(v.rows, m, nil)
	for i := 0; i < v.rows; i++ {
		x := v.data.At(i, 0)
		for j := 0; j < m; j++ {
			d.Set(i, j, x)
		}
	}
	return node(v.rows, m, d, []*Tensor{v}, vjp)
}

//TileRows replicates a 1 x m row across n rows.
func TileRows(v *Tensor, n int) *Tensor {
	if v.rows != 1 {
		panic("ad: TileRows of a non-row")
	}
	vjp := func(g *Tensor) []*Tensor {
		if g.rows == 0 {
			return []*Tensor{Zeros(1, v.cols)}
		}
		return []*Tensor{MatMul(Ones(1, g.rows), g)}
	}
	if n == 0 {
		return node(0, v.cols, nil, []*Tensor{v}, vjp)
	}
	d := mat.NewDense(n, v.cols, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < v.cols; j++ {
			d.Set(i, j, v.data.At(0, j))
		}
	}
	return node(n, v.cols, d, []*Tensor{v}, vjp)
}

//MulCol multiplies each row of a by the matching element of the n x 1
//column v.
func MulCol(a, v *Tensor) *Tensor {
	return Mul(a, TileCols(v, a.cols))
}

//DivCol divides each row of a by the matching element of the n x 1 column v.
func DivCol(a, v *Tensor) *Tensor {
	return Div(a, TileCols(v, a.cols))
}

//RowNorms returns the n x 1 Euclidean norms of the rows of a.
func RowNorms(a *Tensor) *Tensor {
	return Sqrt(MatMul(Mul(a, a), Ones(a.cols, 1)))
}

//Detach returns an untracked leaf copy of a, cutting it out of the graph.
func Detach(a *Tensor) *Tensor {
	return a.Clone()
}

//SegmentMax returns an untracked n x cols tensor whose row k holds the
//columnwise maximum over the rows of a owned by segment k. Rows of empty
//segments are zero. It is used to stabilize segment softmaxes and carries
//no gradient.
func SegmentMax(a *Tensor, owners []int, n int) *Tensor {
	if a.rows != len(owners) {
		panic(fmt.Sprintf("ad: SegmentMax: %d rows with %d owners", a.rows, len(owners)))
	}
	out := Zeros(n, a.cols)
	seen := make([]bool, n)
	for i, o := range owners {
		if o < 0 || o >= n {
			panic(fmt.Sprintf("ad: SegmentMax: owner %d out of %d", o, n))
		}
		for j := 0; j < a.cols; j++ {
			v := a.data.At(i, j)
			if !seen[o] || v > out.data.At(o, j) {
				out.data.Set(o, j, v)
			}
		}
		seen[o] = true
	}
	return out
}
