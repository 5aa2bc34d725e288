/*
 * layers.go, part of crystnet.
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

//layers.go implements the learned layers of the network: embeddings, gated
//message functions, the atom/bond/angle convolutions and the pooling heads.

package crystnet

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/crystalml/crystnet/ad"
)

//param is one named learnable tensor. Component params() methods return
//their parameters with locally-scoped names; the model prefixes them to
//build the flat persistence dictionary.
type param struct {
	name string
	t    *ad.Tensor
}

func prefixed(prefix string, ps []param) []param {
	out := make([]param, 0, len(ps))
	for _, p := range ps {
		out = append(out, param{prefix + "." + p.name, p.t})
	}
	return out
}

//Linear is a dense layer y = x*W + b, with W stored input-major (in x out).
type Linear struct {
	In, Out int
	W       *ad.Tensor
	B       *ad.Tensor //nil when the layer has no bias
}

//newLinear draws the weights uniformly from [-1/sqrt(in), 1/sqrt(in)].
func newLinear(in, out int, bias bool, rng *rand.Rand) *Linear {
	bound := 1 / math.Sqrt(float64(in))
	w := make([]float64, in*out)
	for i := range w {
		w[i] = (2*rng.Float64() - 1) * bound
	}
	l := &Linear{In: in, Out: out, W: ad.New(in, out, w, true)}
	if bias {
		b := make([]float64, out)
		for i := range b {
			b[i] = (2*rng.Float64() - 1) * bound
		}
		l.B = ad.New(1, out, b, true)
	}
	return l
}

func (l *Linear) forward(x *ad.Tensor) *ad.Tensor {
	y := ad.MatMul(x, l.W)
	if l.B != nil {
		y = ad.Add(y, ad.TileRows(l.B, y.Rows()))
	}
	return y
}

func (l *Linear) params() []param {
	ps := []param{{"weight", l.W}}
	if l.B != nil {
		ps = append(ps, param{"bias", l.B})
	}
	return ps
}

//MLP is a chain of linear layers with SiLU between them (not after the
//last one).
type MLP struct {
	layers []*Linear
}

//newMLP builds a perceptron with the given hidden widths between in and out.
func newMLP(in int, hidden []int, out int, rng *rand.Rand) *MLP {
	dims := append([]int{in}, hidden...)
	dims = append(dims, out)
	m := &MLP{}
	for i := 0; i < len(dims)-1; i++ {
		m.layers = append(m.layers, newLinear(dims[i], dims[i+1], true, rng))
	}
	return m
}

func (m *MLP) forward(x *ad.Tensor) *ad.Tensor {
	for i, l := range m.layers {
		x = l.forward(x)
		if i < len(m.layers)-1 {
			x = ad.SiLU(x)
		}
	}
	return x
}

func (m *MLP) params() []param {
	var ps []param
	for i, l := range m.layers {
		ps = append(ps, prefixed(fmt.Sprintf("layers.%d", i), l.params())...)
	}
	return ps
}

//GatedMLP computes silu(core(x)) * sigmoid(gate(x)), the message function
//used by all three convolution layers.
type GatedMLP struct {
	core *MLP
	gate *MLP
}

func newGatedMLP(in int, hidden []int, out int, rng *rand.Rand) *GatedMLP {
	return &GatedMLP{
		core: newMLP(in, hidden, out, rng),
		gate: newMLP(in, hidden, out, rng),
	}
}

func (g *GatedMLP) forward(x *ad.Tensor) *ad.Tensor {
	return ad.Mul(ad.SiLU(g.core.forward(x)), ad.Sigmoid(g.gate.forward(x)))
}

func (g *GatedMLP) params() []param {
	ps := prefixed("core", g.core.params())
	return append(ps, prefixed("gate", g.gate.params())...)
}

//Embedding maps atomic numbers to learned feature vectors. Row z-1 of the
//table belongs to element Z, so hydrogen occupies the first row.
type Embedding struct {
	Dim   int
	table *ad.Tensor //MaxElements x Dim
}

func newEmbedding(dim int, rng *rand.Rand) *Embedding {
	w := make([]float64, MaxElements*dim)
	for i := range w {
		w[i] = rng.NormFloat64()
	}
	return &Embedding{Dim: dim, table: ad.New(MaxElements, dim, w, true)}
}

func (e *Embedding) forward(atomicNumbers []int) *ad.Tensor {
	idx := make([]int, len(atomicNumbers))
	for i, z := range atomicNumbers {
		idx[i] = z - 1
	}
	return ad.Gather(e.table, idx)
}

func (e *Embedding) params() []param {
	return []param{{"table", e.table}}
}

//LayerNorm normalizes each row to zero mean and unit variance, then applies
//a learned affine transform.
type LayerNorm struct {
	Dim   int
	gamma *ad.Tensor //1 x Dim
	beta  *ad.Tensor //1 x Dim
	eps   float64
}

func newLayerNorm(dim int) *LayerNorm {
	g := make([]float64, dim)
	for i := range g {
		g[i] = 1
	}
	return &LayerNorm{Dim: dim, gamma: ad.New(1, dim, g, true), beta: ad.Var(1, dim), eps: 1e-5}
}

func (ln *LayerNorm) forward(x *ad.Tensor) *ad.Tensor {
	m := float64(x.Cols())
	mean := ad.Scale(ad.MatMul(x, ad.Ones(x.Cols(), 1)), 1/m)
	centered := ad.Sub(x, ad.TileCols(mean, x.Cols()))
	variance := ad.Scale(ad.MatMul(ad.Mul(centered, centered), ad.Ones(x.Cols(), 1)), 1/m)
	std := ad.Sqrt(ad.Shift(variance, ln.eps))
	normed := ad.DivCol(centered, std)
	n := x.Rows()
	return ad.Add(ad.Mul(normed, ad.TileRows(ln.gamma, n)), ad.TileRows(ln.beta, n))
}

func (ln *LayerNorm) params() []param {
	return []param{{"gamma", ln.gamma}, {"beta", ln.beta}}
}

//AtomConv updates atom features from their neighborhoods: for every directed
//bond a gated message is computed from (center, bond, neighbor) features,
//gated by the atom-graph bond weights, summed onto the center atom, passed
//through a linear output layer and added residually. The residual keeps the
//update a refinement rather than a replacement, whatever the stack depth.
type AtomConv struct {
	msg    *GatedMLP
	mlpOut *Linear //nil disables the output projection
}

func newAtomConv(atomDim, bondDim int, hidden []int, useMLPOut bool, rng *rand.Rand) *AtomConv {
	c := &AtomConv{msg: newGatedMLP(2*atomDim+bondDim, hidden, atomDim, rng)}
	if useMLPOut {
		c.mlpOut = newLinear(atomDim, atomDim, true, rng)
	}
	return c
}

//forward consumes the batched directed bond list. bondFeas and bondWeights
//are per undirected bond; directed2undirected broadcasts them onto the
//directed edges.
func (c *AtomConv) forward(atomFeas, bondFeas, bondWeights *ad.Tensor, atomGraph [][2]int, directed2undirected []int) *ad.Tensor {
	centers := make([]int, len(atomGraph))
	neighbors := make([]int, len(atomGraph))
	for i, b := range atomGraph {
		centers[i] = b[0]
		neighbors[i] = b[1]
	}
	in := ad.ConcatCols(
		ad.Gather(atomFeas, centers),
		ad.Gather(bondFeas, directed2undirected),
		ad.Gather(atomFeas, neighbors),
	)
	messages := ad.Mul(c.msg.forward(in), ad.Gather(bondWeights, directed2undirected))
	agg := ad.Scatter(messages, centers, atomFeas.Rows())
	if c.mlpOut != nil {
		agg = c.mlpOut.forward(agg)
	}
	return ad.Add(agg, atomFeas)
}

func (c *AtomConv) params() []param {
	ps := prefixed("msg", c.msg.params())
	if c.mlpOut != nil {
		ps = append(ps, prefixed("mlp_out", c.mlpOut.params())...)
	}
	return ps
}

//BondConv updates undirected bond features from the angles they take part
//in, gated by the bond-graph bond weights. Messages are summed onto the
//second bond of each angle.
type BondConv struct {
	msg    *GatedMLP
	mlpOut *Linear
}

func newBondConv(atomDim, bondDim, angleDim int, hidden []int, rng *rand.Rand) *BondConv {
	return &BondConv{
		msg:    newGatedMLP(atomDim+2*bondDim+angleDim, hidden, bondDim, rng),
		mlpOut: newLinear(bondDim, bondDim, true, rng),
	}
}

func (c *BondConv) forward(atomFeas, bondFeas, bondWeights, angleFeas *ad.Tensor, bg *batchedBondGraph) *ad.Tensor {
	in := ad.ConcatCols(
		ad.Gather(bondFeas, bg.bondI),
		ad.Gather(bondFeas, bg.bondJ),
		angleFeas,
		ad.Gather(atomFeas, bg.centers),
	)
	messages := ad.Mul(c.msg.forward(in), ad.Gather(bondWeights, bg.bondI))
	agg := ad.Scatter(messages, bg.bondJ, bondFeas.Rows())
	return ad.Add(c.mlpOut.forward(agg), bondFeas)
}

func (c *BondConv) params() []param {
	ps := prefixed("msg", c.msg.params())
	return append(ps, prefixed("mlp_out", c.mlpOut.params())...)
}

//AngleUpdate refines angle features from the current (atom, bond, angle)
//triple; a plain residual update with no aggregation.
type AngleUpdate struct {
	msg *GatedMLP
}

func newAngleUpdate(atomDim, bondDim, angleDim int, hidden []int, rng *rand.Rand) *AngleUpdate {
	return &AngleUpdate{msg: newGatedMLP(atomDim+2*bondDim+angleDim, hidden, angleDim, rng)}
}

func (u *AngleUpdate) forward(atomFeas, bondFeas, angleFeas *ad.Tensor, bg *batchedBondGraph) *ad.Tensor {
	in := ad.ConcatCols(
		ad.Gather(bondFeas, bg.bondI),
		ad.Gather(bondFeas, bg.bondJ),
		angleFeas,
		ad.Gather(atomFeas, bg.centers),
	)
	return ad.Add(u.msg.forward(in), angleFeas)
}

func (u *AngleUpdate) params() []param {
	return prefixed("msg", u.msg.params())
}

//segmentSum pools rows of x into one row per owner.
func segmentSum(x *ad.Tensor, owners []int, n int) *ad.Tensor {
	return ad.Scatter(x, owners, n)
}

//segmentMean pools rows of x into per-owner averages. counts holds the
//number of rows owned by each segment and must be positive everywhere.
func segmentMean(x *ad.Tensor, owners []int, counts []int) *ad.Tensor {
	sums := ad.Scatter(x, owners, len(counts))
	inv := make([]float64, len(counts))
	for i, c := range counts {
		inv[i] = 1 / float64(c)
	}
	return ad.MulCol(sums, ad.New(len(counts), 1, inv, false))
}

//AttentionReadout pools atom features per structure with a multi-head
//softmax attention over the atoms of each structure, concatenating the
//per-head pooled vectors.
type AttentionReadout struct {
	Heads int
	key   *Linear
}

func newAttentionReadout(atomDim, heads int, rng *rand.Rand) *AttentionReadout {
	return &AttentionReadout{Heads: heads, key: newLinear(atomDim, heads, false, rng)}
}

//forward returns an n x (Heads*atomDim) crystal feature matrix, one row per
//structure.
func (a *AttentionReadout) forward(atomFeas *ad.Tensor, owners []int, n int) *ad.Tensor {
	logits := a.key.forward(atomFeas)
	shift := ad.SegmentMax(logits, owners, n)
	exp := ad.Exp(ad.Sub(logits, ad.Gather(shift, owners)))
	norm := ad.Gather(ad.Scatter(exp, owners, n), owners)
	weights := ad.Div(exp, norm)
	pooled := make([]*ad.Tensor, a.Heads)
	for h := 0; h < a.Heads; h++ {
		w := ad.SliceCols(weights, h, h+1)
		pooled[h] = ad.Scatter(ad.MulCol(atomFeas, w), owners, n)
	}
	return ad.ConcatCols(pooled...)
}

func (a *AttentionReadout) params() []param {
	return prefixed("key", a.key.params())
}
