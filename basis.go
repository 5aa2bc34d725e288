/*
 * basis.go, part of crystnet.
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

//basis.go implements the smooth basis expansions that turn bond lengths and
//bond-pair angles into fixed-width feature vectors.

package crystnet

import (
	"fmt"
	"math"

	"github.com/crystalml/crystnet/ad"
)

//cosEps is the inward clamp applied to bond-vector dot products before the
//inverse cosine, so the angle and its derivative stay finite for parallel and
//antiparallel bond pairs.
const cosEps = 1e-6

//RadialBessel expands a bond length into NumRadial spherical-Bessel radial
//functions that vanish at the cutoff. A polynomial envelope controlled by
//CutoffCoeff makes the basis and its derivative go to zero continuously at
//the cutoff, which keeps forces continuous when atoms cross it.
type RadialBessel struct {
	NumRadial   int
	Cutoff      float64
	CutoffCoeff float64 //envelope exponent; zero or negative disables the envelope
	Learnable   bool
	freqs       *ad.Tensor //1 x NumRadial
}

//NewRadialBessel returns a radial basis with frequencies initialized to
//n*pi for n = 1..numRadial. If learnable is true, the frequencies are part
//of the trainable parameter set.
func NewRadialBessel(numRadial int, cutoff, cutoffCoeff float64, learnable bool) (*RadialBessel, error) {
	if numRadial < 1 {
		return nil, CError{fmt.Sprintf("need at least one radial basis function, got %d", numRadial), []string{"NewRadialBessel"}}
	}
	if cutoff <= 0 {
		return nil, CError{fmt.Sprintf("non-positive cutoff %g", cutoff), []string{"NewRadialBessel"}}
	}
	fr := make([]float64, numRadial)
	for i := range fr {
		fr[i] = float64(i+1) * math.Pi
	}
	return &RadialBessel{
		NumRadial:   numRadial,
		Cutoff:      cutoff,
		CutoffCoeff: cutoffCoeff,
		Learnable:   learnable,
		freqs:       ad.New(1, numRadial, fr, learnable),
	}, nil
}

//Expand maps bond lengths r (n x 1) to the n x NumRadial basis matrix.
func (rb *RadialBessel) Expand(r *ad.Tensor) *ad.Tensor {
	u := ad.Scale(r, 1/rb.Cutoff)
	arg := ad.MatMul(u, rb.freqs)
	out := ad.Scale(ad.DivCol(ad.Sin(arg), r), math.Sqrt(2/rb.Cutoff))
	if rb.CutoffCoeff > 0 {
		out = ad.MulCol(out, polyEnvelope(u, rb.CutoffCoeff))
	}
	return out
}

//polyEnvelope is the smooth cutoff polynomial 1 - (p+1)(p+2)/2 u^p
//+ p(p+2) u^(p+1) - p(p+1)/2 u^(p+2). It equals 1 at u=0 and goes to 0 with
//vanishing first and second derivatives at u=1.
func polyEnvelope(u *ad.Tensor, p float64) *ad.Tensor {
	a := ad.Scale(ad.Pow(u, p), -(p+1)*(p+2)/2)
	b := ad.Scale(ad.Pow(u, p+1), p*(p+2))
	c := ad.Scale(ad.Pow(u, p+2), -p*(p+1)/2)
	return ad.Shift(ad.Add(ad.Add(a, b), c), 1)
}

func (rb *RadialBessel) params() []param {
	if !rb.Learnable {
		return nil
	}
	return []param{{"frequencies", rb.freqs}}
}

//Fourier expands an angle into the finite Fourier basis
//[1/sqrt(2), sin(n t), cos(n t); n=1..Order] / sqrt(pi), of width 2*Order+1.
type Fourier struct {
	Order     int
	Learnable bool
	freqs     *ad.Tensor //1 x Order
}

//NewFourier returns a Fourier basis of the given order with frequencies
//initialized to 1..order.
func NewFourier(order int, learnable bool) (*Fourier, error) {
	if order < 1 {
		return nil, CError{fmt.Sprintf("need at least order 1, got %d", order), []string{"NewFourier"}}
	}
	fr := make([]float64, order)
	for i := range fr {
		fr[i] = float64(i + 1)
	}
	return &Fourier{Order: order, Learnable: learnable, freqs: ad.New(1, order, fr, learnable)}, nil
}

//Expand maps angles theta (n x 1) to the n x (2*Order+1) basis matrix.
func (f *Fourier) Expand(theta *ad.Tensor) *ad.Tensor {
	n := theta.Rows()
	arg := ad.MatMul(theta, f.freqs)
	head := ad.Scale(ad.Ones(n, 1), 1/math.Sqrt2)
	out := ad.ConcatCols(head, ad.Sin(arg), ad.Cos(arg))
	return ad.Scale(out, 1/math.Sqrt(math.Pi))
}

func (f *Fourier) params() []param {
	if !f.Learnable {
		return nil
	}
	return []param{{"frequencies", f.freqs}}
}

//BondEncoder turns directed bond endpoints into undirected radial bases and
//normalized per-directed-bond vectors. Two radial expansions share the same
//bond lengths: one tuned to the atom-graph cutoff and one to the shorter
//bond-graph cutoff.
type BondEncoder struct {
	RBFAtomGraph *RadialBessel
	RBFBondGraph *RadialBessel
}

//NewBondEncoder builds the two radial expansions from the two cutoff radii.
func NewBondEncoder(atomGraphCutoff, bondGraphCutoff, cutoffCoeff float64, numRadial int, learnable bool) (*BondEncoder, error) {
	ag, err := NewRadialBessel(numRadial, atomGraphCutoff, cutoffCoeff, learnable)
	if err != nil {
		return nil, errDecorate(err, "NewBondEncoder")
	}
	bg, err := NewRadialBessel(numRadial, bondGraphCutoff, cutoffCoeff, learnable)
	if err != nil {
		return nil, errDecorate(err, "NewBondEncoder")
	}
	return &BondEncoder{RBFAtomGraph: ag, RBFBondGraph: bg}, nil
}

//Expand computes, for every directed bond, the periodic bond vector
//center - (neighbor + image*lattice), and expands the de-duplicated
//undirected bond lengths through both radial bases. center and neighbor are
//nd x 3 Cartesian positions, image is the nd x 3 periodic offset and
//undirected2directed selects the representative directed bond per undirected
//bond. It returns the two undirected bases (nu x NumRadial) and the
//normalized directed bond vectors (nd x 3).
func (be *BondEncoder) Expand(center, neighbor, image, lattice *ad.Tensor, undirected2directed []int) (basisAG, basisBG, bondVecs *ad.Tensor) {
	shifted := ad.Add(neighbor, ad.MatMul(image, lattice))
	vecs := ad.Sub(center, shifted)
	lengths := ad.RowNorms(vecs)
	bondVecs = ad.DivCol(vecs, lengths)
	undirected := ad.Gather(lengths, undirected2directed)
	basisAG = be.RBFAtomGraph.Expand(undirected)
	basisBG = be.RBFBondGraph.Expand(undirected)
	return basisAG, basisBG, bondVecs
}

func (be *BondEncoder) params() []param {
	var ps []param
	for _, p := range be.RBFAtomGraph.params() {
		ps = append(ps, param{"rbf_ag." + p.name, p.t})
	}
	for _, p := range be.RBFBondGraph.params() {
		ps = append(ps, param{"rbf_bg." + p.name, p.t})
	}
	return ps
}

//AngleEncoder expands the angle between two normalized bond vectors into an
//odd-width Fourier basis.
type AngleEncoder struct {
	NumAngular int
	fourier    *Fourier
}

//NewAngleEncoder builds the encoder. numAngular must be odd; an even width
//is a configuration error, not a recoverable condition.
func NewAngleEncoder(numAngular int, learnable bool) (*AngleEncoder, error) {
	if (numAngular-1)%2 != 0 {
		return nil, CError{fmt.Sprintf("angular basis width must be odd, got %d", numAngular), []string{"NewAngleEncoder"}}
	}
	f, err := NewFourier((numAngular-1)/2, learnable)
	if err != nil {
		return nil, errDecorate(err, "NewAngleEncoder")
	}
	return &AngleEncoder{NumAngular: numAngular, fourier: f}, nil
}

//Expand maps pairs of normalized bond vectors (n x 3 each) to the
//n x NumAngular angular basis. The cosine is pulled slightly inward before
//the inverse cosine so the expansion stays finite for near-parallel pairs.
func (ae *AngleEncoder) Expand(bondI, bondJ *ad.Tensor) *ad.Tensor {
	dot := ad.MatMul(ad.Mul(bondI, bondJ), ad.Ones(3, 1))
	theta := ad.Acos(ad.Scale(dot, 1-cosEps))
	return ae.fourier.Expand(theta)
}

func (ae *AngleEncoder) params() []param {
	var ps []param
	for _, p := range ae.fourier.params() {
		ps = append(ps, param{"fourier." + p.name, p.t})
	}
	return ps
}
