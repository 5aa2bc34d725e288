/*
 * batch.go, part of crystnet.
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

//batch.go merges per-structure graphs into one batched index space for a
//single forward evaluation, and splits batched results back per structure.

package crystnet

import (
	"fmt"

	"github.com/crystalml/crystnet/ad"
	"gonum.org/v1/gonum/mat"
)

//batchedBondGraph is the concatenated angle adjacency. Row k of the angle
//basis corresponds to centers[k], bondI[k] and bondJ[k], already offset into
//the batched atom and undirected-bond index spaces.
type batchedBondGraph struct {
	centers []int
	bondI   []int
	bondJ   []int
}

func (bg *batchedBondGraph) len() int { return len(bg.centers) }

//BatchedGraph holds everything one forward evaluation needs. It is built
//fresh per call, consumed within that call and discarded afterwards; no
//component keeps it across calls.
type BatchedGraph struct {
	AtomicNumbers []int
	//undirected radial bases for the atom-graph and bond-graph cutoffs
	BondBasesAG *ad.Tensor
	BondBasesBG *ad.Tensor
	//angle bases; zero rows (never nil) when no structure has angles
	AngleBases *ad.Tensor
	//directed bond list with batched atom indices
	AtomGraph           [][2]int
	Directed2Undirected []int
	bondGraph           *batchedBondGraph
	//AtomOwners maps every batched atom to the position of its structure
	//in the input list.
	AtomOwners []int
	AtomCounts []int
	//Positions are the per-structure differentiable Cartesian coordinates;
	//forces are gradients with respect to these.
	Positions []*ad.Tensor
	//Strains are the per-structure differentiable strain variables; nil
	//entries when stress was not requested.
	Strains []*ad.Tensor
	//Volumes are the per-structure lattice determinants, computed from the
	//(possibly strained) lattice even when stress is not requested.
	Volumes []float64
}

//NStructs returns the number of structures in the batch.
func (b *BatchedGraph) NStructs() int { return len(b.AtomCounts) }

//NAtoms returns the total batched atom count.
func (b *BatchedGraph) NAtoms() int { return len(b.AtomicNumbers) }

//offsets carries the running totals of the batching fold. Each structure is
//folded with the offsets before it and produces the offsets after it.
type offsets struct {
	atoms      int
	undirected int
}

func (o offsets) advance(g *Graph) offsets {
	return offsets{atoms: o.atoms + g.NAtoms(), undirected: o.undirected + g.NUndirected()}
}

//BatchGraphs assembles a non-empty ordered list of per-structure graphs into
//one BatchedGraph, expanding bond and angle bases along the way. When
//computeStress is true, every structure gets a zero-initialized tracked
//strain and its lattice is perturbed to L*(I+strain); Cartesian positions
//are recomputed from fractional coordinates and that lattice, which is what
//keeps them differentiable with respect to both positions and strain.
func BatchGraphs(graphs []*Graph, be *BondEncoder, ae *AngleEncoder, computeStress bool) (*BatchedGraph, error) {
	if len(graphs) == 0 {
		return nil, CError{"empty graph list", []string{"BatchGraphs"}}
	}
	out := &BatchedGraph{
		bondGraph: &batchedBondGraph{},
	}
	var basesAG, basesBG, angleBases []*ad.Tensor
	off := offsets{}
	for structIdx, g := range graphs {
		if err := g.Validate(); err != nil {
			return nil, errDecorate(err, fmt.Sprintf("BatchGraphs: structure %d", structIdx))
		}
		n := g.NAtoms()
		out.AtomicNumbers = append(out.AtomicNumbers, g.AtomicNumbers...)
		out.AtomCounts = append(out.AtomCounts, n)

		//Lattice, strain and volume. The strain enters only through the
		//perturbed lattice, so its gradient is exactly the energy response
		//to a homogeneous deformation.
		var lattice *ad.Tensor
		if computeStress {
			strain := ad.Var(3, 3)
			lattice = ad.MatMul(ad.FromDense(g.Lattice), ad.Add(ad.Eye(3), strain))
			out.Strains = append(out.Strains, strain)
		} else {
			lattice = ad.FromDense(g.Lattice)
			out.Strains = append(out.Strains, nil)
		}
		out.Volumes = append(out.Volumes, mat.Det(lattice.Dense()))

		//Cartesian positions as a differentiable function of the
		//fractional coordinates and the (strained) lattice.
		frac := fracTensor(g.FracCoords, n)
		cart := ad.MatMul(frac, lattice)
		out.Positions = append(out.Positions, cart)

		//Bonds. Bases are computed once per undirected bond; vectors stay
		//per directed bond.
		nd := g.NDirected()
		centerIdx := make([]int, nd)
		nbrIdx := make([]int, nd)
		for i, b := range g.AtomGraph {
			centerIdx[i] = b[0]
			nbrIdx[i] = b[1]
			out.AtomGraph = append(out.AtomGraph, [2]int{b[0] + off.atoms, b[1] + off.atoms})
		}
		var image *ad.Tensor
		if nd > 0 {
			image = ad.FromDense(g.NeighborImages)
		} else {
			image = ad.Zeros(0, 3)
		}
		basisAG, basisBG, bondVecs := be.Expand(
			ad.Gather(cart, centerIdx),
			ad.Gather(cart, nbrIdx),
			image, lattice, g.Undirected2Directed,
		)
		basesAG = append(basesAG, basisAG)
		basesBG = append(basesBG, basisBG)
		for _, u := range g.Directed2Undirected {
			out.Directed2Undirected = append(out.Directed2Undirected, u+off.undirected)
		}

		//Angles. The directed indices pick the two oriented bond vectors;
		//the batched rows keep only (atom, bond, bond) in offset space.
		if len(g.BondGraph) > 0 {
			dirI := make([]int, len(g.BondGraph))
			dirJ := make([]int, len(g.BondGraph))
			for i, a := range g.BondGraph {
				dirI[i] = a.DirI
				dirJ[i] = a.DirJ
				out.bondGraph.centers = append(out.bondGraph.centers, a.Center+off.atoms)
				out.bondGraph.bondI = append(out.bondGraph.bondI, a.BondI+off.undirected)
				out.bondGraph.bondJ = append(out.bondGraph.bondJ, a.BondJ+off.undirected)
			}
			angleBases = append(angleBases, ae.Expand(ad.Gather(bondVecs, dirI), ad.Gather(bondVecs, dirJ)))
		}

		for i := 0; i < n; i++ {
			out.AtomOwners = append(out.AtomOwners, structIdx)
		}
		off = off.advance(g)
	}

	out.BondBasesAG = ad.ConcatRows(basesAG...)
	out.BondBasesBG = ad.ConcatRows(basesBG...)
	if len(angleBases) > 0 {
		out.AngleBases = ad.ConcatRows(angleBases...)
	} else {
		//well-formed zero-row tensor, so downstream code can branch on
		//"zero rows" instead of "missing field"
		out.AngleBases = ad.Zeros(0, ae.NumAngular)
	}
	return out, nil
}

//fracTensor copies fractional coordinates into a tracked leaf, so that the
//Cartesian positions derived from them stay differentiable.
func fracTensor(fc *mat.Dense, n int) *ad.Tensor {
	data := make([]float64, n*3)
	for i := 0; i < n; i++ {
		for j := 0; j < 3; j++ {
			data[i*3+j] = fc.At(i, j)
		}
	}
	return ad.New(n, 3, data, true)
}

//SplitRows splits a batched per-atom tensor into one contiguous slice per
//structure, in input order. The counts must add up exactly to the tensor's
//row count; a mismatch means the batch bookkeeping is broken and is a fatal
//consistency error, never silently truncated.
func SplitRows(x *ad.Tensor, counts []int) ([]*ad.Tensor, error) {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total != x.Rows() {
		return nil, CError{fmt.Sprintf("per-structure counts sum to %d but the batched tensor has %d rows", total, x.Rows()), []string{"SplitRows"}}
	}
	res := make([]*ad.Tensor, len(counts))
	start := 0
	for i, c := range counts {
		res[i] = ad.SliceRows(x, start, start+c)
		start += c
	}
	return res, nil
}
