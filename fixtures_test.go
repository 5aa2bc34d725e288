/*
 * fixtures_test.go, part of crystnet.
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

//fixtures_test.go builds the small hand-indexed structures the tests share.
//Keeping them hand-built (rather than generated) makes every directed,
//undirected and angle index visible and checkable by eye.

package crystnet

import (
	"gonum.org/v1/gonum/mat"
)

func cubicLattice(a float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		a, 0, 0,
		0, a, 0,
		0, 0, a,
	})
}

//trimerGraph is a bent Fe-O-O unit in a 6 angstrom box, far from its periodic
//images. Two undirected bonds of length 1.5 meet at the Fe atom at 90
//degrees, giving two angle rows (one per orientation).
func trimerGraph() *Graph {
	return &Graph{
		AtomicNumbers: []int{26, 8, 8},
		FracCoords: mat.NewDense(3, 3, []float64{
			0.50, 0.50, 0.50,
			0.75, 0.50, 0.50,
			0.50, 0.75, 0.50,
		}),
		Lattice:             cubicLattice(6),
		AtomGraph:           [][2]int{{0, 1}, {1, 0}, {0, 2}, {2, 0}},
		Undirected2Directed: []int{0, 2},
		Directed2Undirected: []int{0, 0, 1, 1},
		NeighborImages:      mat.NewDense(4, 3, nil),
		BondGraph: []AngleRow{
			{Center: 0, BondI: 0, DirI: 0, BondJ: 1, DirJ: 2},
			{Center: 0, BondI: 1, DirI: 2, BondJ: 0, DirJ: 0},
		},
	}
}

//dimerGraph is a Li-O pair 1.8 angstrom apart with a single undirected bond
//and no angles.
func dimerGraph() *Graph {
	return &Graph{
		AtomicNumbers: []int{3, 8},
		FracCoords: mat.NewDense(2, 3, []float64{
			0.5, 0.5, 0.5,
			0.8, 0.5, 0.5,
		}),
		Lattice:             cubicLattice(6),
		AtomGraph:           [][2]int{{0, 1}, {1, 0}},
		Undirected2Directed: []int{0},
		Directed2Undirected: []int{0, 0},
		NeighborImages:      mat.NewDense(2, 3, nil),
	}
}

//isolatedGraph is a single helium atom with no bonds at all.
func isolatedGraph() *Graph {
	return &Graph{
		AtomicNumbers: []int{2},
		FracCoords:    mat.NewDense(1, 3, []float64{0.5, 0.5, 0.5}),
		Lattice:       cubicLattice(6),
	}
}

//periodicPairGraph is a Na-Cl pair in a 3 angstrom cell bonded both directly
//and through the (-1,-1,-1) periodic image, so the energy genuinely depends
//on the lattice. The two bonds from the Na atom are exactly antiparallel.
func periodicPairGraph() *Graph {
	return &Graph{
		AtomicNumbers: []int{11, 17},
		FracCoords: mat.NewDense(2, 3, []float64{
			0.25, 0.25, 0.25,
			0.75, 0.75, 0.75,
		}),
		Lattice:             cubicLattice(3),
		AtomGraph:           [][2]int{{0, 1}, {1, 0}, {0, 1}, {1, 0}},
		Undirected2Directed: []int{0, 2},
		Directed2Undirected: []int{0, 0, 1, 1},
		NeighborImages: mat.NewDense(4, 3, []float64{
			0, 0, 0,
			0, 0, 0,
			-1, -1, -1,
			1, 1, 1,
		}),
		BondGraph: []AngleRow{
			{Center: 0, BondI: 0, DirI: 0, BondJ: 1, DirJ: 2},
			{Center: 0, BondI: 1, DirI: 2, BondJ: 0, DirJ: 0},
		},
	}
}

func cloneGraph(g *Graph) *Graph {
	c := *g
	c.FracCoords = mat.DenseCopyOf(g.FracCoords)
	c.Lattice = mat.DenseCopyOf(g.Lattice)
	if g.NeighborImages != nil {
		c.NeighborImages = mat.DenseCopyOf(g.NeighborImages)
	}
	return &c
}

//testConfig keeps the network small enough for finite-difference loops while
//exercising every layer kind the default architecture uses.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AtomFeaDim = 16
	cfg.BondFeaDim = 16
	cfg.AngleFeaDim = 16
	cfg.NumRadial = 5
	cfg.NumAngular = 5
	cfg.NConv = 3
	cfg.AtomConvHidden = []int{16}
	cfg.BondConvHidden = []int{16}
	cfg.MLPHidden = []int{16, 16}
	cfg.Seed = 7
	return cfg
}
