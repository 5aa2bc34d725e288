/*
 * graph.go, part of crystnet.
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

package crystnet

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

//Graph is the graph representation of one periodic crystal structure, as
//produced by an external structure-to-graph converter. All indices are local
//to the structure. Each undirected bond appears in AtomGraph as two directed
//entries; bond features are computed once per undirected bond and shared by
//both directions through the two index maps.
type Graph struct {
	AtomicNumbers []int      //per-atom species codes, 1..MaxElements
	FracCoords    *mat.Dense //per-atom fractional coordinates, n x 3
	Lattice       *mat.Dense //lattice row vectors, 3 x 3
	//AtomGraph is the directed bond list; each entry is (center, neighbor).
	AtomGraph [][2]int
	//Undirected2Directed maps each undirected bond to its representative
	//directed entry.
	Undirected2Directed []int
	//Directed2Undirected maps each directed bond back to its undirected
	//identity.
	Directed2Undirected []int
	//NeighborImages holds one integer-valued periodic image offset per
	//directed bond, nd x 3. May be nil when there are no bonds.
	NeighborImages *mat.Dense
	//BondGraph lists the angles; may be empty for isolated atoms.
	BondGraph []AngleRow
}

//AngleRow identifies one angle: the central atom and the two bonds meeting
//there. The undirected indices select bond features; the directed indices
//select the bond vectors with the correct orientation.
type AngleRow struct {
	Center int //central atom
	BondI  int //undirected index of the first bond
	DirI   int //directed bond carrying the first bond vector
	BondJ  int //undirected index of the second bond
	DirJ   int //directed bond carrying the second bond vector
}

//NAtoms returns the number of atoms in the structure.
func (g *Graph) NAtoms() int { return len(g.AtomicNumbers) }

//NDirected returns the number of directed bonds.
func (g *Graph) NDirected() int { return len(g.AtomGraph) }

//NUndirected returns the number of undirected bonds.
func (g *Graph) NUndirected() int { return len(g.Undirected2Directed) }

//Composition returns the per-element atom counts of the structure, indexed
//by atomic number (index 0 unused).
func (g *Graph) Composition() []int {
	counts := make([]int, MaxElements+1)
	for _, z := range g.AtomicNumbers {
		if z >= 1 && z <= MaxElements {
			counts[z]++
		}
	}
	return counts
}

//Validate checks the internal index consistency of the graph. It returns an
//error describing the first inconsistency found, or nil for a well-formed
//graph. A graph with no bonds at all (an isolated atom) is well formed.
func (g *Graph) Validate() error {
	n := g.NAtoms()
	if n == 0 {
		return CError{"graph has no atoms", []string{"Graph.Validate"}}
	}
	for i, z := range g.AtomicNumbers {
		if z < 1 || z > MaxElements {
			return CError{fmt.Sprintf("atom %d has unsupported atomic number %d", i, z), []string{"Graph.Validate"}}
		}
	}
	if r, c := g.FracCoords.Dims(); r != n || c != 3 {
		return CError{fmt.Sprintf("fractional coordinates are %dx%d for %d atoms", r, c, n), []string{"Graph.Validate"}}
	}
	if r, c := g.Lattice.Dims(); r != 3 || c != 3 {
		return CError{fmt.Sprintf("lattice is %dx%d", r, c), []string{"Graph.Validate"}}
	}
	nd := g.NDirected()
	nu := g.NUndirected()
	if len(g.Directed2Undirected) != nd {
		return CError{fmt.Sprintf("%d directed bonds but %d directed2undirected entries", nd, len(g.Directed2Undirected)), []string{"Graph.Validate"}}
	}
	if nd > 0 {
		if g.NeighborImages == nil {
			return CError{"bonded graph without neighbor images", []string{"Graph.Validate"}}
		}
		if r, c := g.NeighborImages.Dims(); r != nd || c != 3 {
			return CError{fmt.Sprintf("neighbor images are %dx%d for %d directed bonds", r, c, nd), []string{"Graph.Validate"}}
		}
	}
	for i, b := range g.AtomGraph {
		if b[0] < 0 || b[0] >= n || b[1] < 0 || b[1] >= n {
			return CError{fmt.Sprintf("directed bond %d references atoms (%d,%d) of %d", i, b[0], b[1], n), []string{"Graph.Validate"}}
		}
	}
	for i, d := range g.Undirected2Directed {
		if d < 0 || d >= nd {
			return CError{fmt.Sprintf("undirected bond %d maps to directed %d of %d", i, d, nd), []string{"Graph.Validate"}}
		}
	}
	for i, u := range g.Directed2Undirected {
		if u < 0 || u >= nu {
			return CError{fmt.Sprintf("directed bond %d maps to undirected %d of %d", i, u, nu), []string{"Graph.Validate"}}
		}
	}
	for i, a := range g.BondGraph {
		if a.Center < 0 || a.Center >= n {
			return CError{fmt.Sprintf("angle %d centered on atom %d of %d", i, a.Center, n), []string{"Graph.Validate"}}
		}
		if a.BondI < 0 || a.BondI >= nu || a.BondJ < 0 || a.BondJ >= nu {
			return CError{fmt.Sprintf("angle %d references undirected bonds (%d,%d) of %d", i, a.BondI, a.BondJ, nu), []string{"Graph.Validate"}}
		}
		if a.DirI < 0 || a.DirI >= nd || a.DirJ < 0 || a.DirJ >= nd {
			return CError{fmt.Sprintf("angle %d references directed bonds (%d,%d) of %d", i, a.DirI, a.DirJ, nd), []string{"Graph.Validate"}}
		}
	}
	return nil
}
