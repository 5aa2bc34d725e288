/*
 * composition.go, part of crystnet.
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

import "fmt"

//CompositionModel is the capability a frozen composition-reference model
//offers: an additive energy bias computed from atomic composition alone,
//independent of the graph. Implementations hold no ad tensors, so their
//parameters are excluded from the trainable set by construction rather than
//by a runtime flag.
type CompositionModel interface {
	//EnergyOf returns the reference energy for one structure.
	EnergyOf(g *Graph) float64
}

//AtomRef is a linear per-element energy reference: the bias of a structure
//is the sum of the reference energies of its atoms, divided by the atom
//count when the model is intensive.
type AtomRef struct {
	IsIntensive bool
	refs        [MaxElements + 1]float64
}

//NewAtomRef builds a reference from per-element energies keyed by symbol.
//Unknown symbols are rejected; elements not listed contribute zero.
func NewAtomRef(refs map[string]float64, intensive bool) (*AtomRef, error) {
	a := &AtomRef{IsIntensive: intensive}
	bySymbol := make(map[string]int, MaxElements)
	for z := 1; z <= MaxElements; z++ {
		bySymbol[elementSymbols[z]] = z
	}
	for sym, e := range refs {
		z, ok := bySymbol[sym]
		if !ok {
			return nil, CError{fmt.Sprintf("unknown element symbol %q", sym), []string{"NewAtomRef"}}
		}
		a.refs[z] = e
	}
	return a, nil
}

//EnergyOf implements CompositionModel.
func (a *AtomRef) EnergyOf(g *Graph) float64 {
	e := 0.0
	for _, z := range g.AtomicNumbers {
		e += a.refs[z]
	}
	if a.IsIntensive && g.NAtoms() > 0 {
		e /= float64(g.NAtoms())
	}
	return e
}

//References returns the per-element energies keyed by symbol, omitting
//zero entries. Used by the persistence layer.
func (a *AtomRef) References() map[string]float64 {
	out := make(map[string]float64)
	for z := 1; z <= MaxElements; z++ {
		if a.refs[z] != 0 {
			out[elementSymbols[z]] = a.refs[z]
		}
	}
	return out
}
