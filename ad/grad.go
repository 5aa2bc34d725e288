/*
 * grad.go, part of crystnet.
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

import "fmt"

//Grad differentiates the scalar (1x1) tensor out with respect to each of the
//inputs and returns the gradients in input order. Every input must be
//tracked; asking for the gradient of an untracked tensor is a programming
//error on the caller's side and fails loudly. An input that is tracked but
//did not contribute to out gets a zero gradient of its own shape.
//
//The returned gradients are regular graph nodes, so they can be fed back
//into further ad operations and differentiated again. Grad can be called any
//number of times on the same output; the recorded graph is never consumed.
func Grad(out *Tensor, inputs []*Tensor) ([]*Tensor, error) {
	if out == nil {
		return nil, fmt.Errorf("ad: Grad of a nil tensor")
	}
	if out.rows != 1 || out.cols != 1 {
		return nil, fmt.Errorf("ad: Grad of a %dx%d tensor; reduce to a scalar first", out.rows, out.cols)
	}
	for i, in := range inputs {
		if in == nil {
			return nil, fmt.Errorf("ad: Grad: input %d is nil", i)
		}
		if !in.track {
			return nil, fmt.Errorf("ad: Grad: input %d is not tracked; it was not built for differentiation", i)
		}
	}

	//Reverse post-order guarantees every consumer of a node is visited
	//before the node itself.
	order := topo(out)
	grads := make(map[*Tensor]*Tensor, len(order))
	grads[out] = Ones(1, 1)
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		g, ok := grads[n]
		if !ok || n.vjp == nil {
			continue
		}
		pgrads := n.vjp(g)
		if len(pgrads) != len(n.parents) {
			panic("ad: vjp arity mismatch")
		}
		for k, p := range n.parents {
			if !p.track {
				continue
			}
			if prev, ok := grads[p]; ok {
				grads[p] = Add(prev, pgrads[k])
			} else {
				grads[p] = pgrads[k]
			}
		}
	}

	res := make([]*Tensor, len(inputs))
	for i, in := range inputs {
		if g, ok := grads[in]; ok {
			res[i] = g
		} else {
			res[i] = Zeros(in.rows, in.cols)
		}
	}
	return res, nil
}

//topo returns the nodes reachable from out in post-order.
func topo(out *Tensor) []*Tensor {
	var order []*Tensor
	seen := make(map[*Tensor]bool)
	var visit func(t *Tensor)
	visit = func(t *Tensor) {
		if seen[t] {
			return
		}
		seen[t] = true
		for _, p := range t.parents {
			visit(p)
		}
		order = append(order, t)
	}
	visit(out)
	return order
}
