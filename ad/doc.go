/*
 * doc.go, part of crystnet.
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

/*Package ad implements a reverse-mode automatic differentiation engine over
2-dimensional gonum-backed tensors. Every operation records its parents and a
vector-Jacobian product, so calling Grad on a scalar output walks the recorded
graph backwards and accumulates gradients for any tracked tensor that
contributed to the output. The vector-Jacobian products are themselves composed
of ad operations, which means a gradient returned by Grad is part of the graph
and can be differentiated again. This is required by crystnet, where forces
(gradients of the energy) can appear inside a later loss term.

The graph is made of plain Go objects and is released by the garbage collector
once the caller drops the last reference, so gradients can be extracted any
number of times from the same forward pass without recomputation.

Tensors with zero rows are legal everywhere and propagate as zero-row results;
crystnet relies on this for structures without bonds or angles.
*/
package ad
