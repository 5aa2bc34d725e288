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

/*Package crystnet predicts energies, forces, stresses and per-site magnetic
moments of periodic crystal structures from their graph representation, using
a message-passing network whose scalar energy output is differentiated to
obtain the other quantities.



	**crystnet Capabilities**


    Batches any number of per-structure graphs into one vectorized forward
	evaluation while preserving per-structure identity and periodic-boundary
	geometry.

    Expands bond lengths through spherical-Bessel radial bases with a smooth
	cutoff envelope, and bond-pair angles through an odd-width Fourier basis.

    Refines atom, bond and angle features through a configurable stack of
	gated message-passing layers; bond and angle updates can be switched off
	independently.

    Pools atom features into a scalar energy with either a per-atom
	projection followed by sum pooling, or mean/attention pooling followed
	by a single projection; intensive (per-atom) and extensive conventions
	are both supported.

    Derives forces as the negative energy gradient with respect to atomic
	positions, and stress as the energy gradient with respect to an injected
	strain variable, converted to GPa. Both go through the reverse-mode
	engine in the ad subpackage, and remain differentiable themselves.

    Adds an optional frozen composition reference energy, computed from the
	chemical composition alone.

    Saves and loads models as zstd-compressed JSON carrying the complete
	constructor configuration next to the learned parameters.

The structure-to-graph conversion is out of scope: graphs are consumed in the
form an external converter produces, described by the Graph type.
*/
package crystnet
