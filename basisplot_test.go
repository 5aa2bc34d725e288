/*
 * basisplot_test.go, part of crystnet.
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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlotRadialBasis(t *testing.T) {
	rb, err := NewRadialBessel(5, 5, 5, false)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "radial.png")
	require.NoError(t, PlotRadialBasis(rb, 60, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	require.Error(t, PlotRadialBasis(rb, 1, path))
}

func TestPlotAngularBasis(t *testing.T) {
	ae, err := NewAngleEncoder(9, false)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "angular.png")
	require.NoError(t, PlotAngularBasis(ae, 60, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	require.Error(t, PlotAngularBasis(ae, 1, path))
}
