/*
 * model_test.go, part of crystnet.
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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewRejectsBadConfig(t *testing.T) {
	mutations := map[string]func(cfg *Config){
		"single stage":        func(cfg *Config) { cfg.NConv = 1 },
		"zero feature dim":    func(cfg *Config) { cfg.AtomFeaDim = 0 },
		"unknown readout":     func(cfg *Config) { cfg.ReadOut = "max" },
		"unknown norm":        func(cfg *Config) { cfg.ReadoutNorm = "batch" },
		"even angular width":  func(cfg *Config) { cfg.NumAngular = 8 },
		"attention w/o heads": func(cfg *Config) { cfg.ReadOut = "attn"; cfg.NumHeads = 0 },
	}
	for name, mutate := range mutations {
		cfg := testConfig()
		mutate(&cfg)
		_, err := New(cfg)
		assert.Error(t, err, name)
	}
	_, err := New(testConfig())
	require.NoError(t, err)
}

func TestPredictRejectsBadInput(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)
	_, err = m.PredictGraph(trimerGraph(), "fe")
	require.Error(t, err)
	_, err = m.PredictGraphs(nil, TaskE, nil)
	require.Error(t, err)
}

func TestEnergyOnlyPrediction(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)
	p, err := m.PredictGraph(trimerGraph(), TaskE)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(p.Energy))
	assert.Nil(t, p.Forces)
	assert.Nil(t, p.Stress)
	assert.Nil(t, p.Magmoms)
}

func TestFullTaskShapes(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)
	p, err := m.PredictGraph(trimerGraph(), TaskEFSM)
	require.NoError(t, err)

	r, c := p.Forces.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)
	r, c = p.Stress.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)
	require.Len(t, p.Magmoms, 3)
	for i, mm := range p.Magmoms {
		assert.GreaterOrEqual(t, mm, 0.0, "magmom %d", i)
	}
}

func TestEnergyConsistentAcrossTasks(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)
	for _, g := range []*Graph{trimerGraph(), periodicPairGraph()} {
		base, err := m.PredictGraph(g, TaskE)
		require.NoError(t, err)
		for _, task := range []Task{TaskEF, TaskEM, TaskEFS, TaskEFSM} {
			p, err := m.PredictGraph(g, task)
			require.NoError(t, err)
			assert.InDelta(t, base.Energy, p.Energy, 1e-12, "task %s", task)
		}
	}
}

func matricesInDelta(t *testing.T, want, got mat.Matrix, delta float64, label string) {
	t.Helper()
	wr, wc := want.Dims()
	gr, gc := got.Dims()
	require.Equal(t, wr, gr, label)
	require.Equal(t, wc, gc, label)
	for i := 0; i < wr; i++ {
		for j := 0; j < wc; j++ {
			assert.InDelta(t, want.At(i, j), got.At(i, j), delta, "%s (%d,%d)", label, i, j)
		}
	}
}

func TestBatchingMatchesSinglePredictions(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)
	graphs := []*Graph{trimerGraph(), dimerGraph(), isolatedGraph(), periodicPairGraph()}

	//small batch size to force sub-batching on top of the batched forward
	batched, err := m.PredictGraphs(graphs, TaskEFSM, &PredictOptions{BatchSize: 2})
	require.NoError(t, err)
	require.Len(t, batched, len(graphs))

	for i, g := range graphs {
		single, err := m.PredictGraph(g, TaskEFSM)
		require.NoError(t, err)
		label := fmt.Sprintf("structure %d", i)
		assert.InDelta(t, single.Energy, batched[i].Energy, 1e-9, label)
		matricesInDelta(t, single.Forces, batched[i].Forces, 1e-9, label+" forces")
		matricesInDelta(t, single.Stress, batched[i].Stress, 1e-9, label+" stress")
		require.Len(t, batched[i].Magmoms, g.NAtoms(), label)
		for j := range single.Magmoms {
			assert.InDelta(t, single.Magmoms[j], batched[i].Magmoms[j], 1e-9, label)
		}
	}
}

func TestIntensiveEnergyIsPerAtom(t *testing.T) {
	ext := testConfig()
	ext.IsIntensive = false
	intn := testConfig()
	intn.IsIntensive = true

	me, err := New(ext)
	require.NoError(t, err)
	mi, err := New(intn)
	require.NoError(t, err)

	g := trimerGraph()
	pe, err := me.PredictGraph(g, TaskE)
	require.NoError(t, err)
	pi, err := mi.PredictGraph(g, TaskE)
	require.NoError(t, err)
	assert.InDelta(t, pe.Energy/3, pi.Energy, 1e-10)
}

func TestCompositionReferenceShiftsEnergy(t *testing.T) {
	cfg := testConfig()
	cfg.IsIntensive = false
	m, err := New(cfg)
	require.NoError(t, err)
	g := dimerGraph() //Li and O

	base, err := m.PredictGraph(g, TaskEF)
	require.NoError(t, err)

	ref, err := NewAtomRef(map[string]float64{"Li": -1.5, "O": -2.5}, false)
	require.NoError(t, err)
	m.Composition = ref
	shifted, err := m.PredictGraph(g, TaskEF)
	require.NoError(t, err)

	assert.InDelta(t, base.Energy-4.0, shifted.Energy, 1e-10)
	//the reference depends on composition only, so forces are untouched
	matricesInDelta(t, base.Forces, shifted.Forces, 1e-12, "forces")
}

func TestForcesMatchEnergyGradient(t *testing.T) {
	cfg := testConfig()
	cfg.IsIntensive = false
	m, err := New(cfg)
	require.NoError(t, err)
	g := trimerGraph()
	p, err := m.PredictGraph(g, TaskEF)
	require.NoError(t, err)

	//cart = frac * L with a cubic lattice of edge a, so the energy slope
	//along a fractional coordinate is -a times the Cartesian force
	const a, h = 6.0, 1e-5
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			perturbed := cloneGraph(g)
			orig := perturbed.FracCoords.At(i, j)

			perturbed.FracCoords.Set(i, j, orig+h)
			plus, err := m.PredictGraph(perturbed, TaskE)
			require.NoError(t, err)
			perturbed.FracCoords.Set(i, j, orig-h)
			minus, err := m.PredictGraph(perturbed, TaskE)
			require.NoError(t, err)

			slope := (plus.Energy - minus.Energy) / (2 * h)
			want := -a * p.Forces.At(i, j)
			assert.InDelta(t, want, slope, 1e-5*(1+math.Abs(want)), "atom %d coord %d", i, j)
		}
	}
}

func TestStressMatchesLatticeDeformation(t *testing.T) {
	cfg := testConfig()
	cfg.IsIntensive = false
	m, err := New(cfg)
	require.NoError(t, err)
	g := periodicPairGraph()
	p, err := m.PredictGraph(g, TaskEFS)
	require.NoError(t, err)

	const h = 1e-5
	volume := 27.0 //3 angstrom cubic cell
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			//finite strain eps in component (i,j): L -> L*(I+eps)
			energyAt := func(sign float64) float64 {
				eps := mat.NewDense(3, 3, nil)
				eps.Set(0, 0, 1)
				eps.Set(1, 1, 1)
				eps.Set(2, 2, 1)
				eps.Set(i, j, eps.At(i, j)+sign*h)
				perturbed := cloneGraph(g)
				perturbed.Lattice.Mul(g.Lattice, eps)
				pred, err := m.PredictGraph(perturbed, TaskE)
				require.NoError(t, err)
				return pred.Energy
			}
			raw := (energyAt(1) - energyAt(-1)) / (2 * h)
			want := raw / volume * EVPerA3ToGPa
			assert.InDelta(t, want, p.Stress.At(i, j), 1e-3+1e-4*math.Abs(want), "strain (%d,%d)", i, j)
		}
	}
}

func TestIsolatedAtom(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)
	g := isolatedGraph()
	p, err := m.PredictGraph(g, TaskEFSM)
	require.NoError(t, err)

	assert.False(t, math.IsNaN(p.Energy))
	//nothing couples the energy to positions or cell shape
	r, c := p.Forces.Dims()
	require.Equal(t, 1, r)
	require.Equal(t, 3, c)
	for j := 0; j < 3; j++ {
		assert.InDelta(t, 0.0, p.Forces.At(0, j), 0)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, 0.0, p.Stress.At(i, j), 0)
		}
	}
	require.Len(t, p.Magmoms, 1)
	assert.GreaterOrEqual(t, p.Magmoms[0], 0.0)

	//with a composition reference, the energy shifts by exactly the
	//reference term
	ref, err := NewAtomRef(map[string]float64{"He": -0.25}, m.Config().IsIntensive)
	require.NoError(t, err)
	m.Composition = ref
	shifted, err := m.PredictGraph(g, TaskE)
	require.NoError(t, err)
	assert.InDelta(t, p.Energy-0.25, shifted.Energy, 1e-12)
}

func TestReadoutVariants(t *testing.T) {
	variants := map[string]func(cfg *Config){
		"mlp_first":    func(cfg *Config) { cfg.MLPFirst = true },
		"attention":    func(cfg *Config) { cfg.ReadOut = "attn"; cfg.NumHeads = 2 },
		"layer_norm":   func(cfg *Config) { cfg.ReadoutNorm = "layer" },
		"angle_update": func(cfg *Config) { cfg.UpdateAngle = true; cfg.AngleUpdateHidden = []int{16} },
		"no_bond_conv": func(cfg *Config) { cfg.UpdateBond = false },
	}
	graphs := []*Graph{trimerGraph(), periodicPairGraph()}
	for name, mutate := range variants {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			m, err := New(cfg)
			require.NoError(t, err)
			batched, err := m.PredictGraphs(graphs, TaskEF, nil)
			require.NoError(t, err)
			for i, g := range graphs {
				single, err := m.PredictGraph(g, TaskEF)
				require.NoError(t, err)
				assert.InDelta(t, single.Energy, batched[i].Energy, 1e-9, "structure %d", i)
				matricesInDelta(t, single.Forces, batched[i].Forces, 1e-9, "forces")
			}
		})
	}
}

func TestReturnedFeatures(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)
	preds, err := m.PredictGraphs([]*Graph{trimerGraph(), dimerGraph()}, TaskE, &PredictOptions{
		ReturnAtomFeatures:    true,
		ReturnCrystalFeatures: true,
	})
	require.NoError(t, err)

	r, c := preds[0].AtomFeatures.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 16, c)
	r, c = preds[1].AtomFeatures.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 16, c)
	assert.Len(t, preds[0].CrystalFeature, 16)
	assert.Len(t, preds[1].CrystalFeature, 16)
}

func TestDeterministicInitialization(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	b, err := New(testConfig())
	require.NoError(t, err)
	g := trimerGraph()
	pa, err := a.PredictGraph(g, TaskE)
	require.NoError(t, err)
	pb, err := b.PredictGraph(g, TaskE)
	require.NoError(t, err)
	assert.Equal(t, pa.Energy, pb.Energy)

	other := testConfig()
	other.Seed = 8
	c, err := New(other)
	require.NoError(t, err)
	pc, err := c.PredictGraph(g, TaskE)
	require.NoError(t, err)
	assert.NotEqual(t, pa.Energy, pc.Energy)
}
