/*
 * model.go, part of crystnet.
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
	"math/rand"

	"github.com/crystalml/crystnet/ad"
	"gonum.org/v1/gonum/mat"
)

//EVPerA3ToGPa converts internal stress units (eV per cubic angstrom) to
//gigapascal. It is also the default weight applied when interpreting stress
//labels downstream.
const EVPerA3ToGPa = 160.21766208

//DefaultBatchSize bounds the number of structures per forward call in
//PredictGraphs when the caller does not choose one.
const DefaultBatchSize = 100

//Task selects which quantities a prediction computes. Only the five listed
//combinations are valid.
type Task string

const (
	TaskE    Task = "e"    //energy only
	TaskEF   Task = "ef"   //energy and forces
	TaskEM   Task = "em"   //energy and magnetic moments
	TaskEFS  Task = "efs"  //energy, forces and stress
	TaskEFSM Task = "efsm" //energy, forces, stress and magnetic moments
)

func (t Task) valid() bool {
	switch t {
	case TaskE, TaskEF, TaskEM, TaskEFS, TaskEFSM:
		return true
	}
	return false
}

func (t Task) force() bool  { return t == TaskEF || t == TaskEFS || t == TaskEFSM }
func (t Task) stress() bool { return t == TaskEFS || t == TaskEFSM }
func (t Task) magmom() bool { return t == TaskEM || t == TaskEFSM }

//Config is the full constructor configuration of a Model. Persisting it next
//to the parameters is enough to rebuild a functionally identical model.
type Config struct {
	AtomFeaDim  int `json:"atom_fea_dim"`
	BondFeaDim  int `json:"bond_fea_dim"`
	AngleFeaDim int `json:"angle_fea_dim"`
	NumRadial   int `json:"num_radial"`
	NumAngular  int `json:"num_angular"` //must be odd
	NConv       int `json:"n_conv"`

	AtomConvHidden    []int `json:"atom_conv_hidden"`
	UpdateBond        bool  `json:"update_bond"`
	BondConvHidden    []int `json:"bond_conv_hidden"`
	UpdateAngle       bool  `json:"update_angle"`
	AngleUpdateHidden []int `json:"angle_update_hidden"`

	MLPHidden   []int  `json:"mlp_hidden"`
	MLPFirst    bool   `json:"mlp_first"` //project-then-pool instead of pool-then-project
	ReadOut     string `json:"read_out"`  //"ave" or "attn"; ignored when MLPFirst
	NumHeads    int    `json:"num_heads"` //attention heads for the "attn" readout
	ReadoutNorm string `json:"readout_norm"` //"" or "layer"
	IsIntensive bool   `json:"is_intensive"`

	AtomGraphCutoff float64 `json:"atom_graph_cutoff"`
	BondGraphCutoff float64 `json:"bond_graph_cutoff"`
	CutoffCoeff     float64 `json:"cutoff_coeff"`
	LearnableRBF    bool    `json:"learnable_rbf"`

	Seed int64 `json:"seed"` //parameter initialization seed
}

//DefaultConfig mirrors the architecture the pretrained potential uses.
func DefaultConfig() Config {
	return Config{
		AtomFeaDim:        64,
		BondFeaDim:        64,
		AngleFeaDim:       64,
		NumRadial:         9,
		NumAngular:        9,
		NConv:             4,
		AtomConvHidden:    []int{64},
		UpdateBond:        true,
		BondConvHidden:    []int{64},
		UpdateAngle:       false,
		AngleUpdateHidden: nil,
		MLPHidden:         []int{64, 64},
		MLPFirst:          false,
		ReadOut:           "ave",
		NumHeads:          3,
		ReadoutNorm:       "",
		IsIntensive:       true,
		AtomGraphCutoff:   5,
		BondGraphCutoff:   3,
		CutoffCoeff:       5,
		LearnableRBF:      false,
	}
}

func (cfg *Config) validate() error {
	if cfg.NConv < 2 {
		return CError{fmt.Sprintf("need at least two message-passing stages, got %d", cfg.NConv), []string{"Config.validate"}}
	}
	if cfg.AtomFeaDim < 1 || cfg.BondFeaDim < 1 || cfg.AngleFeaDim < 1 {
		return CError{"feature dimensions must be positive", []string{"Config.validate"}}
	}
	if !cfg.MLPFirst && cfg.ReadOut != "ave" && cfg.ReadOut != "attn" {
		return CError{fmt.Sprintf("unknown readout %q; want \"ave\" or \"attn\"", cfg.ReadOut), []string{"Config.validate"}}
	}
	if cfg.ReadoutNorm != "" && cfg.ReadoutNorm != "layer" {
		return CError{fmt.Sprintf("unknown readout normalization %q", cfg.ReadoutNorm), []string{"Config.validate"}}
	}
	if cfg.ReadOut == "attn" && cfg.NumHeads < 1 {
		return CError{fmt.Sprintf("attention readout needs at least one head, got %d", cfg.NumHeads), []string{"Config.validate"}}
	}
	return nil
}

//Model is the crystal graph network potential. It predicts the energy of
//batched crystal graphs and differentiates it into forces, stress and
//per-site magnetic moments.
type Model struct {
	cfg Config

	atomEmbedding  *Embedding
	bondEncoder    *BondEncoder
	bondEmbedding  *Linear //radial basis -> bond features
	bondWeightsAG  *Linear //radial basis -> atom-conv gate
	bondWeightsBG  *Linear //radial basis -> bond-conv gate
	angleEncoder   *AngleEncoder
	angleEmbedding *Linear //angular basis -> angle features

	atomConvs    []*AtomConv
	bondConvs    []*BondConv    //nil slots when bond updates are disabled
	angleUpdates []*AngleUpdate //nil slots when angle updates are disabled

	siteWise    *Linear //atom features -> magnetic moment
	readoutNorm *LayerNorm
	attention   *AttentionReadout
	mlp         *MLP

	//Composition is the optional frozen reference; nil contributes zero.
	Composition CompositionModel
}

//New builds a model from cfg, with parameters initialized deterministically
//from cfg.Seed. Configuration errors surface immediately, never at predict
//time.
func New(cfg Config) (*Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, errDecorate(err, "New")
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	m := &Model{cfg: cfg}

	var err error
	m.bondEncoder, err = NewBondEncoder(cfg.AtomGraphCutoff, cfg.BondGraphCutoff, cfg.CutoffCoeff, cfg.NumRadial, cfg.LearnableRBF)
	if err != nil {
		return nil, errDecorate(err, "New")
	}
	m.angleEncoder, err = NewAngleEncoder(cfg.NumAngular, cfg.LearnableRBF)
	if err != nil {
		return nil, errDecorate(err, "New")
	}

	m.atomEmbedding = newEmbedding(cfg.AtomFeaDim, rng)
	m.bondEmbedding = newLinear(cfg.NumRadial, cfg.BondFeaDim, false, rng)
	m.bondWeightsAG = newLinear(cfg.NumRadial, cfg.AtomFeaDim, false, rng)
	m.bondWeightsBG = newLinear(cfg.NumRadial, cfg.BondFeaDim, false, rng)
	m.angleEmbedding = newLinear(cfg.NumAngular, cfg.AngleFeaDim, false, rng)

	for i := 0; i < cfg.NConv; i++ {
		m.atomConvs = append(m.atomConvs, newAtomConv(cfg.AtomFeaDim, cfg.BondFeaDim, cfg.AtomConvHidden, true, rng))
	}
	m.bondConvs = make([]*BondConv, cfg.NConv-1)
	m.angleUpdates = make([]*AngleUpdate, cfg.NConv-1)
	for i := 0; i < cfg.NConv-1; i++ {
		if cfg.UpdateBond {
			m.bondConvs[i] = newBondConv(cfg.AtomFeaDim, cfg.BondFeaDim, cfg.AngleFeaDim, cfg.BondConvHidden, rng)
		}
		if cfg.UpdateAngle {
			m.angleUpdates[i] = newAngleUpdate(cfg.AtomFeaDim, cfg.BondFeaDim, cfg.AngleFeaDim, cfg.AngleUpdateHidden, rng)
		}
	}

	m.siteWise = newLinear(cfg.AtomFeaDim, 1, true, rng)
	if cfg.ReadoutNorm == "layer" {
		m.readoutNorm = newLayerNorm(cfg.AtomFeaDim)
	}
	mlpIn := cfg.AtomFeaDim
	if !cfg.MLPFirst && cfg.ReadOut == "attn" {
		m.attention = newAttentionReadout(cfg.AtomFeaDim, cfg.NumHeads, rng)
		mlpIn = cfg.AtomFeaDim * cfg.NumHeads
	}
	m.mlp = newMLP(mlpIn, cfg.MLPHidden, 1, rng)
	return m, nil
}

//Config returns a copy of the model's constructor configuration.
func (m *Model) Config() Config { return m.cfg }

//params returns every trainable parameter with its persistence name. The
//composition reference is deliberately absent: it is frozen by construction.
func (m *Model) params() []param {
	var ps []param
	ps = append(ps, prefixed("atom_embedding", m.atomEmbedding.params())...)
	ps = append(ps, prefixed("bond_encoder", m.bondEncoder.params())...)
	ps = append(ps, prefixed("bond_embedding", m.bondEmbedding.params())...)
	ps = append(ps, prefixed("bond_weights_ag", m.bondWeightsAG.params())...)
	ps = append(ps, prefixed("bond_weights_bg", m.bondWeightsBG.params())...)
	ps = append(ps, prefixed("angle_encoder", m.angleEncoder.params())...)
	ps = append(ps, prefixed("angle_embedding", m.angleEmbedding.params())...)
	for i, c := range m.atomConvs {
		ps = append(ps, prefixed(fmt.Sprintf("atom_convs.%d", i), c.params())...)
	}
	for i, c := range m.bondConvs {
		if c != nil {
			ps = append(ps, prefixed(fmt.Sprintf("bond_convs.%d", i), c.params())...)
		}
	}
	for i, u := range m.angleUpdates {
		if u != nil {
			ps = append(ps, prefixed(fmt.Sprintf("angle_updates.%d", i), u.params())...)
		}
	}
	ps = append(ps, prefixed("site_wise", m.siteWise.params())...)
	if m.readoutNorm != nil {
		ps = append(ps, prefixed("readout_norm", m.readoutNorm.params())...)
	}
	if m.attention != nil {
		ps = append(ps, prefixed("attention", m.attention.params())...)
	}
	ps = append(ps, prefixed("mlp", m.mlp.params())...)
	return ps
}

//batchOutput carries the raw batched results of one forward evaluation,
//still attached to the differentiation graph.
type batchOutput struct {
	energies    *ad.Tensor   //nstructs x 1, intensive or extensive per config
	forces      []*ad.Tensor //per structure, n_i x 3
	stresses    []*ad.Tensor //per structure, 3 x 3, GPa
	magmoms     []*ad.Tensor //per structure, n_i x 1
	atomFeas    []*ad.Tensor //per structure, n_i x atomDim
	crystalFeas *ad.Tensor   //nstructs x crystalDim
}

//forward batches the graphs and runs the full pipeline. The returned output
//still references the differentiation graph, so a caller computing a
//training loss from the energies can backpropagate once more without
//recomputation.
func (m *Model) forward(graphs []*Graph, task Task, returnAtomFeas, returnCrystalFeas bool) (*batchOutput, error) {
	if !task.valid() {
		return nil, CError{fmt.Sprintf("unknown task %q", string(task)), []string{"Model.forward"}}
	}
	g, err := BatchGraphs(graphs, m.bondEncoder, m.angleEncoder, task.stress())
	if err != nil {
		return nil, errDecorate(err, "Model.forward")
	}
	out := &batchOutput{}
	nStructs := g.NStructs()

	//Embed atoms, bonds and angles.
	atomFeas := m.atomEmbedding.forward(g.AtomicNumbers)
	bondFeas := m.bondEmbedding.forward(g.BondBasesAG)
	bondWeightsAG := m.bondWeightsAG.forward(g.BondBasesAG)
	bondWeightsBG := m.bondWeightsBG.forward(g.BondBasesBG)
	angleFeas := m.angleEmbedding.forward(g.AngleBases)
	haveAngles := g.AngleBases.Rows() > 0

	//Message passing: interior stages refine atoms, bonds and angles; the
	//final stage only refines atoms, which is all the readout consumes.
	for idx := 0; idx < m.cfg.NConv-1; idx++ {
		atomFeas = m.atomConvs[idx].forward(atomFeas, bondFeas, bondWeightsAG, g.AtomGraph, g.Directed2Undirected)
		if haveAngles && m.bondConvs[idx] != nil {
			bondFeas = m.bondConvs[idx].forward(atomFeas, bondFeas, bondWeightsBG, angleFeas, g.bondGraph)
			if m.angleUpdates[idx] != nil {
				angleFeas = m.angleUpdates[idx].forward(atomFeas, bondFeas, angleFeas, g.bondGraph)
			}
		}
		if idx == m.cfg.NConv-2 {
			//The last interior stage is where site-wise outputs branch
			//off; the final stage's features are reserved for the energy
			//readout and may be normalized differently.
			if returnAtomFeas {
				split, err := SplitRows(atomFeas, g.AtomCounts)
				if err != nil {
					return nil, errDecorate(err, "Model.forward")
				}
				out.atomFeas = split
			}
			if task.magmom() {
				mm := ad.Abs(m.siteWise.forward(atomFeas))
				split, err := SplitRows(mm, g.AtomCounts)
				if err != nil {
					return nil, errDecorate(err, "Model.forward")
				}
				out.magmoms = split
			}
		}
	}
	atomFeas = m.atomConvs[m.cfg.NConv-1].forward(atomFeas, bondFeas, bondWeightsAG, g.AtomGraph, g.Directed2Undirected)
	if m.readoutNorm != nil {
		atomFeas = m.readoutNorm.forward(atomFeas)
	}

	//Readout: either project every atom and sum-pool, or pool first and
	//project the crystal feature once, scaled back to a total.
	counts := ad.New(nStructs, 1, countsToFloats(g.AtomCounts), false)
	var energy *ad.Tensor
	if m.cfg.MLPFirst {
		energy = segmentSum(m.mlp.forward(atomFeas), g.AtomOwners, nStructs)
	} else {
		var crystalFeas *ad.Tensor
		if m.attention != nil {
			crystalFeas = m.attention.forward(atomFeas, g.AtomOwners, nStructs)
		} else {
			crystalFeas = segmentMean(atomFeas, g.AtomOwners, g.AtomCounts)
		}
		energy = ad.MulCol(m.mlp.forward(crystalFeas), counts)
		if returnCrystalFeas {
			out.crystalFeas = crystalFeas
		}
	}

	//Derivatives are taken on the summed extensive energy; the graph is
	//kept alive by the returned tensors, so the energy can still feed a
	//loss term and the forces can be differentiated once more.
	if task.force() {
		grads, err := ad.Grad(ad.Sum(energy), g.Positions)
		if err != nil {
			return nil, errDecorate(err, "Model.forward")
		}
		for _, gr := range grads {
			out.forces = append(out.forces, ad.Neg(gr))
		}
	}
	if task.stress() {
		grads, err := ad.Grad(ad.Sum(energy), g.Strains)
		if err != nil {
			return nil, errDecorate(err, "Model.forward")
		}
		for i, gr := range grads {
			out.stresses = append(out.stresses, ad.Scale(gr, EVPerA3ToGPa/g.Volumes[i]))
		}
	}

	if m.cfg.IsIntensive {
		energy = ad.DivCol(energy, counts)
	}
	if m.Composition != nil {
		bias := make([]float64, nStructs)
		for i, gr := range graphs {
			bias[i] = m.Composition.EnergyOf(gr)
		}
		energy = ad.Add(energy, ad.New(nStructs, 1, bias, false))
	}
	out.energies = energy
	return out, nil
}

func countsToFloats(counts []int) []float64 {
	out := make([]float64, len(counts))
	for i, c := range counts {
		out[i] = float64(c)
	}
	return out
}

//Prediction holds the requested quantities for one structure. Only the
//fields the task asked for are set.
type Prediction struct {
	Energy float64
	//Forces is n x 3, eV per angstrom.
	Forces *mat.Dense
	//Stress is 3 x 3, GPa.
	Stress *mat.Dense
	//Magmoms holds one non-negative moment per atom.
	Magmoms []float64
	//AtomFeatures and CrystalFeature are only set when requested through
	//PredictOptions.
	AtomFeatures   *mat.Dense
	CrystalFeature []float64
}

//PredictOptions tunes the batch predict operation.
type PredictOptions struct {
	//BatchSize bounds how many structures share one forward call; zero
	//means DefaultBatchSize.
	BatchSize int
	//ReturnAtomFeatures adds the per-atom embeddings from the last
	//interior stage to each prediction.
	ReturnAtomFeatures bool
	//ReturnCrystalFeatures adds the pooled crystal feature to each
	//prediction. Only meaningful for pool-then-project readouts.
	ReturnCrystalFeatures bool
}

//PredictGraph predicts the requested quantities for a single structure.
func (m *Model) PredictGraph(g *Graph, task Task) (*Prediction, error) {
	preds, err := m.PredictGraphs([]*Graph{g}, task, nil)
	if err != nil {
		return nil, errDecorate(err, "Model.PredictGraph")
	}
	return preds[0], nil
}

//PredictGraphs predicts the requested quantities for every graph, in input
//order. The list is split into sub-batches of at most opts.BatchSize
//structures to bound the size of any one differentiation graph.
func (m *Model) PredictGraphs(graphs []*Graph, task Task, opts *PredictOptions) ([]*Prediction, error) {
	if len(graphs) == 0 {
		return nil, CError{"empty graph list", []string{"Model.PredictGraphs"}}
	}
	if !task.valid() {
		return nil, CError{fmt.Sprintf("unknown task %q", string(task)), []string{"Model.PredictGraphs"}}
	}
	var o PredictOptions
	if opts != nil {
		o = *opts
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	preds := make([]*Prediction, 0, len(graphs))
	for start := 0; start < len(graphs); start += o.BatchSize {
		end := start + o.BatchSize
		if end > len(graphs) {
			end = len(graphs)
		}
		sub := graphs[start:end]
		out, err := m.forward(sub, task, o.ReturnAtomFeatures, o.ReturnCrystalFeatures)
		if err != nil {
			return nil, errDecorate(err, "Model.PredictGraphs")
		}
		for i := range sub {
			p := &Prediction{Energy: out.energies.At(i, 0)}
			if task.force() {
				p.Forces = denseCopy(out.forces[i])
			}
			if task.stress() {
				p.Stress = denseCopy(out.stresses[i])
			}
			if task.magmom() {
				p.Magmoms = columnCopy(out.magmoms[i])
			}
			if o.ReturnAtomFeatures {
				p.AtomFeatures = denseCopy(out.atomFeas[i])
			}
			if o.ReturnCrystalFeatures && out.crystalFeas != nil {
				p.CrystalFeature = ad.SliceRows(out.crystalFeas, i, i+1).Raw()
			}
			preds = append(preds, p)
		}
	}
	return preds, nil
}

//denseCopy detaches a tensor's values into a plain gonum matrix.
func denseCopy(t *ad.Tensor) *mat.Dense {
	r, c := t.Dims()
	if r == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(r, c, t.Raw())
}

//columnCopy detaches an n x 1 tensor into a slice.
func columnCopy(t *ad.Tensor) []float64 {
	return t.Raw()
}
