/*
 * persist.go, part of crystnet.
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

//persist.go stores a model as zstd-compressed JSON: the full constructor
//configuration next to every named parameter, enough to rebuild a
//functionally identical model.

package crystnet

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

type savedParam struct {
	Name string    `json:"name"`
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

type savedAtomRef struct {
	IsIntensive bool               `json:"is_intensive"`
	References  map[string]float64 `json:"references"`
}

type container struct {
	Config  *Config       `json:"config"`
	Params  []savedParam  `json:"params"`
	AtomRef *savedAtomRef `json:"atom_ref,omitempty"`
}

//Save writes the model to path. The composition reference is stored only
//when it is an *AtomRef; other CompositionModel implementations are the
//caller's responsibility to persist.
func (m *Model) Save(path string) error {
	c := container{Config: &m.cfg}
	for _, p := range m.params() {
		r, cl := p.t.Dims()
		c.Params = append(c.Params, savedParam{Name: p.name, Rows: r, Cols: cl, Data: p.t.Raw()})
	}
	if ref, ok := m.Composition.(*AtomRef); ok && ref != nil {
		c.AtomRef = &savedAtomRef{IsIntensive: ref.IsIntensive, References: ref.References()}
	}
	f, err := os.Create(path)
	if err != nil {
		return errDecorate(err, "Model.Save")
	}
	defer f.Close()
	zw, err := zstd.NewWriter(f)
	if err != nil {
		return errDecorate(err, "Model.Save")
	}
	if err := json.NewEncoder(zw).Encode(&c); err != nil {
		zw.Close()
		return errDecorate(err, "Model.Save")
	}
	if err := zw.Close(); err != nil {
		return errDecorate(err, "Model.Save")
	}
	return nil
}

//Load rebuilds a model from a file written by Save. It fails clearly when
//the configuration is missing or any stored parameter does not match the
//shape the reconstructed architecture expects.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errDecorate(err, "Load")
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, errDecorate(err, "Load")
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, errDecorate(err, "Load")
	}
	var c container
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, errDecorate(err, "Load")
	}
	if c.Config == nil {
		return nil, CError{"saved model carries no configuration", []string{"Load"}}
	}
	m, err := New(*c.Config)
	if err != nil {
		return nil, errDecorate(err, "Load")
	}
	byName := make(map[string]savedParam, len(c.Params))
	for _, p := range c.Params {
		byName[p.Name] = p
	}
	for _, p := range m.params() {
		saved, ok := byName[p.name]
		if !ok {
			return nil, CError{fmt.Sprintf("saved model is missing parameter %q", p.name), []string{"Load"}}
		}
		r, cl := p.t.Dims()
		if saved.Rows != r || saved.Cols != cl || len(saved.Data) != r*cl {
			return nil, CError{fmt.Sprintf("parameter %q is %dx%d in the file but %dx%d in the architecture", p.name, saved.Rows, saved.Cols, r, cl), []string{"Load"}}
		}
		for i := 0; i < r; i++ {
			for j := 0; j < cl; j++ {
				p.t.SetAt(i, j, saved.Data[i*cl+j])
			}
		}
		delete(byName, p.name)
	}
	if len(byName) != 0 {
		for name := range byName {
			return nil, CError{fmt.Sprintf("saved model carries parameter %q the architecture does not expect", name), []string{"Load"}}
		}
	}
	if c.AtomRef != nil {
		ref, err := NewAtomRef(c.AtomRef.References, c.AtomRef.IsIntensive)
		if err != nil {
			return nil, errDecorate(err, "Load")
		}
		m.Composition = ref
	}
	return m, nil
}
