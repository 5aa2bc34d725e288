/*
 * basisplot.go, part of crystnet.
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

//basisplot.go renders the basis expansions to PNG files. Mostly a debugging
//aid: a correct radial basis must be seen going smoothly to zero at the
//cutoff, and a correct angular basis must stay bounded at 0 and pi.

package crystnet

import (
	"fmt"
	"math"

	"github.com/crystalml/crystnet/ad"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

//PlotRadialBasis samples the radial basis on (0, cutoff] and writes one
//curve per basis function to a PNG file.
func PlotRadialBasis(rb *RadialBessel, samples int, filename string) error {
	if samples < 2 {
		return CError{fmt.Sprintf("need at least 2 samples, got %d", samples), []string{"PlotRadialBasis"}}
	}
	rs := make([]float64, samples)
	for i := range rs {
		rs[i] = rb.Cutoff * float64(i+1) / float64(samples)
	}
	values := rb.Expand(ad.New(samples, 1, rs, false))

	p := plot.New()
	p.Title.Text = fmt.Sprintf("radial basis, cutoff %.2f", rb.Cutoff)
	p.X.Label.Text = "r"
	p.Y.Label.Text = "basis value"
	p.Add(plotter.NewGrid())
	for k := 0; k < rb.NumRadial; k++ {
		xys := make(plotter.XYs, samples)
		for i := range rs {
			xys[i].X = rs[i]
			xys[i].Y = values.At(i, k)
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errDecorate(err, "PlotRadialBasis")
		}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("n=%d", k+1), line)
	}
	if err := p.Save(14*vg.Centimeter, 10*vg.Centimeter, filename); err != nil {
		return errDecorate(err, "PlotRadialBasis")
	}
	return nil
}

//PlotAngularBasis sweeps the angle between two unit vectors from 0 to pi
//and writes one curve per angular basis function to a PNG file.
func PlotAngularBasis(ae *AngleEncoder, samples int, filename string) error {
	if samples < 2 {
		return CError{fmt.Sprintf("need at least 2 samples, got %d", samples), []string{"PlotAngularBasis"}}
	}
	vi := make([]float64, samples*3)
	vj := make([]float64, samples*3)
	thetas := make([]float64, samples)
	for i := range thetas {
		thetas[i] = math.Pi * float64(i) / float64(samples-1)
		vi[i*3] = 1
		vj[i*3] = math.Cos(thetas[i])
		vj[i*3+1] = math.Sin(thetas[i])
	}
	values := ae.Expand(ad.New(samples, 3, vi, false), ad.New(samples, 3, vj, false))

	p := plot.New()
	p.Title.Text = fmt.Sprintf("angular basis, width %d", ae.NumAngular)
	p.X.Label.Text = "theta"
	p.Y.Label.Text = "basis value"
	p.Add(plotter.NewGrid())
	for k := 0; k < ae.NumAngular; k++ {
		xys := make(plotter.XYs, samples)
		for i := range thetas {
			xys[i].X = thetas[i]
			xys[i].Y = values.At(i, k)
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errDecorate(err, "PlotAngularBasis")
		}
		p.Add(line)
	}
	if err := p.Save(14*vg.Centimeter, 10*vg.Centimeter, filename); err != nil {
		return errDecorate(err, "PlotAngularBasis")
	}
	return nil
}
