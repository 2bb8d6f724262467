// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package train

import "fmt"

// Dataset is a set of input vectors with one scalar target each.
type Dataset struct {
	Inputs  [][]float64 `json:"inputs"`
	Targets []float64   `json:"targets"`
}

// DefaultDataset returns the four-sample binary classification set from the
// micrograd lecture.
func DefaultDataset() Dataset {
	return Dataset{
		Inputs: [][]float64{
			{2.0, 3.0, -1.0},
			{3.0, -1.0, 0.5},
			{0.5, 1.0, 1.0},
			{1.0, 1.0, -1.0},
		},
		Targets: []float64{1.0, -1.0, -1.0, 1.0},
	}
}

// Validate checks that the dataset is non-empty and rectangular, and
// returns the input width.
func (d Dataset) Validate() (int, error) {
	if len(d.Inputs) == 0 {
		return 0, fmt.Errorf("%w: empty dataset", ErrInvalidShape)
	}
	if len(d.Inputs) != len(d.Targets) {
		return 0, fmt.Errorf("%w: %d inputs but %d targets", ErrInvalidShape, len(d.Inputs), len(d.Targets))
	}
	width := len(d.Inputs[0])
	if width == 0 {
		return 0, fmt.Errorf("%w: zero-width input", ErrInvalidShape)
	}
	for i, x := range d.Inputs {
		if len(x) != width {
			return 0, fmt.Errorf("%w: sample %d has %d inputs, want %d", ErrInvalidShape, i, len(x), width)
		}
	}
	return width, nil
}
