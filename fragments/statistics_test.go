// svprep: library discovery and fragment statistics for SAM/BAM files.
// Copyright (c) 2020 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/exascience/svprep/blob/master/LICENSE.txt>.

package fragments

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"
)

func newLibrary(fragments []int32) *Library {
	return &Library{Name: "lib", Fragments: fragments}
}

func TestOutlierScenario(t *testing.T) {
	fragments := make([]int32, DefaultSampleSize)
	for i := range fragments {
		fragments[i] = 100
	}
	fragments[DefaultSampleSize/3] = 5000
	lib := newLibrary(fragments)
	if err := lib.ComputeStatistics(); err != nil {
		t.Fatal(err)
	}
	if lib.FragMed != 100 || lib.Retained != DefaultSampleSize-1 {
		t.Error("outlier filter failed")
	}
	if lib.FragAvg != 100 || lib.FragStd != 0 {
		t.Error("outlier mean/std failed")
	}
	if lib.ConcMin != 100 || lib.ConcMax != 100 {
		t.Error("outlier window failed")
	}
}

func TestConcordantWindow(t *testing.T) {
	if concMin, concMax := ConcordantWindow(100, 30); concMin != 0 || concMax != 220 {
		t.Error("ConcordantWindow 1 failed")
	}
	if concMin, concMax := ConcordantWindow(100, 10); concMin != 60 || concMax != 140 {
		t.Error("ConcordantWindow 2 failed")
	}
	if concMin, concMax := ConcordantWindow(100, 25); concMin != 0 || concMax != 200 {
		t.Error("ConcordantWindow 3 failed")
	}
}

func TestMedian(t *testing.T) {
	if Median([]int32{7}) != 7 {
		t.Error("Median 1 failed")
	}
	if Median([]int32{1, 2, 3}) != 2 {
		t.Error("Median 2 failed")
	}
	if Median([]int32{1, 2, 3, 4}) != 3 {
		t.Error("Median 3 failed")
	}
}

func TestRetain(t *testing.T) {
	sorted := []int32{1, 2, 3, 6, 7, 100}
	if r := Retain(sorted, 3); len(r) != 4 {
		t.Error("Retain 1 failed")
	}
	if r := Retain(sorted, 100); len(r) != len(sorted) {
		t.Error("Retain 2 failed")
	}
	if r := Retain([]int32{math.MaxInt32}, math.MaxInt32); len(r) != 1 {
		t.Error("Retain overflow failed")
	}
}

func TestMeanStd(t *testing.T) {
	mean, std := MeanStd([]int32{2, 4, 4, 4, 5, 5, 7, 9})
	if mean != 5 || std != 2 {
		t.Error("MeanStd 1 failed")
	}
	mean, std = MeanStd([]int32{42})
	if mean != 42 || std != 0 {
		t.Error("MeanStd 2 failed")
	}
}

func TestPartialLibrary(t *testing.T) {
	lib := newLibrary(make([]int32, 0, DefaultSampleSize))
	lib.Fragments = append(lib.Fragments, 120, 100, 110)
	if err := lib.ComputeStatistics(); err != nil {
		t.Fatal(err)
	}
	if lib.FragMed != 110 || lib.FragAvg != 110 || lib.Retained != 3 {
		t.Error("partial library failed")
	}
	if math.Abs(lib.FragStd-math.Sqrt(200.0/3)) > 1e-9 {
		t.Error("partial library std failed")
	}
}

func TestFilterProperties(t *testing.T) {
	fragments := make([]int32, 100000)
	for i := range fragments {
		fragments[i] = int32(1 + rand.Intn(2000))
	}
	lib := newLibrary(fragments)
	if err := lib.ComputeStatistics(); err != nil {
		t.Fatal(err)
	}
	if !sort.SliceIsSorted(lib.Fragments, func(i, j int) bool { return lib.Fragments[i] < lib.Fragments[j] }) {
		t.Error("fragments not sorted")
	}
	if lib.Retained < len(lib.Fragments)/2 {
		t.Error("fewer than half of the fragments retained")
	}
	for i, v := range lib.Fragments {
		if (i < lib.Retained) != (int64(v) <= 2*int64(lib.FragMed)) {
			t.Fatal("retained set does not match the outlier filter")
		}
	}
	if lib.ConcMin < 0 || lib.ConcMin > lib.FragAvg || lib.ConcMax < lib.FragAvg {
		t.Error("concordant window failed")
	}
}

func TestDeterminism(t *testing.T) {
	values := make([]int32, 50000)
	for i := range values {
		values[i] = int32(100 + rand.Intn(400))
	}
	values[0] = 10000
	var results []Summary
	for i := 0; i < 3; i++ {
		fragments := append([]int32(nil), values...)
		rand.Shuffle(len(fragments), func(i, j int) {
			fragments[i], fragments[j] = fragments[j], fragments[i]
		})
		lib := newLibrary(fragments)
		if err := lib.ComputeStatistics(); err != nil {
			t.Fatal(err)
		}
		results = append(results, lib.Summary())
	}
	if results[0] != results[1] || results[0] != results[2] {
		t.Error("statistics depend on sample order")
	}
}

func TestDegenerateLibrary(t *testing.T) {
	lib := newLibrary(nil)
	if err := lib.ComputeStatistics(); !errors.Is(err, ErrDegenerateLibrary) || lib.Valid() {
		t.Error("empty library failed")
	}
	lib = newLibrary([]int32{-5, -4, -3})
	if err := lib.ComputeStatistics(); !errors.Is(err, ErrDegenerateLibrary) || lib.Valid() {
		t.Error("library without retained fragments failed")
	}
	if math.IsNaN(lib.FragAvg) || math.IsNaN(lib.FragStd) || lib.FragAvg != 0 || lib.ConcMax != 0 {
		t.Error("degenerate statistics failed")
	}
}

func TestSampleComputeStatistics(t *testing.T) {
	sample := newTestSample(t, 10)
	sample.Libraries[0].Fragments = append(sample.Libraries[0].Fragments, 300, 310, 290)
	degenerate := sample.ComputeStatistics()
	if len(degenerate) != 1 || degenerate[0] != sample.Libraries[1] {
		t.Error("degenerate libraries failed")
	}
	if !sample.Libraries[0].Valid() || sample.Libraries[0].FragAvg != 300 {
		t.Error("sample statistics failed")
	}
}
