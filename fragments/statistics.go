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
	"fmt"
	"math"
	"sort"

	"github.com/exascience/pargo/parallel"
	psort "github.com/exascience/pargo/sort"
)

// OutlierFactor bounds the fragment sizes kept for the mean and
// standard deviation: values above OutlierFactor times the median are
// discarded.
const OutlierFactor = 2

// ConcordantWidth is the number of standard deviations around the
// mean that make up the concordant window.
const ConcordantWidth = 4

type fragmentSorter []int32

func (s fragmentSorter) SequentialSort(i, j int) {
	fragments := s[i:j]
	sort.Slice(fragments, func(i, j int) bool {
		return fragments[i] < fragments[j]
	})
}

func (s fragmentSorter) NewTemp() psort.StableSorter {
	return fragmentSorter(make([]int32, len(s)))
}

func (s fragmentSorter) Len() int {
	return len(s)
}

func (s fragmentSorter) Less(i, j int) bool {
	return s[i] < s[j]
}

func (s fragmentSorter) Assign(source psort.StableSorter) func(i, j, len int) {
	dst, src := s, source.(fragmentSorter)
	return func(i, j, len int) {
		copy(dst[i:i+len], src[j:j+len])
	}
}

// SortFragments sorts fragment sizes in ascending order, using a
// parallel sort.
func SortFragments(fragments []int32) {
	psort.StableSort(fragmentSorter(fragments))
}

// Median returns the element at index len(sorted)/2, that is the
// upper of the two middle elements if the length is even. sorted must
// be non-empty and sorted in ascending order.
func Median(sorted []int32) int32 {
	return sorted[len(sorted)/2]
}

// Retain returns the prefix of sorted that holds all values v with
// v <= OutlierFactor*median.
func Retain(sorted []int32, median int32) []int32 {
	threshold := OutlierFactor * int64(median)
	r := sort.Search(len(sorted), func(i int) bool {
		return int64(sorted[i]) > threshold
	})
	return sorted[:r]
}

// MeanStd returns the mean and the population standard deviation of
// the given values, which must not be empty.
func MeanStd(values []int32) (mean, std float64) {
	var sum int64
	for _, v := range values {
		sum += int64(v)
	}
	n := float64(len(values))
	mean = float64(sum) / n
	var variance float64
	for _, v := range values {
		d := float64(v) - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / n)
}

// ConcordantWindow returns the range of insert sizes within
// ConcordantWidth standard deviations of the mean, clamped at 0.
func ConcordantWindow(mean, std float64) (concMin, concMax float64) {
	concMin = mean - ConcordantWidth*std
	if concMin < 0 {
		concMin = 0
	}
	return concMin, mean + ConcordantWidth*std
}

// ComputeStatistics sorts the sampled fragment sizes of the library
// and derives its median, mean, standard deviation and concordant
// window from them. The median is determined on all samples, the mean
// and standard deviation only on the samples retained by the outlier
// filter.
//
// If no fragment sizes are retained, all statistics are zero, lib.Err
// is set to ErrDegenerateLibrary, and an error is returned.
func (lib *Library) ComputeStatistics() error {
	lib.FragMed, lib.FragAvg, lib.FragStd = 0, 0, 0
	lib.ConcMin, lib.ConcMax = 0, 0
	lib.Retained, lib.Err = 0, nil
	if len(lib.Fragments) == 0 {
		lib.Err = ErrDegenerateLibrary
		return fmt.Errorf("%w in library %v: no fragments sampled", ErrDegenerateLibrary, lib.Name)
	}
	SortFragments(lib.Fragments)
	median := Median(lib.Fragments)
	retained := Retain(lib.Fragments, median)
	if len(retained) == 0 {
		lib.Err = ErrDegenerateLibrary
		return fmt.Errorf("%w in library %v: all %v fragments above %v", ErrDegenerateLibrary, lib.Name, len(lib.Fragments), OutlierFactor*int64(median))
	}
	mean, std := MeanStd(retained)
	lib.FragMed = median
	lib.FragAvg, lib.FragStd = mean, std
	lib.ConcMin, lib.ConcMax = ConcordantWindow(mean, std)
	lib.Retained = len(retained)
	return nil
}

// ComputeStatistics computes the statistics of all libraries in
// parallel. The libraries for which no statistics could be computed
// are returned; their Err fields are set.
func (sample *Sample) ComputeStatistics() (degenerate []*Library) {
	libraries := sample.Libraries
	parallel.Range(0, len(libraries), 0, func(low, high int) {
		for _, lib := range libraries[low:high] {
			_ = lib.ComputeStatistics()
		}
	})
	for _, lib := range libraries {
		if !lib.Valid() {
			degenerate = append(degenerate, lib)
		}
	}
	return degenerate
}
