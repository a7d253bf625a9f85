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

// Package fragments estimates the paired-end fragment-size
// distribution of each sequencing library (read group) of a sample.
//
// A Sample is built from the header of a SAM/BAM file. A Sampler then
// fills a bounded buffer of insert sizes per library from the record
// stream, and the statistics pass derives, per library, the median,
// the outlier-filtered mean and standard deviation, and the concordant
// window [ConcMin, ConcMax] that downstream stages use to tell normal
// read pairs from structurally variant ones.
package fragments

import (
	"errors"
	"fmt"

	"github.com/exascience/svprep/sam"
)

// DefaultSampleSize is the default maximum number of fragment sizes
// sampled per library.
const DefaultSampleSize = 1000000

var (
	// ErrNoLibraries is returned for headers without @RG lines.
	ErrNoLibraries = errors.New("no read groups declared in SAM header")

	// ErrDuplicateLibrary is returned for headers that declare the
	// same read group ID more than once.
	ErrDuplicateLibrary = errors.New("duplicate read group ID in SAM header")

	// ErrDegenerateLibrary marks a library for which no statistics
	// could be computed because no fragment sizes were retained.
	ErrDegenerateLibrary = errors.New("no usable fragment sizes")
)

// Library holds the sampled fragment sizes of one read group and the
// statistics derived from them.
type Library struct {
	Name  string
	Index int

	// Fragments holds the sampled insert sizes. Its capacity is the
	// sample size of the Sample, and its length is the number of
	// fragment sizes actually sampled.
	Fragments []int32

	FragMed          int32
	FragAvg, FragStd float64
	ConcMin, ConcMax float64

	// Retained is the number of fragment sizes kept by the outlier
	// filter.
	Retained int

	// Err is ErrDegenerateLibrary if the statistics of this library
	// are invalid.
	Err error
}

// Valid reports whether the statistics of the library were computed
// from at least one retained fragment size.
func (lib *Library) Valid() bool {
	return lib.Err == nil
}

// Registry maps read group IDs to dense library indices, assigned in
// the order in which the read groups are declared in the header.
type Registry struct {
	names []string
	index map[string]int
}

// NewRegistry returns a registry that assigns index i to names[i].
func NewRegistry(names []string) (*Registry, error) {
	registry := &Registry{
		names: append([]string(nil), names...),
		index: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("missing ID in read group %v of SAM header", i+1)
		}
		if _, found := registry.index[name]; found {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateLibrary, name)
		}
		registry.index[name] = i
	}
	return registry, nil
}

// Size returns the number of registered libraries.
func (registry *Registry) Size() int {
	return len(registry.names)
}

// Name returns the name of the library with the given index.
func (registry *Registry) Name(index int) string {
	return registry.names[index]
}

// FindIndex returns the index of the library with exactly the given
// name.
func (registry *Registry) FindIndex(name string) (int, bool) {
	index, found := registry.index[name]
	return index, found
}

// Resolve returns the index of the library named by an RG optional
// field value, which carries a one-character type prefix in front of
// the read group ID.
func (registry *Registry) Resolve(tag string) (int, bool) {
	if tag == "" {
		return -1, false
	}
	return registry.FindIndex(tag[1:])
}

// Sample is the single biological sample of an alignment file.
type Sample struct {
	Name       string
	References []sam.Reference
	Libraries  []*Library
	Registry   *Registry

	// SampleSize is the maximum number of fragment sizes sampled per
	// library.
	SampleSize int
}

// NewSample builds a sample from a SAM/BAM header, with one library
// per read group and an empty fragment buffer of capacity sampleSize
// per library.
func NewSample(hdr *sam.Header, sampleSize int) (*Sample, error) {
	if sampleSize <= 0 {
		return nil, fmt.Errorf("invalid sample size %v", sampleSize)
	}
	name, err := hdr.SampleName()
	if err != nil {
		return nil, err
	}
	if hdr.LibraryCount() == 0 {
		return nil, ErrNoLibraries
	}
	registry, err := NewRegistry(hdr.LibraryNames())
	if err != nil {
		return nil, err
	}
	sample := &Sample{
		Name:       name,
		References: hdr.References,
		Libraries:  make([]*Library, registry.Size()),
		Registry:   registry,
		SampleSize: sampleSize,
	}
	for i := range sample.Libraries {
		sample.Libraries[i] = &Library{
			Name:      registry.Name(i),
			Index:     i,
			Fragments: make([]int32, 0, sampleSize),
		}
	}
	return sample, nil
}
