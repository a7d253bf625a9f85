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
	"log"

	"github.com/exascience/svprep/internal"
	"github.com/exascience/svprep/sam"
)

// Process reads the header of an opened SAM/BAM file, samples up to
// sampleSize fragment sizes per read group from its records, and
// computes the fragment statistics of each read group.
//
// A header without sample name or without read groups, and any read
// or decoding error, aborts processing. Libraries without usable
// fragment sizes are reported in the log and marked invalid.
func Process(in *sam.InputFile, sampleSize int) (*sam.Header, *Sample, error) {
	hdr, err := in.ParseHeader()
	if err != nil {
		return nil, nil, fmt.Errorf("%v, while parsing header", err)
	}
	sample, err := NewSample(hdr, sampleSize)
	if err != nil {
		return hdr, nil, err
	}
	log.Printf("Sample %v has %v libraries.\n", sample.Name, len(sample.Libraries))

	sampler := NewSampler(sample)
	if err = sampler.Run(in); err != nil {
		return hdr, nil, fmt.Errorf("%v, while sampling fragment sizes", err)
	}
	if sampler.Unresolved > 0 {
		log.Printf("Ignored %v eligible records with an unknown read group.\n", sampler.Unresolved)
	}
	for _, lib := range sample.Libraries {
		if n := len(lib.Fragments); n < sample.SampleSize {
			log.Printf("Library %v: sampled only %v of %v fragments.\n", lib.Name, n, sample.SampleSize)
		}
	}

	for _, lib := range sample.ComputeStatistics() {
		log.Printf("Warning: library %v: %v.\n", lib.Name, lib.Err)
	}
	for _, lib := range sample.Libraries {
		if lib.Valid() {
			log.Printf("Library %v: mean %.2f, stdev %.2f.\n", lib.Name, lib.FragAvg, lib.FragStd)
		}
	}
	return hdr, sample, nil
}

// ProcessFile opens the given SAM/BAM file and calls Process on it.
// Errors while closing the file are returned as well.
func ProcessFile(name string, sampleSize int) (hdr *sam.Header, sample *Sample, err error) {
	in, err := sam.Open(name)
	if err != nil {
		return nil, nil, err
	}
	defer internal.Close(in, &err)
	hdr, sample, err = Process(in, sampleSize)
	if err != nil {
		return hdr, nil, fmt.Errorf("%v, while processing %v", err, name)
	}
	return hdr, sample, nil
}
