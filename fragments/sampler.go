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

	"github.com/exascience/pargo/pipeline"
	"github.com/willf/bitset"

	"github.com/exascience/svprep/sam"
)

// Sampler fills the fragment buffers of the libraries of a sample
// from a stream of alignment records.
type Sampler struct {
	sample    *Sample
	satisfied *bitset.BitSet
	remaining int

	// Records counts the records offered to the sampler, Eligible the
	// ones that passed the eligibility filter, and Unresolved the
	// eligible ones whose read group is not declared in the header.
	Records, Eligible, Unresolved int
}

// NewSampler returns a sampler for the libraries of the given sample.
func NewSampler(sample *Sample) *Sampler {
	return &Sampler{
		sample:    sample,
		satisfied: bitset.New(uint(len(sample.Libraries))),
		remaining: len(sample.Libraries),
	}
}

// IsEligible reports whether the insert size of a record can be used
// for fragment-size estimation: the insert size is positive, the read
// is on the forward strand, and its mate on the reverse strand.
func IsEligible(rec *sam.Record) bool {
	return rec.TLEN > 0 && !rec.IsReversed() && rec.IsNextReversed()
}

// Done reports whether every library holds SampleSize fragment sizes.
func (s *Sampler) Done() bool {
	return s.remaining == 0
}

// Satisfied reports whether the library with the given index holds
// SampleSize fragment sizes.
func (s *Sampler) Satisfied(index int) bool {
	return s.satisfied.Test(uint(index))
}

// Add offers one record to the sampler, and reports whether every
// library is satisfied afterwards.
func (s *Sampler) Add(rec *sam.Record) bool {
	if s.remaining == 0 {
		return true
	}
	s.Records++
	if !IsEligible(rec) {
		return false
	}
	s.Eligible++
	index, found := s.sample.Registry.Resolve(rec.RG)
	if !found {
		s.Unresolved++
		return false
	}
	if s.satisfied.Test(uint(index)) {
		return false
	}
	lib := s.sample.Libraries[index]
	lib.Fragments = append(lib.Fragments, rec.TLEN)
	if len(lib.Fragments) >= s.sample.SampleSize {
		s.satisfied.Set(uint(index))
		s.remaining--
	}
	return s.remaining == 0
}

// errSampled stops the sampling pipeline once every library is
// satisfied. It is never returned to callers.
var errSampled = errors.New("all libraries sampled")

// Run consumes the records of an input file whose header has already
// been parsed, until the input is exhausted or every library is
// satisfied.
//
// Records are decoded in parallel, but offered to the sampler one by
// one in file order. Decoding and read errors are returned.
func (s *Sampler) Run(in *sam.InputFile) error {
	if s.Done() {
		return nil
	}
	var p pipeline.Pipeline
	p.Source(in)
	p.SetVariableBatchSize(sam.MinBatchSize, sam.MaxBatchSize)
	p.Add(
		pipeline.LimitedPar(0, sam.BytesToRecords(in)),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			records := data.([]sam.Record)
			for i := range records {
				if s.Add(&records[i]) {
					p.SetErr(errSampled)
					break
				}
			}
			return nil
		})),
	)
	p.Run()
	if err := p.Err(); err != nil && err != errSampled {
		return err
	}
	return nil
}
