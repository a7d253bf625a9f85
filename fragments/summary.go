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
	"bufio"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/exascience/svprep/sam"
	"github.com/exascience/svprep/utils"
)

// Summary is the finalized, read-only view of the statistics of one
// library, as handed to downstream stages.
type Summary struct {
	Name     string  `yaml:"name"`
	Index    int     `yaml:"index"`
	Sampled  int     `yaml:"sampled"`
	Retained int     `yaml:"retained"`
	FragMed  int32   `yaml:"frag-med"`
	FragAvg  float64 `yaml:"frag-avg"`
	FragStd  float64 `yaml:"frag-std"`
	ConcMin  float64 `yaml:"conc-min"`
	ConcMax  float64 `yaml:"conc-max"`
	Valid    bool    `yaml:"valid"`
}

// Summary returns the summary of the library.
func (lib *Library) Summary() Summary {
	return Summary{
		Name:     lib.Name,
		Index:    lib.Index,
		Sampled:  len(lib.Fragments),
		Retained: lib.Retained,
		FragMed:  lib.FragMed,
		FragAvg:  lib.FragAvg,
		FragStd:  lib.FragStd,
		ConcMin:  lib.ConcMin,
		ConcMax:  lib.ConcMax,
		Valid:    lib.Valid(),
	}
}

// Summaries returns the summaries of all libraries in index order.
func (sample *Sample) Summaries() []Summary {
	summaries := make([]Summary, len(sample.Libraries))
	for i, lib := range sample.Libraries {
		summaries[i] = lib.Summary()
	}
	return summaries
}

// Report is the machine-readable result of one svprep run.
type Report struct {
	RunID        string    `yaml:"run-id"`
	Program      string    `yaml:"program"`
	Version      string    `yaml:"version"`
	Input        string    `yaml:"input"`
	HeaderDigest string    `yaml:"header-digest"`
	Sample       string    `yaml:"sample"`
	SampleSize   int       `yaml:"sample-size"`
	Libraries    []Summary `yaml:"libraries"`
}

// HeaderDigest returns the hex-encoded BLAKE3 hash of the header
// text, which ties a report to the input it was computed from.
func HeaderDigest(hdr *sam.Header) string {
	sum := blake3.Sum256([]byte(hdr.Text))
	return hex.EncodeToString(sum[:])
}

// NewReport returns a report for the given input file, header and
// finalized sample, with a fresh run identifier.
func NewReport(input string, hdr *sam.Header, sample *Sample) *Report {
	return &Report{
		RunID:        uuid.New().String(),
		Program:      utils.ProgramName,
		Version:      utils.ProgramVersion,
		Input:        input,
		HeaderDigest: HeaderDigest(hdr),
		Sample:       sample.Name,
		SampleSize:   sample.SampleSize,
		Libraries:    sample.Summaries(),
	}
}

// Write writes the report in YAML format.
func (report *Report) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

// ReadReport reads a report in YAML format.
func ReadReport(r io.Reader) (*Report, error) {
	var report Report
	if err := yaml.NewDecoder(r).Decode(&report); err != nil {
		return nil, fmt.Errorf("%v, while reading svprep report", err)
	}
	return &report, nil
}

// WriteTable writes the library summaries of a sample as a
// tab-separated table with a header line.
func WriteTable(w io.Writer, sample *Sample) error {
	out := bufio.NewWriter(w)
	fmt.Fprintln(out, "#library\tsampled\tretained\tfrag-med\tfrag-avg\tfrag-std\tconc-min\tconc-max\tvalid")
	for _, s := range sample.Summaries() {
		fmt.Fprintf(out, "%v\t%v\t%v\t%v\t%.4f\t%.4f\t%.4f\t%.4f\t%v\n",
			s.Name, s.Sampled, s.Retained, s.FragMed, s.FragAvg, s.FragStd, s.ConcMin, s.ConcMax, s.Valid)
	}
	return out.Flush()
}
