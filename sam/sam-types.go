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

package sam

import "fmt"

// Bits of the FLAG field of an alignment record. See
// http://samtools.github.io/hts-specs/SAMv1.pdf - Section 1.4.
const (
	Multiple      = 0x1
	Proper        = 0x2
	Unmapped      = 0x4
	NextUnmapped  = 0x8
	Reversed      = 0x10
	NextReversed  = 0x20
	First         = 0x40
	Last          = 0x80
	Secondary     = 0x100
	QCFailed      = 0x200
	Duplicate     = 0x400
	Supplementary = 0x800
)

// Record is a read-only view of an alignment record, restricted to
// the fields needed for fragment-size estimation.
type Record struct {
	FLAG uint16
	TLEN int32

	// RG is the value of the RG optional field as stored in a BAM
	// record: the type character (normally 'Z') followed by the read
	// group identifier. RG is empty if the record has no RG field.
	RG string
}

func (rec *Record) IsReversed() bool     { return (rec.FLAG & Reversed) != 0 }
func (rec *Record) IsNextReversed() bool { return (rec.FLAG & NextReversed) != 0 }

// DecodeError reports a malformed alignment record.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed %v alignment record: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
