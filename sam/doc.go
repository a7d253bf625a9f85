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

// Package sam reads SAM and BAM files as a forward-only stream of
// alignment records, and extracts the metadata that svprep needs from
// their headers.
//
// Only the parts of an alignment record that are relevant for
// fragment-size estimation are decoded: the FLAG and TLEN fields and
// the RG optional field. Records are fetched in raw form through the
// pipeline.Source methods of InputFile, so that they can be decoded in
// parallel by a pargo pipeline (see BytesToRecords) while still being
// consumed in file order. See
// https://godoc.org/github.com/exascience/pargo/pipeline for details
// of pargo pipelines.
package sam
