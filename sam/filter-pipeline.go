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

import (
	"github.com/exascience/pargo/pipeline"
)

// Batch sizes for pipelines that stream records from an InputFile.
const (
	MinBatchSize = 4096
	MaxBatchSize = 65536
)

// BytesToRecords returns a pargo pipeline.Filter that decodes
// batches of raw records, as fetched from the given InputFile, into
// slices of Record values.
//
// A malformed record sets the pipeline error, which cancels the
// pipeline.
func BytesToRecords(reader *InputFile) pipeline.Filter {
	return func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			raw := data.([][]byte)
			records := make([]Record, 0, len(raw))
			for _, record := range raw {
				rec, err := reader.ParseRecord(record)
				if err != nil {
					p.SetErr(err)
					return records
				}
				records = append(records, rec)
			}
			return records
		}
		return
	}
}
