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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/exascience/pargo/pipeline"

	"github.com/exascience/svprep/internal"
	"github.com/exascience/svprep/utils"
	"github.com/exascience/svprep/utils/bgzf"
)

type (
	// alignmentReader is a common interface for reading both SAM and BAM files.
	alignmentReader interface {
		ParseHeader() (*Header, error)
		ParseRecord([]byte) (Record, error)
		pipeline.Source
		io.Closer
	}

	// InputFile represents a SAM or BAM file for input.
	InputFile struct {
		reader alignmentReader
	}
)

// Close closes the SAM/BAM input file.
func (f *InputFile) Close() error {
	return f.reader.Close()
}

// ParseHeader fetches the header from a SAM or BAM file. It must be
// called exactly once, before any records are fetched.
func (f *InputFile) ParseHeader() (*Header, error) {
	return f.reader.ParseHeader()
}

// ParseRecord decodes a raw record as fetched by the pipeline.Source
// methods of the InputFile.
func (f *InputFile) ParseRecord(record []byte) (Record, error) {
	return f.reader.ParseRecord(record)
}

// Err implements the method of the pipeline.Source interface.
func (f *InputFile) Err() error {
	return f.reader.Err()
}

// Prepare implements the method of the pipeline.Source interface.
func (f *InputFile) Prepare(ctx context.Context) int {
	return f.reader.Prepare(ctx)
}

// Fetch implements the method of the pipeline.Source interface.
func (f *InputFile) Fetch(size int) int {
	return f.reader.Fetch(size)
}

// Data implements the method of the pipeline.Source interface. The
// data of each batch is a [][]byte of raw records.
func (f *InputFile) Data() interface{} {
	return f.reader.Data()
}

// SAM file extensions.
const (
	SamExt  = ".sam"
	BamExt  = ".bam"
	CramExt = ".cram"
)

// textCloser closes an optional BGZF decompressor on top of a file.
type textCloser struct {
	decompressor io.Closer
	file         io.Closer
}

func (c textCloser) Close() (err error) {
	if c.decompressor != nil {
		err = c.decompressor.Close()
	}
	if internal.IsStdStream(c.file) {
		return err
	}
	if nerr := c.file.Close(); err == nil {
		err = nerr
	}
	return err
}

// Open a SAM or BAM file for input.
//
// If the filename extension is not .bam, then .sam is always
// assumed. SAM files may be BGZF-compressed.
//
// If the name is "/dev/stdin", then the input is read from os.Stdin
func Open(name string) (*InputFile, error) {
	switch filepath.Ext(name) {
	case BamExt:
		file, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		reader, err := bgzf.NewReader(bufio.NewReader(file))
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("%v, while opening BAM file %v", err, name)
		}
		return &InputFile{
			reader: &bamReader{
				rc:   file,
				bgzf: reader,
			},
		}, nil
	case CramExt:
		return nil, fmt.Errorf("CRAM format not supported when opening %v", name)
	default:
		var file *os.File
		if name == "/dev/stdin" {
			file = os.Stdin
		} else {
			var err error
			if file, err = os.Open(name); err != nil {
				return nil, err
			}
		}
		input, err := utils.HandleBGZF(bufio.NewReader(file))
		if err != nil {
			if !internal.IsStdStream(file) {
				_ = file.Close()
			}
			return nil, fmt.Errorf("%v, while opening SAM file %v", err, name)
		}
		closer := textCloser{file: file}
		if c, ok := input.(io.Closer); ok {
			closer.decompressor = c
		}
		buf, ok := input.(*bufio.Reader)
		if !ok {
			buf = bufio.NewReader(input)
		}
		return &InputFile{
			reader: &samReader{
				rc:  closer,
				buf: buf,
			},
		}, nil
	}
}
