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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadSamHeaderText reads the header section of a SAM file, that is
// all lines at the start of the input that begin with '@'.
func ReadSamHeaderText(reader *bufio.Reader) (string, error) {
	var text strings.Builder
	for {
		switch data, err := reader.Peek(1); {
		case err == io.EOF:
			return text.String(), nil
		case err != nil:
			return text.String(), err
		case data[0] != '@':
			return text.String(), nil
		}
		line, err := reader.ReadString('\n')
		text.WriteString(line)
		if err == io.EOF {
			return text.String(), nil
		} else if err != nil {
			return text.String(), err
		}
	}
}

// samFieldCount is the number of mandatory fields in a SAM alignment
// line.
const samFieldCount = 11

const (
	flagField = 1
	tlenField = 8
)

func samDecodeError(format string, v ...interface{}) error {
	return &DecodeError{Format: "SAM", Err: fmt.Errorf(format, v...)}
}

// ParseSamRecord parses one line of the alignment section of a SAM
// file, without line terminator.
func ParseSamRecord(line string) (rec Record, err error) {
	var sc StringScanner
	sc.Reset(line)
	for field := 0; field < samFieldCount; field++ {
		value, found := sc.readUntil('\t')
		if !found && field < samFieldCount-1 {
			return rec, samDecodeError("missing tabulator after field %v in %q", field+1, line)
		}
		switch field {
		case flagField:
			flag, err := strconv.ParseUint(value, 10, 16)
			if err != nil {
				return rec, &DecodeError{Format: "SAM", Err: err}
			}
			rec.FLAG = uint16(flag)
		case tlenField:
			tlen, err := strconv.ParseInt(value, 10, 32)
			if err != nil {
				return rec, &DecodeError{Format: "SAM", Err: err}
			}
			rec.TLEN = int32(tlen)
		}
	}
	for sc.Len() > 0 {
		field, _ := sc.readUntil('\t')
		if len(field) < 5 || field[2] != ':' || field[4] != ':' {
			return rec, samDecodeError("invalid optional field %q", field)
		}
		if field[:2] == "RG" && rec.RG == "" {
			rec.RG = field[3:4] + field[5:]
		}
	}
	return rec, nil
}

// samReader reads the records of a SAM file line by line.
type samReader struct {
	rc   io.Closer
	buf  *bufio.Reader
	err  error
	data interface{}
}

func (reader *samReader) Close() error {
	return reader.rc.Close()
}

func (reader *samReader) ParseHeader() (*Header, error) {
	text, err := ReadSamHeaderText(reader.buf)
	if err != nil {
		return nil, err
	}
	refs, err := References(text)
	if err != nil {
		return nil, err
	}
	return &Header{Text: text, References: refs}, nil
}

func (reader *samReader) ParseRecord(record []byte) (Record, error) {
	return ParseSamRecord(string(record))
}

// Err implements the method of the pipeline.Source interface.
func (reader *samReader) Err() error {
	return reader.err
}

// Prepare implements the method of the pipeline.Source interface.
func (*samReader) Prepare(_ context.Context) int {
	return -1
}

// Fetch implements the method of the pipeline.Source interface.
func (reader *samReader) Fetch(size int) (fetched int) {
	if reader.err != nil {
		reader.data = nil
		return 0
	}
	records := make([][]byte, 0, size)
	for len(records) < size {
		line, err := reader.buf.ReadBytes('\n')
		line = bytes.TrimRight(line, "\r\n")
		if len(line) > 0 {
			records = append(records, line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				reader.err = err
			}
			break
		}
	}
	reader.data = records
	return len(records)
}

// Data implements the method of the pipeline.Source interface.
func (reader *samReader) Data() interface{} {
	return reader.data
}
