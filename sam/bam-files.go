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
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/exascience/svprep/utils/bgzf"
)

// bamMagic is the magic string for the BAM format. See
// http://samtools.github.io/hts-specs/SAMv1.pdf - Section 4.2.
const bamMagic = "BAM\x01"

// ParseBamHeader parses the header section of an uncompressed BAM
// stream: the header text and the binary sequence dictionary. See
// http://samtools.github.io/hts-specs/SAMv1.pdf - Section 4.2.
func ParseBamHeader(reader io.Reader) (*Header, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(reader, magic); err != nil {
		return nil, fmt.Errorf("%v, while reading BAM magic string", err)
	}
	if string(magic) != bamMagic {
		return nil, errors.New("invalid BAM file header")
	}
	var lText int32
	if err := binary.Read(reader, binary.LittleEndian, &lText); err != nil {
		return nil, err
	}
	if lText < 0 {
		return nil, fmt.Errorf("invalid BAM header text length %v", lText)
	}
	text := make([]byte, int(lText))
	if _, err := io.ReadFull(reader, text); err != nil {
		return nil, fmt.Errorf("%v, while reading BAM header text", err)
	}
	if i := bytes.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}
	var nRef int32
	if err := binary.Read(reader, binary.LittleEndian, &nRef); err != nil {
		return nil, err
	}
	hdr := &Header{Text: string(text)}
	for i := int32(0); i < nRef; i++ {
		var lName int32
		if err := binary.Read(reader, binary.LittleEndian, &lName); err != nil {
			return nil, err
		}
		if lName <= 0 {
			return nil, fmt.Errorf("invalid BAM reference name length %v", lName)
		}
		name := make([]byte, int(lName))
		if _, err := io.ReadFull(reader, name); err != nil {
			return nil, err
		}
		var lRef int32
		if err := binary.Read(reader, binary.LittleEndian, &lRef); err != nil {
			return nil, err
		}
		hdr.References = append(hdr.References, Reference{
			Name:   string(name[:len(name)-1]),
			Length: lRef,
		})
	}
	return hdr, nil
}

const (
	refIDIndex     = 0
	posIndex       = 4
	lReadNameIndex = posIndex + 4
	mapqIndex      = lReadNameIndex + 1
	binIndex       = mapqIndex + 1
	nCigarOpIndex  = binIndex + 2
	flagIndex      = nCigarOpIndex + 2
	lSeqIndex      = flagIndex + 2
	nextRefIDIndex = lSeqIndex + 4
	nextPosIndex   = nextRefIDIndex + 4
	tlenIndex      = nextPosIndex + 4
	readNameIndex  = tlenIndex + 4
)

// bamTagValueSizes holds the sizes of the fixed-size optional field
// types, and of the element types of B arrays.
var bamTagValueSizes = map[byte]int{
	'A': 1,
	'c': 1,
	'C': 1,
	's': 2,
	'S': 2,
	'i': 4,
	'I': 4,
	'f': 4,
}

func bamDecodeError(format string, v ...interface{}) error {
	return &DecodeError{Format: "BAM", Err: fmt.Errorf(format, v...)}
}

// skipBamTagValue returns the index just after the value of an
// optional field of the given type that starts at index.
func skipBamTagValue(record []byte, typebyte byte, index int) (int, error) {
	if size, ok := bamTagValueSizes[typebyte]; ok {
		return index + size, nil
	}
	switch typebyte {
	case 'Z', 'H':
		end := bytes.IndexByte(record[index:], 0)
		if end < 0 {
			return 0, bamDecodeError("missing NUL byte in an optional string field")
		}
		return index + end + 1, nil
	case 'B':
		if index+5 > len(record) {
			return 0, bamDecodeError("truncated numeric array")
		}
		size, ok := bamTagValueSizes[record[index]]
		if !ok || record[index] == 'A' {
			return 0, bamDecodeError("invalid subtype %q in a numeric array", record[index])
		}
		count := int(binary.LittleEndian.Uint32(record[index+1 : index+5]))
		return index + 5 + count*size, nil
	default:
		return 0, bamDecodeError("invalid optional field type %q", typebyte)
	}
}

// ParseBamRecord decodes the FLAG, TLEN and RG fields of a BAM
// alignment record, excluding its leading block_size field. See
// http://samtools.github.io/hts-specs/SAMv1.pdf - Section 4.2.
func ParseBamRecord(record []byte) (rec Record, err error) {
	if len(record) < readNameIndex {
		return rec, bamDecodeError("record of %v bytes too short", len(record))
	}
	rec.FLAG = binary.LittleEndian.Uint16(record[flagIndex : flagIndex+2])
	rec.TLEN = int32(binary.LittleEndian.Uint32(record[tlenIndex : tlenIndex+4]))

	lReadName := int(record[lReadNameIndex])
	nCigarOp := int(binary.LittleEndian.Uint16(record[nCigarOpIndex : nCigarOpIndex+2]))
	lSeq := int(int32(binary.LittleEndian.Uint32(record[lSeqIndex : lSeqIndex+4])))
	if lSeq < 0 {
		return rec, bamDecodeError("negative sequence length %v", lSeq)
	}
	index := readNameIndex + lReadName + 4*nCigarOp + ((lSeq + 1) >> 1) + lSeq
	if index > len(record) {
		return rec, bamDecodeError("variable-length fields exceed record size %v", len(record))
	}

	for index < len(record) {
		if index+3 > len(record) {
			return rec, bamDecodeError("truncated optional field")
		}
		tag0, tag1, typebyte := record[index], record[index+1], record[index+2]
		start := index + 2
		if index, err = skipBamTagValue(record, typebyte, index+3); err != nil {
			return rec, err
		}
		if index > len(record) {
			return rec, bamDecodeError("optional field %c%c exceeds record size", tag0, tag1)
		}
		if tag0 == 'R' && tag1 == 'G' && rec.RG == "" {
			// keep the type character, drop the NUL terminator
			end := index
			if typebyte == 'Z' || typebyte == 'H' {
				end--
			}
			rec.RG = string(record[start:end])
		}
	}
	return rec, nil
}

// bamReader reads the records of a BAM file from a BGZF stream.
type bamReader struct {
	rc   io.Closer
	bgzf *bgzf.Reader
	size [4]byte
	err  error
	data interface{}
}

func (reader *bamReader) Close() error {
	err := reader.bgzf.Close()
	if nerr := reader.rc.Close(); err == nil {
		err = nerr
	}
	return err
}

func (reader *bamReader) ParseHeader() (*Header, error) {
	return ParseBamHeader(reader.bgzf)
}

func (reader *bamReader) ParseRecord(record []byte) (Record, error) {
	return ParseBamRecord(record)
}

// Err implements the method of the pipeline.Source interface.
func (reader *bamReader) Err() error {
	return reader.err
}

// Prepare implements the method of the pipeline.Source interface.
func (*bamReader) Prepare(_ context.Context) int {
	return -1
}

// Fetch implements the method of the pipeline.Source interface.
func (reader *bamReader) Fetch(size int) (fetched int) {
	if reader.err != nil {
		reader.data = nil
		return 0
	}
	records := make([][]byte, 0, size)
	for len(records) < size {
		if _, err := io.ReadFull(reader.bgzf, reader.size[:]); err != nil {
			if err != io.EOF {
				reader.err = fmt.Errorf("%v, while reading BAM record size", err)
			}
			break
		}
		blockSize := int(int32(binary.LittleEndian.Uint32(reader.size[:])))
		if blockSize < readNameIndex {
			reader.err = bamDecodeError("invalid block size %v", blockSize)
			break
		}
		record := make([]byte, blockSize)
		if _, err := io.ReadFull(reader.bgzf, record); err != nil {
			reader.err = fmt.Errorf("%v, while reading BAM record", err)
			break
		}
		records = append(records, record)
	}
	reader.data = records
	return len(records)
}

// Data implements the method of the pipeline.Source interface.
func (reader *bamReader) Data() interface{} {
	return reader.data
}
