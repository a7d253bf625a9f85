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

// Package bgzf reads BGZF files, the blocked gzip variant used for
// BAM files. See http://samtools.github.io/hts-specs/SAMv1.pdf -
// Section 4.1.
//
// Blocks are inflated in parallel by a pargo pipeline and handed to
// the reader in file order.
package bgzf

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/exascience/pargo/pipeline"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// IsGzip determines if the the given byte scanner produces
// a gzip file. It uses ReadByte and UnreadByte to check
// only the initial byte from the input.
func IsGzip(scanner io.ByteScanner) (bool, error) {
	b, err := scanner.ReadByte()
	if err != nil {
		return false, err
	}
	if err := scanner.UnreadByte(); err != nil {
		return false, err
	}
	return b == 0x1f, nil
}

// MaxBlockSize is the maximum size of a BGZF block, both compressed
// and uncompressed.
const MaxBlockSize = 65536

// headerSize is the size of a gzip member header without its extra
// subfields.
const headerSize = 12

// trailerSize is the size of the CRC32 and ISIZE fields after the
// compressed data.
const trailerSize = 8

// ErrMissingEOF is returned when the input does not end with the
// empty BGZF block that marks the end of file.
var ErrMissingEOF = errors.New("invalid BGZF file: does not end in proper EOF marker")

type (
	// block holds either the compressed or the inflated payload of
	// one gzip member.
	block struct {
		data  []byte
		crc32 uint32
		size  uint32
	}

	// Reader reads in parallel from a BGZF file.
	Reader struct {
		err     error
		r       flate.Reader
		gz      *gzip.Reader
		p       pipeline.Pipeline
		wg      sync.WaitGroup
		blocks  chan *block
		ctx     context.Context
		cancel  context.CancelFunc
		data    interface{}
		current *block
		offset  int
	}

	// blockSource is the pipeline.Source view of a Reader.
	blockSource Reader
)

var blockPool = sync.Pool{New: func() interface{} {
	return &block{data: make([]byte, 0, MaxBlockSize)}
}}

// bsize returns the BSIZE value from the BC extra subfield of the
// current gzip member header.
func bsize(extra []byte) (int, error) {
	for i := 0; i+4 <= len(extra); {
		slen := int(binary.LittleEndian.Uint16(extra[i+2 : i+4]))
		if extra[i] == 'B' && extra[i+1] == 'C' && slen == 2 && i+6 <= len(extra) {
			return int(binary.LittleEndian.Uint16(extra[i+4 : i+6])), nil
		}
		i += 4 + slen
	}
	return 0, errors.New("missing BC extra subfield in BGZF header")
}

// isEOFBlock recognizes the empty block at the end of a BGZF file.
func isEOFBlock(b *block) bool {
	return len(b.data) == 2 && b.data[0] == 3 && b.data[1] == 0 && b.crc32 == 0 && b.size == 0
}

// readBlock reads the compressed payload of the member whose header
// was parsed last, and then parses the header of the next member.
func (src *blockSource) readBlock() (*block, error) {
	size, err := bsize(src.gz.Extra)
	if err != nil {
		return nil, err
	}
	payload := size + 1 - headerSize - len(src.gz.Extra) - trailerSize
	if payload < 0 || payload > MaxBlockSize {
		return nil, fmt.Errorf("invalid BGZF block size %v", size)
	}
	b := blockPool.Get().(*block)
	b.data = b.data[:payload]
	if _, err := io.ReadFull(src.r, b.data); err != nil {
		return nil, err
	}
	var trailer [trailerSize]byte
	if _, err := io.ReadFull(src.r, trailer[:]); err != nil {
		return nil, err
	}
	b.crc32 = binary.LittleEndian.Uint32(trailer[0:4])
	b.size = binary.LittleEndian.Uint32(trailer[4:8])
	switch err := src.gz.Reset(src.r); {
	case err == io.EOF:
		if !isEOFBlock(b) {
			return b, ErrMissingEOF
		}
		return b, io.EOF
	case err != nil:
		return b, fmt.Errorf("%v, while reading a BGZF block header", err)
	}
	return b, nil
}

// Err implements the corresponding method of pipeline.Source
func (src *blockSource) Err() error {
	if src.err != io.EOF {
		return src.err
	}
	return nil
}

// Prepare implements the corresponding method of pipeline.Source
func (*blockSource) Prepare(_ context.Context) int {
	return -1
}

// Fetch implements the corresponding method of pipeline.Source
func (src *blockSource) Fetch(_ int) int {
	if src.err != nil {
		src.data = nil
		return 0
	}
	b, err := src.readBlock()
	src.err = err
	if b == nil || (err != nil && err != io.EOF) {
		src.data = nil
		return 0
	}
	src.data = b
	return 1
}

// Data implements the corresponding method of pipeline.Source
func (src *blockSource) Data() interface{} {
	return src.data
}

var flateReaderPool sync.Pool

// inflate decompresses a block into a fresh block from the pool and
// verifies its checksum.
func inflate(b *block) (*block, error) {
	input := bytes.NewReader(b.data)
	var fr io.ReadCloser
	if pooled := flateReaderPool.Get(); pooled != nil {
		fr = pooled.(io.ReadCloser)
		if err := fr.(flate.Resetter).Reset(input, nil); err != nil {
			fr = flate.NewReader(input)
		}
	} else {
		fr = flate.NewReader(input)
	}
	defer flateReaderPool.Put(fr)
	out := blockPool.Get().(*block)
	if b.size > MaxBlockSize {
		return out, fmt.Errorf("invalid uncompressed BGZF block size %v", b.size)
	}
	out.data = out.data[:int(b.size)]
	if _, err := io.ReadFull(fr, out.data); err == io.EOF {
		return out, io.ErrUnexpectedEOF
	} else if err != nil {
		return out, err
	}
	if crc32.ChecksumIEEE(out.data) != b.crc32 {
		return out, errors.New("invalid CRC-32 value for a data block in a BGZF file")
	}
	return out, fr.Close()
}

// NewReader returns a Reader for the given flate.Reader. The first
// gzip member header is parsed immediately.
func NewReader(r flate.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%v in bgzf.NewReader", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	bgzf := &Reader{
		r:      r,
		gz:     gz,
		blocks: make(chan *block, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	bgzf.p.Source((*blockSource)(bgzf))
	var failed bool
	bgzf.p.Add(
		pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
			compressed := data.(*block)
			inflated, err := inflate(compressed)
			blockPool.Put(compressed)
			if err != nil {
				blockPool.Put(inflated)
				bgzf.p.SetErr(err)
				return nil
			}
			return inflated
		})),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			// blocks after a failed one are never handed to the reader
			b, _ := data.(*block)
			if b == nil {
				failed = true
			}
			if failed {
				return nil
			}
			select {
			case <-bgzf.ctx.Done():
				bgzf.p.SetErr(bgzf.ctx.Err())
			case bgzf.blocks <- b:
			}
			return nil
		})),
	)
	bgzf.wg.Add(1)
	go func() {
		defer bgzf.wg.Done()
		// Run skips the finalizers when the pipeline fails
		defer close(bgzf.blocks)
		bgzf.p.Run()
	}()
	return bgzf, nil
}

// Close implements the corresponding method of io.Closer. Blocks that
// have not been read yet are discarded.
func (bgzf *Reader) Close() error {
	bgzf.cancel()
	bgzf.wg.Wait()
	if err := bgzf.gz.Close(); err != nil {
		return err
	}
	if err := bgzf.p.Err(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func (bgzf *Reader) nextBlock() error {
	if bgzf.current != nil {
		blockPool.Put(bgzf.current)
		bgzf.current = nil
	}
	select {
	case <-bgzf.ctx.Done():
		return bgzf.ctx.Err()
	case b, ok := <-bgzf.blocks:
		if !ok {
			if err := bgzf.p.Err(); err != nil {
				return err
			}
			if bgzf.err != nil {
				return bgzf.err
			}
			return io.EOF
		}
		bgzf.current, bgzf.offset = b, 0
		return nil
	}
}

// Read implements the corresponding method of io.Reader
func (bgzf *Reader) Read(p []byte) (n int, err error) {
	for bgzf.current == nil || bgzf.offset == len(bgzf.current.data) {
		if err = bgzf.nextBlock(); err != nil {
			return 0, err
		}
	}
	n = copy(p, bgzf.current.data[bgzf.offset:])
	bgzf.offset += n
	return n, nil
}
