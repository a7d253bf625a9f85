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
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/flate"

	"github.com/exascience/svprep/sam"
)

func appendInt32(buf []byte, v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return append(buf, b[:]...)
}

// bamRecord returns a BAM record, including its block_size field,
// with an RG field naming the given read group.
func bamRecord(flag uint16, tlen int32, rg string) []byte {
	var record []byte
	record = appendInt32(record, 0)
	record = appendInt32(record, 99)
	record = append(record, 3, 60, 0, 0, 0, 0, byte(flag), byte(flag>>8))
	record = appendInt32(record, 2)
	record = appendInt32(record, 0)
	record = appendInt32(record, 299)
	record = appendInt32(record, tlen)
	record = append(record, "r1\x00"...)
	record = append(record, 0x12, 30, 30)
	record = append(record, "RGZ"+rg+"\x00"...)
	return append(appendInt32(nil, int32(len(record))), record...)
}

func bamHeader(text string) []byte {
	header := append([]byte("BAM\x01"), appendInt32(nil, int32(len(text)))...)
	header = append(header, text...)
	return appendInt32(header, 0)
}

func bgzfBlock(t *testing.T, data []byte) []byte {
	var compressed bytes.Buffer
	w, err := flate.NewWriter(&compressed, flate.BestSpeed)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	bsize := 18 + compressed.Len() + 8 - 1
	block := []byte{0x1f, 0x8b, 8, 4, 0, 0, 0, 0, 0, 0xff, 6, 0, 'B', 'C', 2, 0, byte(bsize), byte(bsize >> 8)}
	block = append(block, compressed.Bytes()...)
	var trailer [8]byte
	binary.LittleEndian.PutUint32(trailer[0:4], crc32.ChecksumIEEE(data))
	binary.LittleEndian.PutUint32(trailer[4:8], uint32(len(data)))
	return append(block, trailer[:]...)
}

var bgzfEOF = []byte{0x1f, 0x8b, 8, 4, 0, 0, 0, 0, 0, 0xff, 6, 0, 'B', 'C', 2, 0, 0x1b, 0, 3, 0, 0, 0, 0, 0, 0, 0, 0, 0}

// writeBamFile writes a BAM file with n eligible records, alternating
// between lib1 and lib2, in many small BGZF blocks.
func writeBamFile(t *testing.T, dir string, n int) string {
	data := bamHeader(twoLibraryHeader)
	for i := 0; i < n; i++ {
		data = append(data, bamRecord(99, int32(100+i%50), []string{"lib1", "lib2"}[i%2])...)
	}
	var file bytes.Buffer
	for len(data) > 4096 {
		file.Write(bgzfBlock(t, data[:4096]))
		data = data[4096:]
	}
	file.Write(bgzfBlock(t, data))
	file.Write(bgzfEOF)
	name := filepath.Join(dir, "test.bam")
	if err := ioutil.WriteFile(name, file.Bytes(), 0666); err != nil {
		t.Fatal(err)
	}
	return name
}

func TestSamplerRunBamEarlyStop(t *testing.T) {
	dir, err := ioutil.TempDir("", "svprep-bam")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	name := writeBamFile(t, dir, 50000)

	in, err := sam.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	hdr, err := in.ParseHeader()
	if err != nil {
		t.Fatal(err)
	}
	sample, err := NewSample(hdr, 300)
	if err != nil {
		t.Fatal(err)
	}
	sampler := NewSampler(sample)
	if err := sampler.Run(in); err != nil {
		t.Fatal(err)
	}
	if !sampler.Done() || sampler.Records >= 50000 {
		t.Error("Sampler.Run on BAM did not stop early")
	}
	for i, lib := range sample.Libraries {
		if len(lib.Fragments) != 300 {
			t.Errorf("Sampler.Run on BAM library %v: %v fragments", i, len(lib.Fragments))
		}
		for j, v := range lib.Fragments {
			if v != int32(100+(2*j+i)%50) {
				t.Fatal("Sampler.Run on BAM order failed")
			}
		}
	}
	if err := in.Close(); err != nil {
		t.Error("Close after early stop failed:", err)
	}
}

func TestProcessBamFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "svprep-bam")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	_, sample, err := ProcessFile(writeBamFile(t, dir, 20000), 1000)
	if err != nil {
		t.Fatal(err)
	}
	for _, lib := range sample.Libraries {
		if len(lib.Fragments) != 1000 || !lib.Valid() {
			t.Errorf("ProcessFile on BAM library %v failed", lib.Name)
		}
	}
}
