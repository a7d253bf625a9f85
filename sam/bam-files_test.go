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
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/flate"
)

func putInt32(buf *bytes.Buffer, v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}

// makeBamRecord returns a BAM record without its block_size field,
// with a two-base sequence and no CIGAR operations.
func makeBamRecord(flag uint16, tlen int32, tags []byte) []byte {
	var buf bytes.Buffer
	putInt32(&buf, 0)  // refID
	putInt32(&buf, 99) // pos
	buf.WriteByte(3)   // l_read_name
	buf.WriteByte(60)  // mapq
	buf.Write([]byte{0, 0})
	buf.Write([]byte{0, 0}) // n_cigar_op
	var f [2]byte
	binary.LittleEndian.PutUint16(f[:], flag)
	buf.Write(f[:])
	putInt32(&buf, 2) // l_seq
	putInt32(&buf, 0)
	putInt32(&buf, 299)
	putInt32(&buf, tlen)
	buf.WriteString("r1\x00")
	buf.WriteByte(0x12)       // seq
	buf.Write([]byte{30, 30}) // qual
	buf.Write(tags)
	return buf.Bytes()
}

var bamTags = []byte("NMC\x05" +
	"XAB" + "S\x02\x00\x00\x00" + "\x01\x00\x02\x00" +
	"XSZhello\x00" +
	"RGZlib2\x00" +
	"ASi\x10\x00\x00\x00")

func TestParseBamRecord(t *testing.T) {
	rec, err := ParseBamRecord(makeBamRecord(99, 250, bamTags))
	if err != nil {
		t.Fatal(err)
	}
	if rec.FLAG != 99 || rec.TLEN != 250 || rec.RG != "Zlib2" {
		t.Error("ParseBamRecord 1 failed")
	}
	rec, err = ParseBamRecord(makeBamRecord(147, -250, nil))
	if err != nil {
		t.Fatal(err)
	}
	if rec.FLAG != 147 || rec.TLEN != -250 || rec.RG != "" {
		t.Error("ParseBamRecord 2 failed")
	}
	for i, record := range [][]byte{
		make([]byte, 10),
		makeBamRecord(99, 250, []byte("RGZlib2")),
		makeBamRecord(99, 250, []byte("XXq\x01")),
		makeBamRecord(99, 250, []byte("XAB")),
		makeBamRecord(99, 250, []byte("ASi\x10")),
	} {
		_, err := ParseBamRecord(record)
		var decodeError *DecodeError
		if !errors.As(err, &decodeError) || decodeError.Format != "BAM" {
			t.Errorf("ParseBamRecord error %v failed", i+1)
		}
	}
}

func makeBamHeader(text string, refs []Reference) []byte {
	var buf bytes.Buffer
	buf.WriteString(bamMagic)
	putInt32(&buf, int32(len(text)+3))
	buf.WriteString(text)
	buf.Write([]byte{0, 0, 0})
	putInt32(&buf, int32(len(refs)))
	for _, ref := range refs {
		putInt32(&buf, int32(len(ref.Name)+1))
		buf.WriteString(ref.Name)
		buf.WriteByte(0)
		putInt32(&buf, ref.Length)
	}
	return buf.Bytes()
}

func TestParseBamHeader(t *testing.T) {
	refs := []Reference{{"chr1", 248956422}, {"chr2", 242193529}}
	hdr, err := ParseBamHeader(bytes.NewReader(makeBamHeader(scenarioHeader, refs)))
	if err != nil {
		t.Fatal(err)
	}
	if hdr.Text != scenarioHeader {
		t.Error("ParseBamHeader text failed")
	}
	if len(hdr.References) != 2 || hdr.References[0] != refs[0] || hdr.References[1] != refs[1] {
		t.Error("ParseBamHeader references failed")
	}
	if _, err := ParseBamHeader(bytes.NewReader([]byte("BAM\x02"))); err == nil {
		t.Error("ParseBamHeader magic failed")
	}
}

// bgzfBlock compresses data into a single BGZF block.
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

func TestOpenBam(t *testing.T) {
	var bam bytes.Buffer
	bam.Write(makeBamHeader(scenarioHeader, []Reference{{"chr1", 248956422}}))
	for i := 0; i < 5; i++ {
		record := makeBamRecord(99, int32(200+i), bamTags)
		putInt32(&bam, int32(len(record)))
		bam.Write(record)
	}
	data := bam.Bytes()
	var file bytes.Buffer
	// split the stream across blocks, also in the middle of records
	for len(data) > 100 {
		file.Write(bgzfBlock(t, data[:100]))
		data = data[100:]
	}
	file.Write(bgzfBlock(t, data))
	file.Write(bgzfEOF)

	dir, err := ioutil.TempDir("", "svprep-bam")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	name := filepath.Join(dir, "test.bam")
	if err := ioutil.WriteFile(name, file.Bytes(), 0666); err != nil {
		t.Fatal(err)
	}

	in, err := Open(name)
	if err != nil {
		t.Fatal(err)
	}
	hdr, err := in.ParseHeader()
	if err != nil {
		t.Fatal(err)
	}
	if hdr.Text != scenarioHeader || len(hdr.References) != 1 {
		t.Error("Open BAM header failed")
	}
	records := fetchAll(t, in)
	if len(records) != 5 {
		t.Fatalf("Open BAM records failed: %v", len(records))
	}
	for i, rec := range records {
		if rec.TLEN != int32(200+i) || rec.RG != "Zlib2" {
			t.Errorf("Open BAM record %v failed", i)
		}
	}
	if err := in.Close(); err != nil {
		t.Error(err)
	}
}

func TestOpenCorruptBam(t *testing.T) {
	var records bytes.Buffer
	for i := 0; i < 100; i++ {
		record := makeBamRecord(99, int32(200+i), bamTags)
		putInt32(&records, int32(len(record)))
		records.Write(record)
	}
	corrupt := bgzfBlock(t, records.Bytes())
	corrupt[len(corrupt)-8] ^= 0xff // CRC32

	var file bytes.Buffer
	file.Write(bgzfBlock(t, makeBamHeader(scenarioHeader, []Reference{{"chr1", 248956422}})))
	file.Write(corrupt)
	file.Write(bgzfEOF)

	dir, err := ioutil.TempDir("", "svprep-bam")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	name := filepath.Join(dir, "corrupt.bam")
	if err := ioutil.WriteFile(name, file.Bytes(), 0666); err != nil {
		t.Fatal(err)
	}

	in, err := Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	// the corrupt block may already be reported while reading the header
	if _, err := in.ParseHeader(); err != nil {
		return
	}
	var fetched int
	for n := in.Fetch(16); n > 0; n = in.Fetch(16) {
		fetched += n
	}
	if in.Err() == nil {
		t.Error("corrupt BAM block not reported")
	}
	if fetched != 0 {
		t.Error("records fetched from a corrupt BAM block")
	}
}
