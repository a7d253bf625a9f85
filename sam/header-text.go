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
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMissingMetadata is returned when the header text does not
// declare a sample name.
var ErrMissingMetadata = errors.New("missing SM field in SAM header")

// Header record and field tags used by svprep.
const (
	ReadGroupCode = "@RG"
	SequenceCode  = "@SQ"

	SampleTag = "SM"
	IDTag     = "ID"
	SNTag     = "SN"
	LNTag     = "LN"
)

// HeaderLines returns the lines of a SAM header text in order,
// without line terminators. Empty lines are skipped.
//
// Each call scans the text from the start with its own scanner, so
// HeaderLines can be called any number of times on the same text.
func HeaderLines(text string) (lines []string) {
	var sc StringScanner
	sc.Reset(text)
	for sc.Len() > 0 {
		line, _ := sc.readUntil('\n')
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// HeaderFields returns the tab-separated fields of a single header
// line. The first field is the record type code, for example "@RG".
func HeaderFields(line string) (fields []string) {
	var sc StringScanner
	sc.Reset(line)
	for sc.Len() > 0 {
		field, _ := sc.readUntil('\t')
		fields = append(fields, field)
	}
	return fields
}

// splitHeaderField splits a TAG:VALUE header field. ok is false if
// the field does not have that form.
func splitHeaderField(field string) (tag, value string, ok bool) {
	if len(field) < 3 || field[2] != ':' {
		return "", "", false
	}
	return field[:2], field[3:], true
}

// headerLineValue returns the value of the first field in line with
// the given tag.
func headerLineValue(line, tag string) (string, bool) {
	for _, field := range HeaderFields(line) {
		if t, value, ok := splitHeaderField(field); ok && t == tag {
			return value, true
		}
	}
	return "", false
}

func isHeaderLine(line, code string) bool {
	return strings.HasPrefix(line, code) && (len(line) == len(code) || line[len(code)] == '\t')
}

// SampleName returns the value of the first SM field found anywhere
// in the header text. If there is no SM field, or its value is empty,
// ErrMissingMetadata is returned.
func SampleName(text string) (string, error) {
	for _, line := range HeaderLines(text) {
		if value, found := headerLineValue(line, SampleTag); found {
			if value == "" {
				return "", ErrMissingMetadata
			}
			return value, nil
		}
	}
	return "", ErrMissingMetadata
}

// LibraryCount returns the number of @RG lines in the header text.
func LibraryCount(text string) (count int) {
	for _, line := range HeaderLines(text) {
		if isHeaderLine(line, ReadGroupCode) {
			count++
		}
	}
	return count
}

// LibraryNames returns the ID of each @RG line in the header text,
// in line order. An @RG line without ID contributes an empty name, so
// that the result always has LibraryCount(text) entries.
func LibraryNames(text string) (names []string) {
	for _, line := range HeaderLines(text) {
		if isHeaderLine(line, ReadGroupCode) {
			id, _ := headerLineValue(line, IDTag)
			names = append(names, id)
		}
	}
	return names
}

// Reference is an entry in the sequence dictionary of a SAM/BAM file.
type Reference struct {
	Name   string
	Length int32
}

// References returns the sequence dictionary declared by the @SQ
// lines of the header text.
func References(text string) (refs []Reference, err error) {
	for _, line := range HeaderLines(text) {
		if !isHeaderLine(line, SequenceCode) {
			continue
		}
		sn, found := headerLineValue(line, SNTag)
		if !found {
			return nil, fmt.Errorf("SN entry in a SQ header line missing: %v", line)
		}
		ln, found := headerLineValue(line, LNTag)
		if !found {
			return nil, fmt.Errorf("LN entry in a SQ header line missing: %v", line)
		}
		length, err := strconv.ParseInt(ln, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%v, while parsing LN entry of SQ header line %v", err, sn)
		}
		refs = append(refs, Reference{Name: sn, Length: int32(length)})
	}
	return refs, nil
}

// Header is the header section of a SAM/BAM file: the raw header text
// and the sequence dictionary.
type Header struct {
	Text       string
	References []Reference
}

// SampleName calls SampleName on the header text.
func (hdr *Header) SampleName() (string, error) {
	return SampleName(hdr.Text)
}

// LibraryCount calls LibraryCount on the header text.
func (hdr *Header) LibraryCount() int {
	return LibraryCount(hdr.Text)
}

// LibraryNames calls LibraryNames on the header text.
func (hdr *Header) LibraryNames() []string {
	return LibraryNames(hdr.Text)
}
