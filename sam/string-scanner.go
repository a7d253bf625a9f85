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

/*
A scanner to scan ASCII strings representing lines in SAM files.

The zero StringScanner is valid and empty. A StringScanner never
modifies the string it scans, so any number of scanners can work on
the same text at the same time.
*/
type StringScanner struct {
	index int
	data  string
}

/*
Resets the scanner, and initializes it with the given string.
*/
func (sc *StringScanner) Reset(s string) {
	sc.index = 0
	sc.data = s
}

/*
Returns the number of ASCII characters that still need to be
scanned/parsed.
*/
func (sc *StringScanner) Len() int {
	return len(sc.data) - sc.index
}

// readUntil returns the characters up to, but excluding, the next
// occurrence of c, and advances past c. If c does not occur anymore,
// the rest of the data is returned and found is false.
func (sc *StringScanner) readUntil(c byte) (s string, found bool) {
	start := sc.index
	for end := sc.index; end < len(sc.data); end++ {
		if sc.data[end] == c {
			sc.index = end + 1
			return sc.data[start:end], true
		}
	}
	sc.index = len(sc.data)
	return sc.data[start:], false
}
