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

package internal

import (
	"io"
	"os"
	"path/filepath"
)

// FullPathname returns filename as an absolute path, relative to the
// current working directory when filename is not absolute already.
func FullPathname(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		return filename, nil
	}
	wd, err := os.Getwd()
	return filepath.Join(wd, filename), err
}

// Close closes c and stores its error in *err, unless *err already
// holds an earlier error.
//
// Intended for deferred calls in functions with a named error result.
func Close(c io.Closer, err *error) {
	if nerr := c.Close(); *err == nil {
		*err = nerr
	}
}

// IsStdStream reports whether the given file is one of the process'
// standard streams, which must not be closed by readers and writers.
func IsStdStream(c io.Closer) bool {
	return c == os.Stdin || c == os.Stdout || c == os.Stderr
}
