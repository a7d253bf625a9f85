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

package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/exascience/svprep/internal"
	"github.com/exascience/svprep/sam"
)

// LibrariesHelp is the help string for this command.
const LibrariesHelp = "Libraries parameters:\n" +
	"svprep libraries sam-file\n" +
	"[--references]\n"

// Libraries implements the svprep libraries command, which lists the
// sample name and the read groups declared in the header of a SAM/BAM
// file.
func Libraries() error {
	var references bool

	flags := pflag.NewFlagSet("libraries", pflag.ContinueOnError)
	flags.BoolVar(&references, "references", false, "also list the reference sequences")

	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, LibrariesHelp)
		os.Exit(1)
	}

	input := getFilename(os.Args[2], LibrariesHelp)

	parseFlags(flags, 3, LibrariesHelp)

	if !checkExist("", input) {
		fmt.Fprint(os.Stderr, LibrariesHelp)
		os.Exit(1)
	}

	return listLibraries(input, references)
}

func listLibraries(input string, references bool) (err error) {
	in, err := sam.Open(input)
	if err != nil {
		return err
	}
	defer internal.Close(in, &err)
	hdr, err := in.ParseHeader()
	if err != nil {
		return fmt.Errorf("%v, while parsing header of %v", err, input)
	}
	name, err := hdr.SampleName()
	if err != nil {
		return fmt.Errorf("%v, in %v", err, input)
	}
	out := bufio.NewWriter(os.Stdout)
	fmt.Fprintf(out, "sample\t%v\n", name)
	for i, lib := range hdr.LibraryNames() {
		fmt.Fprintf(out, "library\t%v\t%v\n", i, lib)
	}
	if references {
		for _, ref := range hdr.References {
			fmt.Fprintf(out, "reference\t%v\t%v\n", ref.Name, ref.Length)
		}
	}
	return out.Flush()
}
