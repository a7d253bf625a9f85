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

// svprep prepares SAM/BAM files for structural-variant calling: it
// discovers the sample and the sequencing libraries declared in the
// header, and estimates the fragment-size distribution and concordant
// insert-size window of each library.
//
// Please see https://github.com/exascience/svprep for a documentation
// of the tool.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/exascience/svprep/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: fragments, libraries")
	fmt.Fprint(os.Stderr, "\n", cmd.FragmentsHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.LibrariesHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "fragments":
		err = cmd.Fragments()
	case "libraries":
		err = cmd.Libraries()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Println("Unknown command:", os.Args[1])
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}
