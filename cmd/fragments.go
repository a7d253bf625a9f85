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
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/spf13/pflag"

	"github.com/exascience/svprep/fragments"
	"github.com/exascience/svprep/internal"
)

// FragmentsHelp is the help string for this command.
const FragmentsHelp = "Fragments parameters:\n" +
	"svprep fragments sam-file\n" +
	"[--output report-file]\n" +
	"[--table tsv-file]\n" +
	"[--sample-size nr]\n" +
	"[--config config-file]\n" +
	"[--nr-of-threads nr]\n" +
	"[--timed]\n" +
	"[--profile prefix]\n" +
	"[--log-path path]\n"

// Fragments implements the svprep fragments command.
func Fragments() error {
	var (
		output, table, configFile, profile string
		cfg                                = DefaultConfig()
	)

	flags := pflag.NewFlagSet("fragments", pflag.ContinueOnError)

	flags.StringVar(&output, "output", "", "write a YAML report to this file")
	flags.StringVar(&table, "table", "", "write a tab-separated summary table to this file")
	flags.IntVar(&cfg.SampleSize, "sample-size", cfg.SampleSize, "maximum number of fragment sizes sampled per library")
	flags.StringVar(&configFile, "config", "", "YAML or JSONC configuration file")
	flags.IntVar(&cfg.NrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&cfg.Timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a CPU profile")
	flags.StringVar(&cfg.LogPath, "log-path", "", "write a log file to this path")

	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, FragmentsHelp)
		os.Exit(1)
	}

	input := getFilename(os.Args[2], FragmentsHelp)

	parseFlags(flags, 3, FragmentsHelp)

	if configFile != "" {
		file := cfg
		if err := LoadConfig(configFile, &file); err != nil {
			return err
		}
		cfg.override(flags, file)
	}

	if cfg.LogPath != "" {
		if err := setLogOutput(cfg.LogPath); err != nil {
			return err
		}
	}

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", input) {
		sanityChecksFailed = true
	}
	if output != "" && !checkCreate("--output", output) {
		sanityChecksFailed = true
	}
	if table != "" && !checkCreate("--table", table) {
		sanityChecksFailed = true
	}
	if cfg.SampleSize <= 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid sample-size: ", cfg.SampleSize)
	}
	if cfg.NrOfThreads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid nr-of-threads: ", cfg.NrOfThreads)
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, FragmentsHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " fragments ", input)
	if output != "" {
		fmt.Fprint(&command, " --output ", output)
	}
	if table != "" {
		fmt.Fprint(&command, " --table ", table)
	}
	fmt.Fprint(&command, " --sample-size ", cfg.SampleSize)
	if cfg.NrOfThreads > 0 {
		runtime.GOMAXPROCS(cfg.NrOfThreads)
		fmt.Fprint(&command, " --nr-of-threads ", cfg.NrOfThreads)
	}
	if cfg.Timed {
		fmt.Fprint(&command, " --timed")
	}
	if profile != "" {
		fmt.Fprint(&command, " --profile ", profile)
	}
	if cfg.LogPath != "" {
		fmt.Fprint(&command, " --log-path ", cfg.LogPath)
	}

	// executing command

	log.Println("Executing command:\n", command.String())

	fullInput, err := internal.FullPathname(input)
	if err != nil {
		return err
	}

	return timedRun(cfg.Timed, profile, "Computing fragment statistics.", 1, func() error {
		hdr, sample, err := fragments.ProcessFile(fullInput, cfg.SampleSize)
		if err != nil {
			return err
		}
		if output != "" {
			if err := writeFile(output, fragments.NewReport(fullInput, hdr, sample).Write); err != nil {
				return err
			}
		}
		if table != "" {
			return writeFile(table, func(w io.Writer) error {
				return fragments.WriteTable(w, sample)
			})
		}
		if output == "" {
			return fragments.WriteTable(os.Stdout, sample)
		}
		return nil
	})
}

// writeFile creates the named file and calls write on it. The file is
// always closed; /dev/stdout is written to directly.
func writeFile(name string, write func(io.Writer) error) (err error) {
	if name == "/dev/stdout" {
		return write(os.Stdout)
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer internal.Close(f, &err)
	return write(f)
}
