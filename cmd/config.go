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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/exascience/svprep/fragments"
)

// Config holds the settings of the fragments command that can also be
// given in a configuration file.
type Config struct {
	SampleSize  int    `yaml:"sample-size" json:"sample-size"`
	NrOfThreads int    `yaml:"nr-of-threads" json:"nr-of-threads"`
	LogPath     string `yaml:"log-path" json:"log-path"`
	Timed       bool   `yaml:"timed" json:"timed"`
}

// DefaultConfig returns the settings used when neither a configuration
// file nor command line flags override them.
func DefaultConfig() Config {
	return Config{SampleSize: fragments.DefaultSampleSize}
}

// ParseConfig parses configuration data. Data in .json or .jsonc
// files may contain comments and trailing commas; anything else is
// parsed as YAML. Fields missing from the data keep their value in
// cfg.
func ParseConfig(data []byte, ext string, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// LoadConfig reads the configuration file with the given name into cfg.
func LoadConfig(name string, cfg *Config) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	if err := ParseConfig(data, filepath.Ext(name), cfg); err != nil {
		return fmt.Errorf("%v, while parsing configuration file %v", err, name)
	}
	return nil
}

// override replaces the fields of cfg by the ones from file, except
// for those whose flags were given explicitly on the command line.
func (cfg *Config) override(flags *pflag.FlagSet, file Config) {
	if !flags.Changed("sample-size") {
		cfg.SampleSize = file.SampleSize
	}
	if !flags.Changed("nr-of-threads") {
		cfg.NrOfThreads = file.NrOfThreads
	}
	if !flags.Changed("log-path") {
		cfg.LogPath = file.LogPath
	}
	if !flags.Changed("timed") {
		cfg.Timed = file.Timed
	}
}
