// Package cmd implements the vcpsim commands.
package cmd

import (
	"fmt"

	"github.com/ardnew/geckousb/internal/config"
)

// CLI is the root command line.
type CLI struct {
	Config  string    `help:"Configuration file for flag defaults (JSON, YAML or TOML)" type:"path" placeholder:"FILE"`
	Profile string    `help:"Device profile file; searched for as profile.{json,yaml,toml} when unset" type:"path" placeholder:"FILE" env:"VCPSIM_PROFILE"`
	Log     LogConfig `embed:"" prefix:"log."`

	Run        Run           `cmd:"" help:"Enumerate the simulated device and bridge its data endpoints"`
	Layout     Layout        `cmd:"" help:"Print the descriptors, endpoint table and FIFO layout of a profile"`
	Ports      Ports         `cmd:"" help:"List host serial ports"`
	ConfigInit ConfigCommand `cmd:"" name:"config" help:"Configuration file helpers"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"VCPSIM_LOG_LEVEL"`
	Format string `help:"Log format; auto picks text on a terminal" enum:"auto,text,json" default:"auto"`
	File   string `help:"Also log to this file" type:"path" placeholder:"FILE"`
}

// ProfileBase is the base name searched for when no profile is given.
const ProfileBase = "profile"

// loadProfile loads the profile at path, or the first profile found in
// the configuration paths, or the built-in default.
func loadProfile(path string) (config.Profile, string, error) {
	found := config.Find(path, ProfileBase)
	if found == "" {
		return config.Default(), "", nil
	}
	p, err := config.Load(found)
	if err != nil {
		return config.Profile{}, found, fmt.Errorf("load profile: %w", err)
	}
	return p, found, nil
}
