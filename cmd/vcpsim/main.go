// Command vcpsim runs the EFM32 virtual serial port against a simulated
// USB controller and host.
package main

import (
	"os"
	"strings"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"

	"github.com/ardnew/geckousb/internal/cmd"
	"github.com/ardnew/geckousb/internal/config"
	"github.com/ardnew/geckousb/internal/log"
	"github.com/ardnew/geckousb/pkg"
)

func main() {
	userCfg := findUserConfig(os.Args[1:])
	jsonPaths, yamlPaths, tomlPaths := config.CandidatePaths(userCfg)

	var cli cmd.CLI
	ctx := kong.Parse(&cli,
		kong.Name(config.Name),
		kong.Description("EFM32 USB virtual serial port simulator"),
		kong.UsageOnError(),
		// Flags override values from the first configuration file found.
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)

	logger, closers, err := log.SetupLogger(cli.Log.Level, cli.Log.Format, cli.Log.File)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	// Driver and class logging share the command's handlers and level.
	pkg.SetLogger(logger)
	pkg.SetLogLevel(log.ParseLevel(cli.Log.Level))

	ctx.Bind(logger)
	ctx.Bind(cmd.Globals{Profile: cli.Profile})
	err = ctx.Run()
	ctx.FatalIfErrorf(err)
}

func findUserConfig(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv("VCPSIM_CONFIG")
}
