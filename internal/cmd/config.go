package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"

	"github.com/ardnew/geckousb/internal/config"
)

// ConfigCommand groups config-related subcommands.
type ConfigCommand struct {
	Init ConfigInit `cmd:"" help:"Generate a configuration template"`
}

// ConfigInit scaffolds a flag-defaults file for a command, or a device
// profile.
type ConfigInit struct {
	Target string `arg:"" name:"target" help:"What to generate" enum:"run,layout,profile"`
	Format string `help:"Output format" enum:"json,yaml,yml,toml" default:"yaml"`
	Output string `help:"Destination file path (defaults to the current directory)" type:"path"`
	Force  bool   `help:"Overwrite if the file already exists"`
}

// Run is called by kong when config init is executed.
func (c *ConfigInit) Run() error {
	format := config.NormalizeFormat(c.Format)
	data, err := configTemplate(c.Target, format)
	if err != nil {
		return err
	}

	dest := c.Output
	if dest == "" {
		base := c.Target
		if base != ProfileBase {
			base = config.Name
		}
		dest = base + config.Extension(format)
	}
	if !c.Force {
		if _, err := os.Stat(dest); err == nil {
			return errors.New("destination exists; use --force to overwrite")
		}
	}
	if err := config.EnsureDir(dest); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

// configTemplate renders the template for target in format.
func configTemplate(target, format string) ([]byte, error) {
	if target == ProfileBase {
		return config.Encode(config.Default(), format)
	}

	// kong's JSON resolver matches snake_case keys; the YAML and TOML
	// loaders match flag names.
	sep := "-"
	if format == "json" {
		sep = "_"
	}
	var root map[string]any
	switch target {
	case "run":
		root = buildMapFromStruct(reflect.TypeOf(Run{}), sep)
	case "layout":
		root = buildMapFromStruct(reflect.TypeOf(Layout{}), sep)
	default:
		return nil, fmt.Errorf("unknown target %q", target)
	}
	// Flags of the root command apply to every subcommand.
	root["log"] = buildMapFromStruct(reflect.TypeOf(LogConfig{}), sep)
	root["profile"] = ""

	switch format {
	case "json":
		data, err := json.MarshalIndent(root, "", "  ")
		return append(data, '\n'), err
	case "yaml":
		return yaml.Marshal(root)
	case "toml":
		return toml.Marshal(root)
	default:
		return nil, fmt.Errorf("%q: %w", format, config.ErrFormat)
	}
}

// buildMapFromStruct maps a command's flags to their defaults, keyed the
// way kong's configuration loaders resolve them.
func buildMapFromStruct(t reflect.Type, sep string) map[string]any {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	out := map[string]any{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("kong") == "-" {
			continue
		}
		if _, ok := f.Tag.Lookup("cmd"); ok {
			continue
		}
		if _, ok := f.Tag.Lookup("arg"); ok {
			continue
		}
		if _, ok := f.Tag.Lookup("embed"); ok {
			name := strings.TrimSuffix(f.Tag.Get("prefix"), ".")
			sub := buildMapFromStruct(f.Type, sep)
			if name != "" {
				out[name] = sub
			} else {
				for k, v := range sub {
					out[k] = v
				}
			}
			continue
		}
		if v := defaultValue(f.Type, f.Tag.Get("default"), sep); v != nil {
			out[flagName(f.Name, sep)] = v
		}
	}
	return out
}

// flagName converts a field name to kong's flag name, joining words with
// sep.
func flagName(s, sep string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteString(sep)
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func defaultValue(t reflect.Type, def, sep string) any {
	switch t.Kind() {
	case reflect.String:
		return def
	case reflect.Bool:
		b, _ := strconv.ParseBool(def)
		return b
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, _ := strconv.ParseInt(def, 10, 64)
		return n
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, _ := strconv.ParseUint(def, 10, 64)
		return n
	case reflect.Struct:
		return buildMapFromStruct(t, sep)
	default:
		return nil
	}
}
