// Package config loads device profiles: the identity, endpoint assignment
// and driver tunables of a simulated virtual serial port.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"

	"github.com/ardnew/geckousb/device/class/cdc"
	"github.com/ardnew/geckousb/device/efm32"
	"github.com/ardnew/geckousb/device/hal"
)

// Profile describes one simulated device.
type Profile struct {
	Identity  Identity  `json:"identity" yaml:"identity" toml:"identity"`
	Endpoints Endpoints `json:"endpoints" yaml:"endpoints" toml:"endpoints"`
	Driver    Driver    `json:"driver" yaml:"driver" toml:"driver"`
}

// Identity is what the device reports in its descriptors.
type Identity struct {
	VendorID     uint16 `json:"vendorId" yaml:"vendorId" toml:"vendorId"`
	ProductID    uint16 `json:"productId" yaml:"productId" toml:"productId"`
	Release      uint16 `json:"release" yaml:"release" toml:"release"`
	Manufacturer string `json:"manufacturer" yaml:"manufacturer" toml:"manufacturer"`
	Product      string `json:"product" yaml:"product" toml:"product"`
	SerialNumber string `json:"serialNumber" yaml:"serialNumber" toml:"serialNumber"`
	SelfPowered  bool   `json:"selfPowered" yaml:"selfPowered" toml:"selfPowered"`
	MaxPowerMA   uint16 `json:"maxPowerMA" yaml:"maxPowerMA" toml:"maxPowerMA"`
}

// Endpoints assigns endpoint addresses and packet sizes.
type Endpoints struct {
	ControlSize uint16 `json:"controlSize" yaml:"controlSize" toml:"controlSize"`
	Notify      uint8  `json:"notify" yaml:"notify" toml:"notify"`
	In          uint8  `json:"in" yaml:"in" toml:"in"`
	Out         uint8  `json:"out" yaml:"out" toml:"out"`
	NotifySize  uint16 `json:"notifySize" yaml:"notifySize" toml:"notifySize"`
	DataSize    uint16 `json:"dataSize" yaml:"dataSize" toml:"dataSize"`
}

// Driver holds controller tunables. Zero values select the driver's
// defaults.
type Driver struct {
	OutEndpoints int    `json:"outEndpoints" yaml:"outEndpoints" toml:"outEndpoints"`
	PollLimit    int    `json:"pollLimit" yaml:"pollLimit" toml:"pollLimit"`
	SettleDelay  string `json:"settleDelay" yaml:"settleDelay" toml:"settleDelay"`
}

// Default returns the EFM32 virtual COM port profile.
func Default() Profile {
	id := cdc.DefaultIdentity
	eps := cdc.DefaultEndpoints
	return Profile{
		Identity: Identity{
			VendorID:     id.VendorID,
			ProductID:    id.ProductID,
			Release:      id.Release,
			Manufacturer: id.Manufacturer,
			Product:      id.Product,
			SerialNumber: id.SerialNumber,
			SelfPowered:  id.SelfPowered,
			MaxPowerMA:   id.MaxPowerMA,
		},
		Endpoints: Endpoints{
			ControlSize: 64,
			Notify:      eps.Notify,
			In:          eps.In,
			Out:         eps.Out,
			NotifySize:  eps.NotifySize,
			DataSize:    eps.DataSize,
		},
		Driver: Driver{
			OutEndpoints: efm32.DefaultOutEndpoints,
			PollLimit:    efm32.DefaultPollLimit,
			SettleDelay:  efm32.DefaultSettleDelay.String(),
		},
	}
}

// Errors returned by Validate.
var (
	ErrFormat   = errors.New("unsupported profile format")
	ErrEndpoint = errors.New("invalid endpoint assignment")
	ErrDriver   = errors.New("invalid driver setting")
)

// Validate checks the endpoint assignment and driver tunables.
func (p Profile) Validate() error {
	e := p.Endpoints
	switch e.ControlSize {
	case 8, 16, 32, 64:
	default:
		return fmt.Errorf("control packet size %d: %w", e.ControlSize, ErrEndpoint)
	}
	if e.Notify&hal.EndpointDirectionIn == 0 || e.In&hal.EndpointDirectionIn == 0 || e.Out&hal.EndpointDirectionIn != 0 {
		return fmt.Errorf("notify 0x%02X in 0x%02X out 0x%02X: directions: %w", e.Notify, e.In, e.Out, ErrEndpoint)
	}
	for _, addr := range []uint8{e.Notify, e.In, e.Out} {
		n := addr & hal.EndpointNumberMask
		if n == 0 || addr&0x70 != 0 {
			return fmt.Errorf("address 0x%02X: %w", addr, ErrEndpoint)
		}
	}
	if e.Notify == e.In {
		return fmt.Errorf("notify and in share 0x%02X: %w", e.In, ErrEndpoint)
	}
	if e.NotifySize == 0 || e.NotifySize > 64 || e.DataSize == 0 || e.DataSize > 64 {
		return fmt.Errorf("packet sizes %d/%d: %w", e.NotifySize, e.DataSize, ErrEndpoint)
	}
	if p.Driver.OutEndpoints < 0 || p.Driver.PollLimit < 0 {
		return fmt.Errorf("negative tunable: %w", ErrDriver)
	}
	if _, err := p.settleDelay(); err != nil {
		return err
	}
	return nil
}

func (p Profile) settleDelay() (time.Duration, error) {
	if p.Driver.SettleDelay == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.Driver.SettleDelay)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("settle delay %q: %w", p.Driver.SettleDelay, ErrDriver)
	}
	return d, nil
}

// CDCIdentity returns the identity in the form the CDC function uses.
func (p Profile) CDCIdentity() cdc.Identity {
	id := p.Identity
	return cdc.Identity{
		VendorID:     id.VendorID,
		ProductID:    id.ProductID,
		Release:      id.Release,
		Manufacturer: id.Manufacturer,
		Product:      id.Product,
		SerialNumber: id.SerialNumber,
		SelfPowered:  id.SelfPowered,
		MaxPowerMA:   id.MaxPowerMA,
	}
}

// CDCEndpoints returns the endpoint assignment of the CDC function.
func (p Profile) CDCEndpoints() cdc.Endpoints {
	e := p.Endpoints
	return cdc.Endpoints{
		Notify:     e.Notify,
		In:         e.In,
		Out:        e.Out,
		NotifySize: e.NotifySize,
		DataSize:   e.DataSize,
	}
}

// EndpointTable returns the controller endpoint table of the profile.
func (p Profile) EndpointTable() []byte {
	return p.CDCEndpoints().Table(p.Endpoints.ControlSize)
}

// DriverConfig returns the controller configuration. The profile must be
// valid.
func (p Profile) DriverConfig() efm32.Config {
	delay, _ := p.settleDelay()
	return efm32.Config{
		OutEndpoints: p.Driver.OutEndpoints,
		PollLimit:    p.Driver.PollLimit,
		SettleDelay:  delay,
	}
}

// NormalizeFormat maps a format name or file extension to json, yaml or
// toml. It returns "" for anything else.
func NormalizeFormat(f string) string {
	switch strings.ToLower(strings.TrimPrefix(f, ".")) {
	case "json":
		return "json"
	case "yaml", "yml":
		return "yaml"
	case "toml":
		return "toml"
	default:
		return ""
	}
}

// Decode parses a profile in the given format over the defaults.
func Decode(data []byte, format string) (Profile, error) {
	p := Default()
	var err error
	switch NormalizeFormat(format) {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&p)
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(&p); errors.Is(err, io.EOF) {
			err = nil
		}
	case "toml":
		err = toml.Unmarshal(data, &p)
	default:
		return Profile{}, fmt.Errorf("%q: %w", format, ErrFormat)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("decode %s profile: %w", NormalizeFormat(format), err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Encode renders p in the given format.
func Encode(p Profile, format string) ([]byte, error) {
	switch NormalizeFormat(format) {
	case "json":
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml":
		return yaml.Marshal(p)
	case "toml":
		return toml.Marshal(p)
	default:
		return nil, fmt.Errorf("%q: %w", format, ErrFormat)
	}
}

// Load reads a profile file. The format follows the file extension.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, err
	}
	p, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return Profile{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
