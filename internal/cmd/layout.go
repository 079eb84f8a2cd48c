package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"

	"github.com/ardnew/geckousb/device/efm32"
	"github.com/ardnew/geckousb/device/hal"
	"github.com/ardnew/geckousb/internal/config"
	"github.com/ardnew/geckousb/internal/usbid"
)

// Layout prints what a profile produces: the configuration descriptor,
// the endpoint table and the FIFO partitioning the driver computes.
type Layout struct {
	Format string `help:"Output format" enum:"json,yaml,toml" default:"yaml" short:"f"`
	Output string `help:"Write to this file instead of standard output" type:"path" short:"o"`
}

type layoutReport struct {
	Source        string           `json:"source" yaml:"source" toml:"source"`
	VendorID      string           `json:"vendorId" yaml:"vendorId" toml:"vendorId"`
	ProductID     string           `json:"productId" yaml:"productId" toml:"productId"`
	Vendor        string           `json:"vendor,omitempty" yaml:"vendor,omitempty" toml:"vendor,omitempty"`
	Product       string           `json:"product,omitempty" yaml:"product,omitempty" toml:"product,omitempty"`
	Endpoints     []endpointReport `json:"endpoints" yaml:"endpoints" toml:"endpoints"`
	FIFO          efm32.FifoLayout `json:"fifo" yaml:"fifo" toml:"fifo"`
	FIFOWords     int              `json:"fifoWords" yaml:"fifoWords" toml:"fifoWords"`
	Configuration string           `json:"configuration" yaml:"configuration" toml:"configuration"`
}

type endpointReport struct {
	Address    string `json:"address" yaml:"address" toml:"address"`
	Type       string `json:"type" yaml:"type" toml:"type"`
	PacketSize uint16 `json:"packetSize" yaml:"packetSize" toml:"packetSize"`
}

var transferTypeNames = [...]string{"control", "isochronous", "bulk", "interrupt"}

// Run is called by kong when the layout command is executed.
func (l *Layout) Run(g Globals, logger *slog.Logger) error {
	profile, source, err := loadProfile(g.Profile)
	if err != nil {
		return err
	}
	report, err := buildLayout(profile, sourceName(source), usbid.New())
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if l.Output != "" {
		if err := config.EnsureDir(l.Output); err != nil {
			return err
		}
		f, err := os.Create(l.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := writeLayout(w, report, l.Format); err != nil {
		return err
	}
	logger.Debug("layout written", "format", l.Format, "fifo_words", report.FIFOWords)
	return nil
}

func buildLayout(profile config.Profile, source string, db *usbid.Database) (*layoutReport, error) {
	port, err := newPort(profile)
	if err != nil {
		return nil, err
	}
	eps, err := hal.ParseEndpointTable(profile.EndpointTable())
	if err != nil {
		return nil, err
	}

	id := profile.Identity
	report := &layoutReport{
		Source:    source,
		VendorID:  fmt.Sprintf("0x%04X", id.VendorID),
		ProductID: fmt.Sprintf("0x%04X", id.ProductID),
		FIFO:      port.ctrl.Layout(),
	}
	if db.Load() == nil {
		report.Vendor = db.Vendor(id.VendorID)
		report.Product = db.Product(id.VendorID, id.ProductID)
	}
	report.FIFOWords = report.FIFO.Total()
	for _, ep := range eps {
		report.Endpoints = append(report.Endpoints, endpointReport{
			Address:    fmt.Sprintf("0x%02X", ep.Address),
			Type:       transferTypeNames[ep.TransferType()],
			PacketSize: ep.MaxPacketSize,
		})
	}
	e, err := port.host.Enumerate(1)
	if err != nil {
		return nil, err
	}
	report.Configuration = hex.EncodeToString(e.Configuration)
	return report, nil
}

func writeLayout(w io.Writer, report *layoutReport, format string) error {
	var data []byte
	var err error
	switch config.NormalizeFormat(format) {
	case "json":
		data, err = json.MarshalIndent(report, "", "  ")
		data = append(data, '\n')
	case "yaml":
		data, err = yaml.Marshal(report)
	case "toml":
		data, err = toml.Marshal(report)
	default:
		return fmt.Errorf("%q: %w", format, config.ErrFormat)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
