package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ardnew/geckousb/device/class/cdc"
)

// Ports lists the serial ports run --port accepts.
type Ports struct{}

// Run is called by kong when the ports command is executed.
func (p *Ports) Run(logger *slog.Logger) error {
	return listPorts(os.Stdout, cdc.ListSerialPorts, logger)
}

func listPorts(w io.Writer, list func() ([]string, error), logger *slog.Logger) error {
	ports, err := list()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	if len(ports) == 0 {
		logger.Info("no serial ports found")
		return nil
	}
	for _, name := range ports {
		if _, err := fmt.Fprintln(w, name); err != nil {
			return err
		}
	}
	return nil
}
