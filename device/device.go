package device

import (
	"fmt"
	"sync"

	"github.com/ardnew/geckousb/pkg"
)

// DescriptorProvider supplies descriptors for GET_DESCRIPTOR requests.
// value carries the descriptor type in its high byte and the index in its
// low byte; index carries the language ID for strings. A nil result means
// the descriptor does not exist.
type DescriptorProvider interface {
	Descriptor(value, index uint16) []byte
}

// DescriptorFunc adapts a function to a DescriptorProvider.
type DescriptorFunc func(value, index uint16) []byte

// Descriptor calls f(value, index).
func (f DescriptorFunc) Descriptor(value, index uint16) []byte {
	return f(value, index)
}

// Descriptors is a DescriptorProvider backed by pre-serialized descriptors.
// It is safe to update from the foreground while the interrupt handler
// reads it.
type Descriptors struct {
	mutex sync.RWMutex

	device         []byte
	configurations [MaxConfigurations][]byte
	configCount    int

	// strings[0] is the language table.
	strings [MaxStrings][]byte
}

// NewDescriptors returns a provider serving desc as the device descriptor.
func NewDescriptors(desc *DeviceDescriptor) *Descriptors {
	d := &Descriptors{}
	d.SetDevice(desc)
	d.SetLanguages(LangIDUSEnglish)
	return d
}

// SetDevice replaces the device descriptor. bNumConfigurations is filled
// in from the configurations added so far when desc leaves it zero.
func (d *Descriptors) SetDevice(desc *DeviceDescriptor) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	dd := *desc
	if dd.NumConfigurations == 0 {
		dd.NumConfigurations = uint8(d.configCount)
	}
	d.device = AppendDescriptor(nil, &dd)
}

// AddConfiguration appends a configuration blob, as produced by
// BuildConfiguration. Configurations are served in the order added.
func (d *Descriptors) AddConfiguration(blob []byte) error {
	var cfg ConfigurationDescriptor
	if err := ParseConfigurationDescriptor(blob, &cfg); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if int(cfg.TotalLength) != len(blob) {
		return fmt.Errorf("configuration %d: wTotalLength %d, have %d bytes: %w",
			cfg.ConfigurationValue, cfg.TotalLength, len(blob), pkg.ErrInvalidParameter)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.configCount >= MaxConfigurations {
		return pkg.ErrNoMemory
	}
	for _, have := range d.configurations[:d.configCount] {
		if have[5] == cfg.ConfigurationValue {
			return fmt.Errorf("configuration %d: %w", cfg.ConfigurationValue, pkg.ErrBusy)
		}
	}
	d.configurations[d.configCount] = blob
	d.configCount++
	if len(d.device) >= 18 && d.device[17] < uint8(d.configCount) {
		d.device[17] = uint8(d.configCount)
	}

	pkg.LogDebug(pkg.ComponentRequest, "configuration added",
		"value", cfg.ConfigurationValue,
		"length", len(blob))
	return nil
}

// SetString encodes s at the given string index. Index 0 is reserved for
// the language table.
func (d *Descriptors) SetString(index uint8, s string) error {
	if index == 0 || index >= MaxStrings {
		return fmt.Errorf("string index %d: %w", index, pkg.ErrInvalidParameter)
	}
	buf := make([]byte, MaxStringLength)
	n := StringDescriptorTo(buf, s)
	if n == 0 {
		return fmt.Errorf("string %q: %w", s, pkg.ErrInvalidParameter)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.strings[index] = buf[:n]
	return nil
}

// SetLanguages replaces the language table served at string index 0.
func (d *Descriptors) SetLanguages(langIDs ...uint16) {
	buf := make([]byte, 2+2*len(langIDs))
	n := LanguageDescriptorTo(buf, langIDs...)

	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.strings[0] = buf[:n]
}

// Configuration returns the configuration blob whose bConfigurationValue
// is value, or nil.
func (d *Descriptors) Configuration(value uint8) []byte {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	for _, blob := range d.configurations[:d.configCount] {
		if blob[5] == value {
			return blob
		}
	}
	return nil
}

// Descriptor implements DescriptorProvider. Strings are served regardless
// of the requested language.
func (d *Descriptors) Descriptor(value, _ uint16) []byte {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	index := int(value & 0xFF)
	switch uint8(value >> 8) {
	case DescriptorTypeDevice:
		if index == 0 {
			return d.device
		}
	case DescriptorTypeConfiguration:
		if index < d.configCount {
			return d.configurations[index]
		}
	case DescriptorTypeString:
		if index < MaxStrings {
			return d.strings[index]
		}
	}
	return nil
}

var _ DescriptorProvider = (*Descriptors)(nil)
