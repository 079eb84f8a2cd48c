package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ardnew/geckousb/device/hal"
	"github.com/ardnew/geckousb/pkg"
)

// ClassHandler answers class or vendor requests ahead of the standard
// request processing. It returns false for requests it does not own.
type ClassHandler interface {
	HandleClassRequest(req *SetupPacket, pipe hal.ControlPipe) bool
}

// errUnhandled marks a request the processor does not implement.
var errUnhandled = errors.New("unhandled request")

// Processor implements hal.RequestHandler for the standard requests of
// USB 2.0 chapter 9, delegating to class handlers first.
type Processor struct {
	descriptors DescriptorProvider
	classes     []ClassHandler

	mutex sync.RWMutex
}

// NewProcessor returns a processor serving descriptors from provider.
func NewProcessor(provider DescriptorProvider, classes ...ClassHandler) *Processor {
	return &Processor{
		descriptors: provider,
		classes:     classes,
	}
}

// AddClass registers a class handler. Handlers are consulted in the order
// they were added.
func (p *Processor) AddClass(h ClassHandler) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.classes = append(p.classes, h)
}

// HandleControlRequest implements hal.RequestHandler.
func (p *Processor) HandleControlRequest(req *SetupPacket, pipe hal.ControlPipe) bool {
	p.mutex.RLock()
	classes := p.classes
	p.mutex.RUnlock()

	for _, h := range classes {
		if h.HandleClassRequest(req, pipe) {
			return true
		}
	}
	if req.Type() != RequestTypeStandard {
		return false
	}

	var err error
	switch req.Recipient() {
	case RequestRecipientDevice:
		err = p.deviceRequest(req, pipe)
	case RequestRecipientInterface:
		err = p.interfaceRequest(req, pipe)
	case RequestRecipientEndpoint:
		err = p.endpointRequest(req, pipe)
	default:
		err = errUnhandled
	}
	if err != nil {
		pkg.LogDebug(pkg.ComponentRequest, "request rejected",
			"setup", req.String(),
			"error", err)
		return false
	}
	return true
}

func (p *Processor) deviceRequest(req *SetupPacket, pipe hal.ControlPipe) error {
	switch req.Request {
	case RequestGetStatus:
		var status uint16
		if p.selfPowered(pipe) {
			status |= StatusSelfPowered
		}
		if pipe.RemoteWakeup() {
			status |= StatusRemoteWakeup
		}
		return writeStatus(pipe, status)

	case RequestClearFeature, RequestSetFeature:
		if req.Value != FeatureDeviceRemoteWakeup {
			return errUnhandled
		}
		pipe.SetRemoteWakeup(req.Request == RequestSetFeature)
		return pipe.Acknowledge()

	case RequestSetAddress:
		if req.Value > 0x7F {
			return fmt.Errorf("address %d: %w", req.Value, pkg.ErrInvalidParameter)
		}
		return pipe.SetAddress(uint8(req.Value))

	case RequestGetDescriptor:
		if p.descriptors == nil {
			return errUnhandled
		}
		desc := p.descriptors.Descriptor(req.Value, req.Index)
		if desc == nil {
			return fmt.Errorf("descriptor 0x%04X: %w", req.Value, errUnhandled)
		}
		return pipe.WriteControl(desc)

	case RequestGetConfiguration:
		return pipe.WriteControl([]byte{pipe.Configuration()})

	case RequestSetConfiguration:
		value := uint8(req.Value)
		if req.Value > 0xFF || value != 0 && p.configuration(value) == nil {
			return fmt.Errorf("configuration %d: %w", req.Value, pkg.ErrInvalidParameter)
		}
		return pipe.SetConfiguration(value)
	}
	return errUnhandled
}

func (p *Processor) interfaceRequest(req *SetupPacket, pipe hal.ControlPipe) error {
	if !p.validInterface(pipe, req.Index) {
		return fmt.Errorf("interface %d: %w", req.Index, pkg.ErrInvalidParameter)
	}
	switch req.Request {
	case RequestGetStatus:
		return writeStatus(pipe, 0)
	case RequestGetInterface:
		return pipe.WriteControl([]byte{0})
	case RequestSetInterface:
		// Only the default alternate setting exists.
		if req.Value != 0 {
			return fmt.Errorf("alternate setting %d: %w", req.Value, pkg.ErrInvalidParameter)
		}
		return pipe.Acknowledge()
	}
	return errUnhandled
}

func (p *Processor) endpointRequest(req *SetupPacket, pipe hal.ControlPipe) error {
	address := uint8(req.Index)
	switch req.Request {
	case RequestGetStatus:
		halted, err := pipe.EndpointHalted(address)
		if err != nil {
			return err
		}
		var status uint16
		if halted {
			status = StatusEndpointHalt
		}
		return writeStatus(pipe, status)

	case RequestClearFeature:
		if req.Value != FeatureEndpointHalt {
			return errUnhandled
		}
		if err := pipe.ClearHalt(address); err != nil {
			return err
		}
		return pipe.Acknowledge()

	case RequestSetFeature:
		if req.Value != FeatureEndpointHalt {
			return errUnhandled
		}
		if err := pipe.HaltEndpoint(address); err != nil {
			return err
		}
		return pipe.Acknowledge()
	}
	return errUnhandled
}

func writeStatus(pipe hal.ControlPipe, status uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], status)
	return pipe.WriteControl(buf[:])
}

// configurationAt parses the header of the configuration at position i.
func (p *Processor) configurationAt(i int) *ConfigurationDescriptor {
	if p.descriptors == nil {
		return nil
	}
	blob := p.descriptors.Descriptor(uint16(DescriptorTypeConfiguration)<<8|uint16(i), 0)
	var cfg ConfigurationDescriptor
	if blob == nil || ParseConfigurationDescriptor(blob, &cfg) != nil {
		return nil
	}
	return &cfg
}

// configuration returns the configuration header whose
// bConfigurationValue is value.
func (p *Processor) configuration(value uint8) *ConfigurationDescriptor {
	for i := range MaxConfigurations {
		cfg := p.configurationAt(i)
		if cfg == nil {
			return nil
		}
		if cfg.ConfigurationValue == value {
			return cfg
		}
	}
	return nil
}

// selfPowered reports the power source of the active configuration, or
// of the first one while unconfigured.
func (p *Processor) selfPowered(pipe hal.ControlPipe) bool {
	cfg := p.configurationAt(0)
	if value := pipe.Configuration(); value != 0 {
		cfg = p.configuration(value)
	}
	return cfg != nil && cfg.Attributes&ConfigAttrSelfPowered != 0
}

func (p *Processor) validInterface(pipe hal.ControlPipe, iface uint16) bool {
	if pipe.State() != hal.StateConfigured {
		return false
	}
	cfg := p.configuration(pipe.Configuration())
	return cfg != nil && iface < uint16(cfg.NumInterfaces)
}

var _ hal.RequestHandler = (*Processor)(nil)
