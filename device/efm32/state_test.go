package efm32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/geckousb/device/efm32/reg"
	"github.com/ardnew/geckousb/device/hal"
)

func TestNextState(t *testing.T) {
	tests := []struct {
		name       string
		cur        hal.State
		ev         busEvent
		addressed  bool
		configured bool
		arg        uint8
		want       hal.State
		accepted   bool
	}{
		{"power from unattached", hal.StateUnattached, eventPowerPresent, false, false, 0, hal.StatePowered, true},
		{"power while default", hal.StateDefault, eventPowerPresent, false, false, 0, hal.StatePowered, false},
		{"power lost", hal.StateConfigured, eventPowerAbsent, true, true, 0, hal.StateUnattached, true},
		{"reset from powered", hal.StatePowered, eventBusReset, false, false, 0, hal.StateDefault, true},
		{"reset from configured", hal.StateConfigured, eventBusReset, true, true, 0, hal.StateDefault, true},
		{"reset detect", hal.StateSuspended, eventResetDetect, true, false, 0, hal.StateDefault, true},
		{"suspend", hal.StateConfigured, eventSuspend, true, true, 0, hal.StateSuspended, true},
		{"wakeup configured", hal.StateSuspended, eventWakeup, true, true, 0, hal.StateConfigured, true},
		{"wakeup addressed", hal.StateSuspended, eventWakeup, true, false, 0, hal.StateAddressed, true},
		{"wakeup powered", hal.StateSuspended, eventWakeup, false, false, 0, hal.StatePowered, true},
		{"address", hal.StateDefault, eventAddress, false, false, 5, hal.StateAddressed, true},
		{"address zero", hal.StateAddressed, eventAddress, true, false, 0, hal.StateDefault, true},
		{"address while configured", hal.StateConfigured, eventAddress, true, true, 5, hal.StateConfigured, false},
		{"configure", hal.StateAddressed, eventConfigure, true, false, 1, hal.StateConfigured, true},
		{"deconfigure", hal.StateConfigured, eventConfigure, true, true, 0, hal.StateAddressed, true},
		{"configure while default", hal.StateDefault, eventConfigure, false, false, 1, hal.StateDefault, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := nextState(tt.cur, tt.ev, tt.addressed, tt.configured, tt.arg)
			assert.Equal(t, tt.accepted, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestBusEvent_String(t *testing.T) {
	assert.Equal(t, "bus-reset", eventBusReset.String())
	assert.Equal(t, "unknown", busEvent(200).String())
}

func TestStateChanges(t *testing.T) {
	c, s, _ := newSerialDevice(t)

	var seen []hal.State
	c.SetOnStateChange(func(_, next hal.State) { seen = append(seen, next) })
	enumerate(t, s)

	assert.Equal(t, []hal.State{
		hal.StatePowered,
		hal.StateDefault,
		hal.StateAddressed,
		hal.StateConfigured,
	}, seen)
	assert.Equal(t, uint8(1), c.Configuration())
	assert.Equal(t, hal.SpeedFull, c.Speed())
}

func TestPowerCallbacks(t *testing.T) {
	c, s, _ := newSerialDevice(t)

	connects, disconnects := 0, 0
	c.SetOnConnect(func() { connects++ })
	c.SetOnDisconnect(func() { disconnects++ })

	s.PowerOn()
	assert.Equal(t, hal.StatePowered, c.State())
	require.NoError(t, s.BusReset())

	// Power-present outside Unattached changes nothing.
	s.PowerOn()
	assert.Equal(t, hal.StateDefault, c.State())
	assert.Equal(t, 1, connects)

	s.PowerOff()
	assert.Equal(t, hal.StateUnattached, c.State())
	assert.Equal(t, 1, disconnects)
	assert.Zero(t, s.Load(reg.GINTMSK))
}

func TestBusReset_FromConfigured(t *testing.T) {
	c, s, _ := newSerialDevice(t)
	enumerate(t, s)
	require.Equal(t, hal.StateConfigured, c.State())

	resets := 0
	c.SetOnReset(func() { resets++ })
	require.NoError(t, s.BusReset())

	assert.Equal(t, hal.StateDefault, c.State())
	assert.Equal(t, 1, resets)
	assert.Zero(t, c.Configuration())
	armed, count := s.SetupArmed()
	assert.True(t, armed)
	assert.Equal(t, 3, count)

	_, err := c.Write(0x82, []byte("x"))
	assert.Error(t, err)
	for _, ep := range c.Endpoints() {
		assert.Equal(t, LifecycleIdle, ep.Lifecycle)
	}
}

func TestSuspendResume(t *testing.T) {
	c, s, _ := newSerialDevice(t)
	enumerate(t, s)

	suspended, woken := false, false
	c.SetOnSuspend(func() { suspended = true })
	c.SetOnWakeUp(func() { woken = true })

	require.NoError(t, s.Suspend())
	assert.Equal(t, hal.StateSuspended, c.State())
	assert.True(t, suspended)

	require.NoError(t, s.Resume())
	assert.Equal(t, hal.StateConfigured, c.State())
	assert.True(t, woken)

	require.NoError(t, s.Suspend())
	require.NoError(t, s.ResetDetect())
	assert.Equal(t, hal.StateDefault, c.State())
}

func TestStartOfFrame(t *testing.T) {
	c, s, _ := newSerialDevice(t)
	enumerate(t, s)

	var frame uint16
	c.SetOnStartOfFrame(func(f uint16) { frame = f })
	require.NoError(t, s.StartOfFrame(0x123))
	assert.Equal(t, uint16(0x123), frame)
}
