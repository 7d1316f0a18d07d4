package coordinator

import (
	"context"

	"github.com/inkblue/inkblue-core/internal/input"
	"github.com/inkblue/inkblue-core/internal/settings"
)

// autoDetect is the policy that re-attaches input handling when a known
// peripheral comes back, and restarts the policies when one goes away.
// Registered at policy priority, so it reads the registry after cache-sync
// has applied the same event.
func (c *Coordinator) autoDetect(address string, properties map[string]any) {
	if v, ok := boolProperty(properties, "Connected"); ok {
		if v {
			c.handleArrival(address)
		} else {
			c.handleDeparture(address)
		}
		return
	}
	if v, ok := boolProperty(properties, "Paired"); ok {
		if v {
			c.handleArrival(address)
		} else {
			// An unpair is a departure: release the input node and restart
			// the policies so the device can come back.
			c.handleDeparture(address)
		}
	}
}

// handleArrival opens input handling for a freshly connected peripheral and
// applies the stop-after-connect toggles.
func (c *Coordinator) handleArrival(address string) {
	device, ok := c.devices.DeviceByAddress(address)
	if !ok || !device.Connected {
		return
	}

	info := input.DeviceInfo{Address: device.Address, Name: device.Name}
	if !c.inputs.OpenDevice(info, c.cfg.PreferNameMatch, c.cfg.AllowInputFallback) {
		c.logger.Warn("input attach failed", "address", address)
		return
	}

	c.proximity.clear(address)
	c.logger.Info("peripheral attached", "address", address, "name", device.Name)

	if c.events != nil {
		c.events.DeviceConnected(device)
	}
	if c.telemetry != nil {
		c.telemetry.CountEvent("connect")
	}

	if c.toggles.Get(settings.KeyAutoDetectStopOnUse) {
		c.StopAutoDetect()
	}
	if c.toggles.Get(settings.KeyAutoConnectStopOnUse) {
		c.StopAutoConnect(context.Background())
	}
}

// handleDeparture releases input handling for a disconnected peripheral,
// remembers its last signal strength, and restarts whichever policies the
// toggles enable so the device can come back.
func (c *Coordinator) handleDeparture(address string) {
	device, cached := c.devices.DeviceByAddress(address)
	if !cached {
		device.Address = address
	}

	c.inputs.CloseDevice(address)

	if cached && device.RSSI != nil {
		c.proximity.set(address, *device.RSSI)
	}
	c.logger.Info("peripheral departed", "address", address)

	if c.events != nil {
		c.events.DeviceDisconnected(device)
	}
	if c.telemetry != nil {
		c.telemetry.CountEvent("disconnect")
	}

	if c.toggles.Get(settings.KeyAutoDetectPolling) {
		c.StartAutoDetect()
	}
	if c.toggles.Get(settings.KeyAutoConnectPolling) {
		c.StartAutoConnect(context.Background())
	}
}

func boolProperty(properties map[string]any, name string) (bool, bool) {
	v, ok := properties[name].(bool)
	return v, ok
}
