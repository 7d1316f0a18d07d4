package coordinator

// autoConnect is the proximity policy: a fresh, in-range RSSI reading for a
// paired but disconnected peripheral triggers a connection attempt.
// Registered at policy priority alongside auto-detect.
func (c *Coordinator) autoConnect(address string, properties map[string]any) {
	rssi, ok := properties["RSSI"].(int)
	if !ok {
		return
	}

	// Zero and floor-or-below readings mean "not usefully in range".
	if rssi == 0 || rssi <= c.cfg.RSSIFloor {
		return
	}

	// A repeat of the last reading for this address is the monitor echoing
	// state, not the device moving; one attempt per distinct reading.
	if !c.proximity.record(address, rssi) {
		return
	}

	device, ok := c.devices.DeviceByAddress(address)
	if !ok {
		return
	}
	if device.Connected || !device.Paired {
		return
	}

	// The policy runs on the scheduler loop, so the connect must not block:
	// launch it detached and let cache-sync and auto-detect pick up the
	// resulting property changes.
	c.logger.Info("proximity connect attempt", "address", address, "rssi", rssi)
	if !c.devices.ConnectDeviceBackground(device) {
		c.logger.Warn("proximity connect launch failed", "address", address)
	}
}
