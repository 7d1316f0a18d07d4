package registry

// Peripheral is one wireless accessory known to the subsystem. Owned
// exclusively by the Registry; accessors hand out copies.
type Peripheral struct {
	// Address is the canonical colon-separated identifier.
	Address string `json:"address"`

	// Name is the advertised device name, if seen.
	Name string `json:"name,omitempty"`

	// Path is the bus object path encoding the address.
	Path string `json:"path"`

	Connected bool `json:"connected"`
	Paired    bool `json:"paired"`
	Trusted   bool `json:"trusted"`

	// RSSI is the last observed signal strength. Nil when the device is not
	// currently observable.
	RSSI *int `json:"rssi,omitempty"`
}

// Clone returns an independent copy of the peripheral.
func (p *Peripheral) Clone() *Peripheral {
	if p == nil {
		return nil
	}
	cp := *p
	if p.RSSI != nil {
		v := *p.RSSI
		cp.RSSI = &v
	}
	return &cp
}
