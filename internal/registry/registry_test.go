package registry

import (
	"context"
	"testing"

	"github.com/inkblue/inkblue-core/internal/bus"
)

// fakeCommander scripts bus command outcomes and records the paths each
// command was issued against.
type fakeCommander struct {
	connectOK    bool
	disconnectOK bool
	removeOK     bool
	trustOK      bool

	enumRecords []bus.ObjectRecord
	enumOK      bool

	connectPaths    []string
	disconnectPaths []string
	removePaths     []string
	trustCalls      []bool
}

func (f *fakeCommander) Connect(_ context.Context, path string) bool {
	f.connectPaths = append(f.connectPaths, path)
	return f.connectOK
}

func (f *fakeCommander) ConnectBackground(path string) bool {
	f.connectPaths = append(f.connectPaths, path)
	return f.connectOK
}

func (f *fakeCommander) Disconnect(_ context.Context, path string) bool {
	f.disconnectPaths = append(f.disconnectPaths, path)
	return f.disconnectOK
}

func (f *fakeCommander) Remove(_ context.Context, path string) bool {
	f.removePaths = append(f.removePaths, path)
	return f.removeOK
}

func (f *fakeCommander) SetTrusted(_ context.Context, path string, trusted bool) bool {
	f.trustCalls = append(f.trustCalls, trusted)
	return f.trustOK
}

func (f *fakeCommander) EnumerateDevices(_ context.Context) ([]bus.ObjectRecord, bool) {
	return f.enumRecords, f.enumOK
}

func TestLoadDevicesReplacesCache(t *testing.T) {
	cmd := &fakeCommander{
		enumOK: true,
		enumRecords: []bus.ObjectRecord{
			{
				Path:       "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF",
				Address:    "AA:BB:CC:DD:EE:FF",
				Properties: map[string]any{"Connected": true, "Name": "Pageturner"},
			},
			{
				Path:       "/org/bluez/hci0/dev_11_22_33_44_55_66",
				Address:    "11:22:33:44:55:66",
				Properties: map[string]any{"Paired": true},
			},
		},
	}
	reg := NewRegistry(cmd, "")

	// Seed a stale entry that the reload should drop.
	reg.UpdateProperties("DE:AD:BE:EF:00:01", map[string]any{"Name": "Stale"})

	if !reg.LoadDevices(context.Background()) {
		t.Fatal("LoadDevices returned false")
	}
	if got := reg.Count(); got != 2 {
		t.Fatalf("Count = %d, want 2", got)
	}
	if _, ok := reg.DeviceByAddress("DE:AD:BE:EF:00:01"); ok {
		t.Error("stale entry survived reload")
	}

	p, ok := reg.DeviceByAddress("AA:BB:CC:DD:EE:FF")
	if !ok {
		t.Fatal("enumerated device missing from cache")
	}
	if !p.Connected || p.Name != "Pageturner" {
		t.Errorf("device = %+v, want Connected=true Name=Pageturner", p)
	}
}

func TestLoadDevicesKeepsCacheOnFailure(t *testing.T) {
	cmd := &fakeCommander{enumOK: false}
	reg := NewRegistry(cmd, "")
	reg.UpdateProperties("AA:BB:CC:DD:EE:FF", map[string]any{"Name": "Kept"})

	if reg.LoadDevices(context.Background()) {
		t.Fatal("LoadDevices returned true on failed enumeration")
	}
	if got := reg.Count(); got != 1 {
		t.Fatalf("Count = %d, want 1 (cache kept)", got)
	}
}

func TestUpdatePropertiesSynthesizesUnseenAddress(t *testing.T) {
	reg := NewRegistry(&fakeCommander{}, "/org/bluez/hci0")

	p := reg.UpdateProperties("E4:17:D8:EC:04:1E", map[string]any{
		"Connected": true,
		"RSSI":      -61,
		"Ignored":   "value",
	})

	if p.Address != "E4:17:D8:EC:04:1E" {
		t.Errorf("Address = %q", p.Address)
	}
	if want := "/org/bluez/hci0/dev_E4_17_D8_EC_04_1E"; p.Path != want {
		t.Errorf("Path = %q, want %q", p.Path, want)
	}
	if !p.Connected {
		t.Error("Connected not applied")
	}
	if p.RSSI == nil || *p.RSSI != -61 {
		t.Errorf("RSSI = %v, want -61", p.RSSI)
	}
	if p.Paired || p.Trusted {
		t.Error("unset flags should default false")
	}
}

func TestUpdatePropertiesIgnoresWrongTypes(t *testing.T) {
	reg := NewRegistry(&fakeCommander{}, "")

	p := reg.UpdateProperties("AA:BB:CC:DD:EE:FF", map[string]any{
		"Connected": "true", // wrong type, must be ignored
		"RSSI":      true,
	})

	if p.Connected {
		t.Error("string Connected applied as bool")
	}
	if p.RSSI != nil {
		t.Error("bool RSSI applied as int")
	}
}

func TestConnectDeviceSuccessUpdatesCacheAndNotifies(t *testing.T) {
	cmd := &fakeCommander{connectOK: true}
	reg := NewRegistry(cmd, "")

	var observed []string
	reg.RegisterDeviceConnectCallback(func(p Peripheral) {
		observed = append(observed, p.Address)
	})

	var hooked bool
	device := Peripheral{Address: "AA:BB:CC:DD:EE:FF"}
	if !reg.ConnectDevice(context.Background(), device, func(p Peripheral) {
		hooked = p.Connected
	}) {
		t.Fatal("ConnectDevice returned false")
	}

	// Uncached device gets a synthesized row on success.
	p, ok := reg.DeviceByAddress("AA:BB:CC:DD:EE:FF")
	if !ok || !p.Connected {
		t.Fatalf("cache row = %+v, %v; want connected entry", p, ok)
	}
	if !hooked {
		t.Error("onSuccess hook did not see connected snapshot")
	}
	if len(observed) != 1 || observed[0] != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("observers = %v, want one call", observed)
	}
	if want := "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"; cmd.connectPaths[0] != want {
		t.Errorf("connect path = %q, want %q", cmd.connectPaths[0], want)
	}
}

func TestConnectDeviceFailureLeavesCacheUntouched(t *testing.T) {
	cmd := &fakeCommander{connectOK: false}
	reg := NewRegistry(cmd, "")

	var notified bool
	reg.RegisterDeviceConnectCallback(func(Peripheral) { notified = true })

	if reg.ConnectDevice(context.Background(), Peripheral{Address: "AA:BB:CC:DD:EE:FF"}, nil) {
		t.Fatal("ConnectDevice returned true on failed command")
	}
	if reg.Count() != 0 {
		t.Error("failed connect created a cache row")
	}
	if notified {
		t.Error("observers ran on failure")
	}
}

func TestDisconnectClearsRSSI(t *testing.T) {
	cmd := &fakeCommander{disconnectOK: true}
	reg := NewRegistry(cmd, "")
	reg.UpdateProperties("AA:BB:CC:DD:EE:FF", map[string]any{"Connected": true, "RSSI": -55})

	device, _ := reg.DeviceByAddress("AA:BB:CC:DD:EE:FF")
	if !reg.DisconnectDevice(context.Background(), device, nil) {
		t.Fatal("DisconnectDevice returned false")
	}

	p, _ := reg.DeviceByAddress("AA:BB:CC:DD:EE:FF")
	if p.Connected {
		t.Error("still connected after disconnect")
	}
	if p.RSSI != nil {
		t.Error("RSSI not cleared on disconnect")
	}
}

func TestRemoveDeviceToleratesFailedDisconnect(t *testing.T) {
	cmd := &fakeCommander{disconnectOK: false, removeOK: true}
	reg := NewRegistry(cmd, "")
	reg.UpdateProperties("AA:BB:CC:DD:EE:FF", map[string]any{"Connected": true})

	device, _ := reg.DeviceByAddress("AA:BB:CC:DD:EE:FF")
	if !reg.RemoveDevice(context.Background(), device, nil) {
		t.Fatal("RemoveDevice returned false despite successful remove")
	}
	if len(cmd.disconnectPaths) != 1 {
		t.Error("connected device should get a disconnect attempt before remove")
	}
	if reg.Count() != 0 {
		t.Error("removed device still cached")
	}
}

func TestRemoveDeviceFailureKeepsCache(t *testing.T) {
	cmd := &fakeCommander{removeOK: false}
	reg := NewRegistry(cmd, "")
	reg.UpdateProperties("AA:BB:CC:DD:EE:FF", nil)

	device, _ := reg.DeviceByAddress("AA:BB:CC:DD:EE:FF")
	if reg.RemoveDevice(context.Background(), device, nil) {
		t.Fatal("RemoveDevice returned true on failed command")
	}
	if reg.Count() != 1 {
		t.Error("cache entry dropped despite failed remove")
	}
}

func TestTrustDevice(t *testing.T) {
	cmd := &fakeCommander{trustOK: true}
	reg := NewRegistry(cmd, "")

	device := Peripheral{Address: "AA:BB:CC:DD:EE:FF"}
	if !reg.TrustDevice(context.Background(), device, nil) {
		t.Fatal("TrustDevice returned false")
	}
	p, _ := reg.DeviceByAddress("AA:BB:CC:DD:EE:FF")
	if !p.Trusted {
		t.Error("Trusted not set in cache")
	}

	if !reg.UntrustDevice(context.Background(), p, nil) {
		t.Fatal("UntrustDevice returned false")
	}
	p, _ = reg.DeviceByAddress("AA:BB:CC:DD:EE:FF")
	if p.Trusted {
		t.Error("Trusted not cleared in cache")
	}
}

func TestObserverPanicIsolated(t *testing.T) {
	cmd := &fakeCommander{connectOK: true}
	reg := NewRegistry(cmd, "")

	var second bool
	reg.RegisterDeviceConnectCallback(func(Peripheral) { panic("boom") })
	reg.RegisterDeviceConnectCallback(func(Peripheral) { second = true })

	if !reg.ConnectDevice(context.Background(), Peripheral{Address: "AA:BB:CC:DD:EE:FF"}, nil) {
		t.Fatal("ConnectDevice returned false")
	}
	if !second {
		t.Error("second observer skipped after first panicked")
	}
}

type recordingSink struct {
	sightings []Peripheral
}

func (s *recordingSink) RecordSighting(p Peripheral) {
	s.sightings = append(s.sightings, p)
}

func TestJournalReceivesSightings(t *testing.T) {
	reg := NewRegistry(&fakeCommander{}, "")
	sink := &recordingSink{}
	reg.SetJournal(sink)

	reg.UpdateProperties("AA:BB:CC:DD:EE:FF", map[string]any{"RSSI": -70})
	reg.UpdateProperties("AA:BB:CC:DD:EE:FF", map[string]any{"RSSI": -68})

	if len(sink.sightings) != 2 {
		t.Fatalf("sightings = %d, want 2", len(sink.sightings))
	}
	if sink.sightings[1].RSSI == nil || *sink.sightings[1].RSSI != -68 {
		t.Errorf("second sighting RSSI = %v, want -68", sink.sightings[1].RSSI)
	}
}
