package bus

import (
	"context"
	"fmt"

	dbus "github.com/godbus/dbus/v5"
)

// nativeCommander speaks D-Bus directly via godbus. Preferred on hosts whose
// firmware permits a system-bus connection from user processes.
type nativeCommander struct {
	conn   *dbus.Conn
	cfg    BackendConfig
	logger Logger
}

func newNativeCommander(cfg BackendConfig, logger Logger) (*nativeCommander, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting system bus: %w", err)
	}
	return &nativeCommander{conn: conn, cfg: cfg, logger: logger}, nil
}

func (c *nativeCommander) Kind() string { return "native" }

// call invokes a method on a bus object, translating errors to the boolean
// command contract.
func (c *nativeCommander) call(ctx context.Context, path, method string, args ...any) bool {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	obj := c.conn.Object(bluezService, dbus.ObjectPath(path))
	if err := obj.CallWithContext(ctx, method, 0, args...).Err; err != nil {
		c.logger.Debug("bus command failed", "method", method, "path", path, "error", err)
		return false
	}
	return true
}

func (c *nativeCommander) setPowered(ctx context.Context, on bool) bool {
	return c.call(ctx, c.cfg.AdapterPath, propsInterface+".Set",
		adapterInterface, "Powered", dbus.MakeVariant(on))
}

func (c *nativeCommander) PowerOn(ctx context.Context) bool  { return c.setPowered(ctx, true) }
func (c *nativeCommander) PowerOff(ctx context.Context) bool { return c.setPowered(ctx, false) }

func (c *nativeCommander) Powered(ctx context.Context) bool {
	obj := c.conn.Object(bluezService, dbus.ObjectPath(c.cfg.AdapterPath))
	variant, err := obj.GetProperty(adapterInterface + ".Powered")
	if err != nil {
		c.logger.Debug("power query failed", "error", err)
		return false
	}
	on, ok := variant.Value().(bool)
	return ok && on
}

func (c *nativeCommander) StartDiscovery(ctx context.Context) bool {
	return c.call(ctx, c.cfg.AdapterPath, adapterInterface+".StartDiscovery")
}

func (c *nativeCommander) StopDiscovery(ctx context.Context) bool {
	return c.call(ctx, c.cfg.AdapterPath, adapterInterface+".StopDiscovery")
}

func (c *nativeCommander) Connect(ctx context.Context, devicePath string) bool {
	return c.call(ctx, devicePath, deviceInterface+".Connect")
}

// ConnectBackground issues the connect from a detached goroutine. Launch
// always succeeds once the bus connection exists; the outcome surfaces as
// property-change signals like the cli backend's forked variant.
func (c *nativeCommander) ConnectBackground(devicePath string) bool {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if !c.Connect(ctx, devicePath) {
			c.logger.Debug("background connect failed", "path", devicePath)
		}
	}()
	return true
}

func (c *nativeCommander) Disconnect(ctx context.Context, devicePath string) bool {
	return c.call(ctx, devicePath, deviceInterface+".Disconnect")
}

func (c *nativeCommander) Remove(ctx context.Context, devicePath string) bool {
	return c.call(ctx, c.cfg.AdapterPath, adapterInterface+".RemoveDevice",
		dbus.ObjectPath(devicePath))
}

func (c *nativeCommander) SetTrusted(ctx context.Context, devicePath string, trusted bool) bool {
	return c.call(ctx, devicePath, propsInterface+".Set",
		deviceInterface, "Trusted", dbus.MakeVariant(trusted))
}

func (c *nativeCommander) EnumerateDevices(ctx context.Context) ([]ObjectRecord, bool) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	obj := c.conn.Object(bluezService, "/")
	if err := obj.CallWithContext(ctx, objmgrInterface+".GetManagedObjects", 0).Store(&objects); err != nil {
		c.logger.Debug("enumerate failed", "error", err)
		return nil, false
	}

	var records []ObjectRecord
	for path, ifaces := range objects {
		devProps, ok := ifaces[deviceInterface]
		if !ok {
			continue
		}
		addr, ok := AddressFromPath(string(path))
		if !ok {
			continue
		}
		props := make(map[string]any, len(devProps))
		for name, variant := range devProps {
			switch v := variant.Value().(type) {
			case bool:
				props[name] = v
			case string:
				props[name] = v
			case int16:
				props[name] = int(v)
			case int32:
				props[name] = int(v)
			}
		}
		records = append(records, ObjectRecord{
			Path:       string(path),
			Address:    addr,
			Properties: props,
		})
	}
	return records, true
}
