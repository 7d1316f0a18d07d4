package bus

import (
	"context"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// commandTimeout bounds synchronous bus commands. Queries are expected to
// return well under a second; connect attempts can take several.
const commandTimeout = 10 * time.Second

// cliCommander executes bus commands by shelling out to dbus-send. It is the
// backend for device families whose firmware provides no linkable bus
// library, only the stock CLI tools.
type cliCommander struct {
	cfg    BackendConfig
	logger Logger
}

func newCLICommander(cfg BackendConfig, logger Logger) *cliCommander {
	return &cliCommander{cfg: cfg, logger: logger}
}

func (c *cliCommander) Kind() string { return "cli" }

// run executes dbus-send with the given arguments and returns its output.
// The boolean reports success; failures are logged, never raised.
func (c *cliCommander) run(ctx context.Context, args ...string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	full := append([]string{"--system", "--print-reply", "--dest=" + bluezService}, args...)
	out, err := exec.CommandContext(ctx, c.cfg.DBusSendBinary, full...).Output()
	if err != nil {
		c.logger.Debug("bus command failed",
			"args", strings.Join(args, " "),
			"error", err,
		)
		return "", false
	}
	return string(out), true
}

// setPowered flips the adapter Powered property.
func (c *cliCommander) setPowered(ctx context.Context, on bool) bool {
	lit := "false"
	if on {
		lit = "true"
	}
	_, ok := c.run(ctx,
		c.cfg.AdapterPath,
		propsInterface+".Set",
		"string:"+adapterInterface,
		"string:Powered",
		"variant:boolean:"+lit,
	)
	return ok
}

func (c *cliCommander) PowerOn(ctx context.Context) bool  { return c.setPowered(ctx, true) }
func (c *cliCommander) PowerOff(ctx context.Context) bool { return c.setPowered(ctx, false) }

func (c *cliCommander) Powered(ctx context.Context) bool {
	out, ok := c.run(ctx,
		c.cfg.AdapterPath,
		propsInterface+".Get",
		"string:"+adapterInterface,
		"string:Powered",
	)
	return ok && strings.Contains(out, "boolean true")
}

func (c *cliCommander) StartDiscovery(ctx context.Context) bool {
	_, ok := c.run(ctx, c.cfg.AdapterPath, adapterInterface+".StartDiscovery")
	return ok
}

func (c *cliCommander) StopDiscovery(ctx context.Context) bool {
	_, ok := c.run(ctx, c.cfg.AdapterPath, adapterInterface+".StopDiscovery")
	return ok
}

func (c *cliCommander) Connect(ctx context.Context, devicePath string) bool {
	_, ok := c.run(ctx, devicePath, deviceInterface+".Connect")
	return ok
}

// ConnectBackground forks a detached dbus-send to issue the connect without
// tying up the caller. Only launch success is reported; the connect outcome
// surfaces through property-change signals.
func (c *cliCommander) ConnectBackground(devicePath string) bool {
	cmd := exec.Command(c.cfg.DBusSendBinary, //nolint:gosec // binary path comes from validated config
		"--system", "--print-reply", "--dest="+bluezService,
		devicePath, deviceInterface+".Connect",
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		c.logger.Warn("background connect launch failed", "path", devicePath, "error", err)
		return false
	}
	// Detach fully; the reactor will observe the result.
	if err := cmd.Process.Release(); err != nil {
		c.logger.Debug("background connect release failed", "error", err)
	}
	return true
}

func (c *cliCommander) Disconnect(ctx context.Context, devicePath string) bool {
	_, ok := c.run(ctx, devicePath, deviceInterface+".Disconnect")
	return ok
}

func (c *cliCommander) Remove(ctx context.Context, devicePath string) bool {
	_, ok := c.run(ctx, c.cfg.AdapterPath, adapterInterface+".RemoveDevice", "objpath:"+devicePath)
	return ok
}

func (c *cliCommander) SetTrusted(ctx context.Context, devicePath string, trusted bool) bool {
	lit := "false"
	if trusted {
		lit = "true"
	}
	_, ok := c.run(ctx,
		devicePath,
		propsInterface+".Set",
		"string:"+deviceInterface,
		"string:Trusted",
		"variant:boolean:"+lit,
	)
	return ok
}

func (c *cliCommander) EnumerateDevices(ctx context.Context) ([]ObjectRecord, bool) {
	out, ok := c.run(ctx, "/", objmgrInterface+".GetManagedObjects")
	if !ok {
		return nil, false
	}
	return ParseObjectDump(out), true
}
