// Package process provides subprocess lifecycle management for the pipe-fed
// helpers inkblue runs, primarily the bus monitor that streams signal text.
//
// A Manager owns exactly one child process. It starts the child in its own
// process group, hands the caller the child's stdout, and tears the whole
// group down with SIGTERM followed by SIGKILL on Stop. Stop is idempotent;
// there is no automatic restart — the reactor layer decides whether a fresh
// session should be opened.
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:   "dbus-monitor",
//	    Binary: "/usr/bin/dbus-monitor",
//	    Args:   []string{"--system", "type='signal'"},
//	})
//
//	stdout, err := mgr.Start(ctx)
//	if err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
