// Package sched provides the cooperative run loop that the Bluetooth
// subsystem executes on.
//
// All reactor ticks, policy callbacks and coordinator state transitions run
// on a single goroutine owned by a Loop. Nothing scheduled on the loop may
// block it; long-running work belongs on its own goroutine with results
// posted back via Post.
package sched
