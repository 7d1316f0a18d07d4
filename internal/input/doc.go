// Package input attaches connected peripherals to their kernel input nodes.
//
// When a peripheral connects, the kernel exposes one or more event devices
// under /dev/input. The Handler locates the node belonging to a peripheral,
// matching the hardware address first and optionally falling back to the
// advertised name, and keeps it open until the peripheral disconnects.
package input
