package mqtt

import "strings"

// TopicPrefix is the root of the inkblue topic hierarchy.
const TopicPrefix = "inkblue"

// Well-known topics published by the daemon.
const (
	// TopicSystemStatus carries the retained daemon online/offline payload
	// and is also the Last Will topic.
	TopicSystemStatus = TopicPrefix + "/system/status"

	// TopicSubsystemState carries the retained bluetooth enabled state.
	TopicSubsystemState = TopicPrefix + "/bluetooth/state"

	// TopicDeviceEvent carries per-event connect/disconnect payloads.
	TopicDeviceEvent = TopicPrefix + "/bluetooth/event"
)

// DeviceTopic returns the per-device state topic for an address, with
// colons flattened so the address is a single topic level.
//
//	DeviceTopic("E4:17:D8:EC:04:1E") -> "inkblue/bluetooth/device/E4-17-D8-EC-04-1E"
func DeviceTopic(address string) string {
	return TopicPrefix + "/bluetooth/device/" + strings.ReplaceAll(address, ":", "-")
}

// ValidateTopic checks that a topic is publishable: non-empty, no
// wildcards, no empty levels.
func ValidateTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if strings.ContainsAny(topic, "+#") {
		return ErrInvalidTopic
	}
	for _, level := range strings.Split(topic, "/") {
		if level == "" {
			return ErrInvalidTopic
		}
	}
	return nil
}
