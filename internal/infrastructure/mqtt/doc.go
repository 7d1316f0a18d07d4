// Package mqtt provides the broker connection for the inkblue daemon.
//
// The daemon publishes peripheral lifecycle events and retained subsystem
// state to a local broker so other device services (reader UI, power
// manager) can react without polling. The client wraps paho.mqtt.golang
// with connection management, automatic reconnection, subscription
// restoration and Last Will based offline detection.
//
// MQTT is optional: when the mqtt section of config.yaml is disabled the
// daemon runs without a broker and no events are published.
//
// Topic hierarchy:
//
//	inkblue/system/status       retained daemon online/offline
//	inkblue/bluetooth/state     retained subsystem enabled state
//	inkblue/bluetooth/event     per connect/disconnect event
package mqtt
