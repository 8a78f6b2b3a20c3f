// Package mqtt bridges an MQTT broker into the sensor registry.
//
// The bridge subscribes to two filters under a configurable prefix:
//
//	<topic>/<node>        payload {"<sensor>": value, ...} sets values
//	<topic>/inc/<node>    payload {"<sensor>": delta, ...} increments them
//
// Payloads are JSON objects parsed the same way as the websocket reports.
// Messages for unknown nodes or sensors are dropped silently and counted as
// skipped; malformed topics and payloads are logged. Every applied message
// gets an "mqtt-" event id and is forwarded to the change notifier.
//
// Subscriptions are made from the connect handler, so they are restored
// after the client reconnects.
package mqtt
