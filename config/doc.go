// Package config loads the sensor configuration of a Switchboard instance.
//
// The sensor file is YAML shaped gateway -> node -> sensor -> options:
//
//	gw1:
//	  n1:
//	    temp: {type: float, ttl: 60}
//	    door: {type: bool, default: false}
//	  n2:
//	    label: {type: str}
//
// Sensor options:
//
//   - type: float (default), int, str or bool. Inbound values are parsed under it.
//   - ttl: seconds a reported value stays live. 0 keeps it forever.
//   - default: value restored on expiry, on PUT /metrics/default and on reset.
//     Must parse under type.
//
// With the template switch the file is rendered by text/template before decoding,
// which makes generated node lists possible:
//
//	gw{{ env "SITE" "1" }}:
//	{{- range seq 3 }}
//	  node{{ . }}:
//	    temp: {ttl: 30}
//	{{- end }}
//
// A node belongs to exactly one gateway; Validate rejects duplicates together
// with unknown types, negative ttls, unparsable defaults and empty ids.
//
// Process configuration (listen address, log level, feeds) lives in CLI flags,
// see cmd/switchboard.
package config
