package config

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/types"
)

// Sensor option keys recognised in the YAML file
const (
	OptionType    = "type"
	OptionTTL     = "ttl"
	OptionDefault = "default"
)

// SensorConfig holds the declared options of one sensor.
type SensorConfig struct {
	Type types.Kind `json:"type"`
	// TTL in ticks (seconds). Zero means the value never expires.
	TTL int `json:"ttl"`
	// Default is the raw configured default, nil when none was given.
	Default any `json:"default,omitempty"`
}

// NodeSensors maps sensor id to its configuration.
type NodeSensors map[string]SensorConfig

// SensorsConfig is the full sensor configuration: gateway -> node -> sensor.
type SensorsConfig struct {
	Gateways map[string]map[string]NodeSensors

	nodeIndex map[string]string
}

// rawSensors mirrors the YAML document before options are interpreted.
type rawSensors map[string]map[string]map[string]map[string]any

// ParseSensors decodes a YAML sensor document. It does not validate; call Validate.
func ParseSensors(data []byte) (*SensorsConfig, error) {
	var raw rawSensors
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"SensorsConfig", "ParseSensors", "decode yaml")
	}

	cfg := &SensorsConfig{Gateways: make(map[string]map[string]NodeSensors, len(raw))}
	var problems []string

	for gw, nodes := range raw {
		cfg.Gateways[gw] = make(map[string]NodeSensors, len(nodes))
		for node, sensors := range nodes {
			ns := make(NodeSensors, len(sensors))
			for sensor, opts := range sensors {
				sc, err := sensorFromOptions(opts)
				if err != nil {
					problems = append(problems, fmt.Sprintf("%s/%s/%s: %v", gw, node, sensor, err))
					continue
				}
				ns[sensor] = sc
			}
			cfg.Gateways[gw][node] = ns
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, invalidConfig("ParseSensors", problems)
	}

	cfg.buildIndex()
	return cfg, nil
}

func sensorFromOptions(opts map[string]any) (SensorConfig, error) {
	kind, err := types.ParseKind(GetString(opts, OptionType, ""))
	if err != nil {
		return SensorConfig{}, fmt.Errorf("unknown type %q", GetString(opts, OptionType, fmt.Sprint(opts[OptionType])))
	}

	sc := SensorConfig{Type: kind, Default: opts[OptionDefault]}
	if HasKey(opts, OptionTTL) {
		ttl, ok := intOption(opts[OptionTTL])
		if !ok {
			return SensorConfig{}, fmt.Errorf("ttl %v is not an integer", opts[OptionTTL])
		}
		sc.TTL = ttl
	}
	return sc, nil
}

// NodeGateway returns the gateway a node is declared under.
func (c *SensorsConfig) NodeGateway(node string) (string, bool) {
	if c.nodeIndex == nil {
		c.buildIndex()
	}
	gw, ok := c.nodeIndex[node]
	return gw, ok
}

// GatewayIDs returns the configured gateway ids, sorted.
func (c *SensorsConfig) GatewayIDs() []string {
	ids := make([]string, 0, len(c.Gateways))
	for gw := range c.Gateways {
		ids = append(ids, gw)
	}
	sort.Strings(ids)
	return ids
}

// SensorCount returns the number of configured sensors across all nodes.
func (c *SensorsConfig) SensorCount() int {
	n := 0
	for _, nodes := range c.Gateways {
		for _, sensors := range nodes {
			n += len(sensors)
		}
	}
	return n
}

func (c *SensorsConfig) buildIndex() {
	c.nodeIndex = make(map[string]string)
	for _, gw := range c.GatewayIDs() {
		for node := range c.Gateways[gw] {
			if _, dup := c.nodeIndex[node]; !dup {
				c.nodeIndex[node] = gw
			}
		}
	}
}
