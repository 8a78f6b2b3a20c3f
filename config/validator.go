package config

import (
	"fmt"
	"strings"

	"github.com/c360/switchboard/types"
)

// Validate checks the configuration for problems that would make the registry
// ambiguous or unable to hold its values. All problems are reported at once.
func (c *SensorsConfig) Validate() error {
	var problems []string
	owner := make(map[string]string)

	for _, gw := range c.GatewayIDs() {
		if strings.TrimSpace(gw) == "" {
			problems = append(problems, "empty gateway id")
		}
		nodes := c.Gateways[gw]
		for _, node := range sortedKeys(nodes) {
			if strings.TrimSpace(node) == "" {
				problems = append(problems, fmt.Sprintf("%s: empty node id", gw))
			}
			if first, dup := owner[node]; dup {
				problems = append(problems,
					fmt.Sprintf("node %s declared under gateways %s and %s", node, first, gw))
			} else {
				owner[node] = gw
			}

			sensors := nodes[node]
			for _, sensor := range sortedKeys(sensors) {
				problems = append(problems, validateSensor(gw, node, sensor, sensors[sensor])...)
			}
		}
	}

	if len(problems) > 0 {
		return invalidConfig("Validate", problems)
	}
	return nil
}

func validateSensor(gw, node, sensor string, sc SensorConfig) []string {
	var problems []string
	path := fmt.Sprintf("%s/%s/%s", gw, node, sensor)

	if strings.TrimSpace(sensor) == "" {
		problems = append(problems, fmt.Sprintf("%s/%s: empty sensor id", gw, node))
	}
	kind, err := types.ParseKind(string(sc.Type))
	if err != nil {
		problems = append(problems, fmt.Sprintf("%s: unknown type %q", path, sc.Type))
		return problems
	}
	if sc.TTL < 0 {
		problems = append(problems, fmt.Sprintf("%s: negative ttl %d", path, sc.TTL))
	}
	if sc.Default != nil {
		if _, err := types.ParseValue(kind, sc.Default); err != nil {
			problems = append(problems,
				fmt.Sprintf("%s: default %v does not parse as %s", path, sc.Default, kind))
		}
	}
	return problems
}
