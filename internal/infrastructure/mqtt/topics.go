package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every Thermolink topic.
const TopicPrefix = "thermolink"

// Topics provides builders for Thermolink MQTT topics.
//
//	thermolink/status/{node_id}      retained node status (online, counters, offline LWT)
//	thermolink/system/{service}      retained service status (collector)
type Topics struct{}

// NodeStatus returns the retained status topic for one sensor node.
//
// Example: thermolink/status/greenhouse
func (Topics) NodeStatus(nodeID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefix, nodeID)
}

// AllNodeStatus returns the wildcard matching every node's status topic.
func (Topics) AllNodeStatus() string {
	return TopicPrefix + "/status/+"
}

// ServiceStatus returns the retained status topic for a service.
//
// Example: thermolink/system/thermocollector
func (Topics) ServiceStatus(service string) string {
	return fmt.Sprintf("%s/system/%s", TopicPrefix, service)
}

// NodeIDFromStatusTopic extracts the node id from a NodeStatus topic.
func (Topics) NodeIDFromStatusTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefix+"/status/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
