package collector

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/thermolink/internal/infrastructure/mqtt"
	"github.com/nerrad567/thermolink/internal/status"
)

// ChannelNodeStatus is the WebSocket channel that carries node status updates.
const ChannelNodeStatus = "node.status"

// NodeEntry is the last status document seen for one node.
type NodeEntry struct {
	NodeID   string         `json:"node_id"`
	Status   status.Message `json:"status"`
	LastSeen time.Time      `json:"last_seen"`
}

// Nodes tracks node status documents relayed over MQTT.
type Nodes struct {
	mu    sync.RWMutex
	nodes map[string]NodeEntry
	relay Broadcaster
	now   func() time.Time
}

// NewNodes creates an empty store. relay may be nil.
func NewNodes(relay Broadcaster) *Nodes {
	return &Nodes{
		nodes: make(map[string]NodeEntry),
		relay: relay,
		now:   time.Now,
	}
}

// HandleMessage is an mqtt.MessageHandler for thermolink/status/+.
func (n *Nodes) HandleMessage(topic string, payload []byte) error {
	nodeID, ok := mqtt.Topics{}.NodeIDFromStatusTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected status topic %q", topic)
	}

	// Empty retained payloads clear a node.
	if len(payload) == 0 {
		n.Remove(nodeID)
		return nil
	}

	var msg status.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding status for %s: %w", nodeID, err)
	}

	entry := n.Update(nodeID, msg)
	if n.relay != nil {
		n.relay.Broadcast(ChannelNodeStatus, entry)
	}
	return nil
}

// Update records msg as the latest status for nodeID.
func (n *Nodes) Update(nodeID string, msg status.Message) NodeEntry {
	entry := NodeEntry{NodeID: nodeID, Status: msg, LastSeen: n.now().UTC()}

	n.mu.Lock()
	n.nodes[nodeID] = entry
	n.mu.Unlock()

	return entry
}

// Remove forgets a node.
func (n *Nodes) Remove(nodeID string) {
	n.mu.Lock()
	delete(n.nodes, nodeID)
	n.mu.Unlock()
}

// Get returns the entry for nodeID.
func (n *Nodes) Get(nodeID string) (NodeEntry, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	e, ok := n.nodes[nodeID]
	return e, ok
}

// All returns every known node ordered by id.
func (n *Nodes) All() []NodeEntry {
	n.mu.RLock()
	out := make([]NodeEntry, 0, len(n.nodes))
	for _, e := range n.nodes {
		out = append(out, e)
	}
	n.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}
