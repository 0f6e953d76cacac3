package topic

import (
	"fmt"
)

// Constants defining the standard topic segments.
// These are the contract between nodes and the collectors that read them.
// Changing these values will break compatibility with deployed collectors.
const (
	// SuffixData represents the upstream telemetry topic (Node -> Collector).
	// Structure: {root}/data/N{nodeID}
	SuffixData = "data"

	// SuffixStatus represents the retained presence topic (Node -> Collector).
	// Structure: {root}/status/N{nodeID}
	SuffixStatus = "status"

	// NodePrefix is prepended to the node number in topic identifiers and payloads.
	NodePrefix = "N"
)

// Presence payloads published on the status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// TopicBuilder encapsulates the logic for constructing MQTT topic strings.
type TopicBuilder struct {
	// root is the base namespace for node topics (e.g., "OC7").
	root string
}

// NewTopicBuilder creates a new instance of TopicBuilder with the specified root namespace.
func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: root}
}

// NodeTag returns the identifier used for a node in topics and payloads, e.g. "N7".
func NodeTag(nodeID string) string {
	return NodePrefix + nodeID
}

// Telemetry returns the topic a node publishes its samples to.
// Direction: Node -> Collector
func (b *TopicBuilder) Telemetry(nodeID string) string {
	return b.build(SuffixData, NodeTag(nodeID))
}

// TelemetryWildcard returns the filter matching the telemetry of every node.
// Result: {root}/data/+
func (b *TopicBuilder) TelemetryWildcard() string {
	return b.build(SuffixData, Wildcard)
}

// Status returns the retained presence topic of a node.
// Direction: Node -> Collector
func (b *TopicBuilder) Status(nodeID string) string {
	return b.build(SuffixStatus, NodeTag(nodeID))
}

// StatusWildcard returns the filter matching the presence of every node.
// Result: {root}/status/+
func (b *TopicBuilder) StatusWildcard() string {
	return b.build(SuffixStatus, Wildcard)
}

// build is a private helper to construct the final topic string.
// Pattern: {root}/{suffix}/{identifier}
func (b *TopicBuilder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
