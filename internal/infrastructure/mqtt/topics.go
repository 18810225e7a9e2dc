package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "claimd"

// segmentReplacer strips characters MQTT reserves from a topic segment.
var segmentReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// Topics provides builders for claimd MQTT topics.
//
//	topics := mqtt.NewTopics("claimd")
//	topics.DeviceEvent("SN-1", "claimed")
//	// Returns: "claimd/devices/SN-1/claimed"
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix (DefaultTopicPrefix if empty).
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// SystemStatus returns the retained service status topic.
//
// Example: claimd/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix)
}

// DeviceEvent returns the topic for a device lifecycle event.
//
// Example: claimd/devices/SN-1/registered
func (t Topics) DeviceEvent(uniqueID, op string) string {
	return fmt.Sprintf("%s/devices/%s/%s", t.prefix, Segment(uniqueID), Segment(op))
}

// AllDeviceEvents returns a wildcard matching every device event.
//
// Example: claimd/devices/+/+
func (t Topics) AllDeviceEvents() string {
	return fmt.Sprintf("%s/devices/+/+", t.prefix)
}

// Segment makes s safe to use as a single topic level.
func Segment(s string) string {
	if s == "" {
		return "_"
	}
	return segmentReplacer.Replace(s)
}
