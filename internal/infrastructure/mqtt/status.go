package mqtt

import (
	"encoding/json"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// systemStatus is the retained document on <prefix>/system/status.
type systemStatus struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

const (
	reasonCrash    = "unexpected_disconnect"
	reasonShutdown = "graceful_shutdown"
)

// configureLWT registers the broker-side will: a retained offline status
// at QoS 1, published if claimd vanishes without a DISCONNECT.
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	opts.SetBinaryWill(topics.SystemStatus(), statusPayload(clientID, "offline", reasonCrash), 1, true)
}

func statusPayload(clientID, status, reason string) []byte {
	doc := systemStatus{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	b, _ := json.Marshal(doc) //nolint:errcheck // string-only struct
	return b
}

func onlinePayload(clientID string) []byte  { return statusPayload(clientID, "online", "") }
func offlinePayload(clientID string) []byte { return statusPayload(clientID, "offline", reasonShutdown) }
