package mqtt

import (
	"errors"
	"fmt"
)

var (
	ErrPublishFailed = errors.New("mqtt: publish failed")
	ErrAckTimeout    = errors.New("mqtt: publish not acknowledged")
	ErrEmptyTopic    = errors.New("mqtt: empty topic")
	ErrBadQoS        = errors.New("mqtt: qos must be 0, 1 or 2")
)

// maxPayloadSize caps a single message at 1 MiB.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker acknowledgement
// (or the local write, at QoS 0).
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublish(topic, payload, qos); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrOffline
	}

	tok := c.paho.Publish(topic, qos, retained, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w after %v on %s", ErrAckTimeout, publishTimeout, topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w on %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

func validatePublish(topic string, payload []byte, qos byte) error {
	switch {
	case topic == "":
		return ErrEmptyTopic
	case qos > 2:
		return ErrBadQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: %d byte payload over the %d byte limit", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	return nil
}
