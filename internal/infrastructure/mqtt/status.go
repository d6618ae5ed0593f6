package mqtt

import (
	"encoding/json"
	"time"
)

// Collector presence states published on Topics.CollectorStatus.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Reasons attached to offline status messages.
const (
	reasonUnexpected = "unexpected_disconnect"
	reasonShutdown   = "graceful_shutdown"
)

// Status is the retained presence message of a collector.
type Status struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// statusPayload encodes a presence message. The will message is built once
// at connect time, so its timestamp is the connect time.
func statusPayload(clientID, status, reason string, now time.Time) []byte {
	data, err := json.Marshal(Status{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		// Status holds only strings.
		panic(err)
	}
	return data
}

// publishStatus sends the retained presence message and waits up to
// statusTimeout for the broker to accept it.
func (c *Client) publishStatus(status, reason string) error {
	topic := Topics{}.CollectorStatus(c.cfg.Broker.ClientID)
	payload := statusPayload(c.cfg.Broker.ClientID, status, reason, time.Now())

	token := c.client.Publish(topic, c.qos(), true, payload)
	if !token.WaitTimeout(statusTimeout) {
		return ErrTimeout
	}
	return token.Error()
}
