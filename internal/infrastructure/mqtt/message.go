package mqtt

// Message is one application message delivered to a subscription.
type Message struct {
	// Topic is the concrete topic the message was published on, never a
	// wildcard filter.
	Topic   string
	Payload []byte

	// QoS is the delivery QoS granted by the broker.
	QoS byte

	// Retained is set for the broker's stored copy, delivered on subscribe.
	Retained bool

	// Duplicate is set when the broker redelivers an unacknowledged QoS 1 or
	// QoS 2 message.
	Duplicate bool

	MessageID uint16
}

// MessageHandler is called for every message on a subscription.
//
// Handlers run on the paho router goroutine, one message at a time per
// client. A returned error is logged and counted; the message is still
// acknowledged.
type MessageHandler func(msg Message) error

// Stats counts client activity since Connect.
type Stats struct {
	Delivered     uint64
	HandlerErrors uint64
	Panics        uint64
	Reconnects    uint64
}
