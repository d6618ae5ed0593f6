package collector

import "errors"

var (
	// ErrTopicRequired is returned when no subscription topic is configured.
	ErrTopicRequired = errors.New("collector: topic is required")

	// ErrNoStore is returned when a Collector is built without a Store.
	ErrNoStore = errors.New("collector: store is required")

	// ErrNoSubscriber is returned when a Collector is built without an MQTT subscriber.
	ErrNoSubscriber = errors.New("collector: subscriber is required")

	// ErrUnknownEncoding indicates a payload matched no known codec.
	ErrUnknownEncoding = errors.New("collector: unknown payload encoding")

	// ErrAlreadyStarted is returned by Start on a running Collector.
	ErrAlreadyStarted = errors.New("collector: already started")
)
