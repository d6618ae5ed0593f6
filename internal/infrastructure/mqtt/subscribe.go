package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe registers handler for filter. The subscription is remembered
// and re-issued after every reconnect.
//
// Filters may use "+" for one level and "#" for the remaining levels, e.g.
// "glsensor/+/dht11" or "testtopic/#". Subscribing again to the same filter
// replaces the handler.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return ErrNilHandler
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	sub := subscription{filter: filter, qos: qos, handler: handler}
	if err := waitAck(c.client.Subscribe(filter, qos, c.dispatch(sub)), ErrSubscribeFailed); err != nil {
		return fmt.Errorf("%s: %w", filter, err)
	}

	c.mu.Lock()
	c.subscriptions[filter] = sub
	c.mu.Unlock()
	return nil
}

// Unsubscribe removes the subscription for filter. Messages already routed
// may still reach the handler.
func (c *Client) Unsubscribe(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}

	c.mu.Lock()
	delete(c.subscriptions, filter)
	c.mu.Unlock()

	if !c.IsConnected() {
		// Nothing to tell the broker; the clean session is gone with the
		// connection and the filter will not be restored.
		return nil
	}
	if err := waitAck(c.client.Unsubscribe(filter), ErrUnsubscribeFailed); err != nil {
		return fmt.Errorf("%s: %w", filter, err)
	}
	return nil
}

// SubscriptionCount returns the number of remembered subscriptions.
func (c *Client) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether filter is subscribed. It compares filter
// strings, not topic matches.
func (c *Client) HasSubscription(filter string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[filter]
	return ok
}

// restoreSubscriptions re-issues every remembered filter after a reconnect.
func (c *Client) restoreSubscriptions() {
	c.mu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, s := range c.subscriptions {
		subs = append(subs, s)
	}
	c.mu.RUnlock()

	for _, s := range subs {
		if err := waitAck(c.client.Subscribe(s.filter, s.qos, c.dispatch(s)), ErrSubscribeFailed); err != nil {
			c.getLogger().Error("restoring subscription failed", "filter", s.filter, "error", err)
		}
	}
}

// dispatch adapts a MessageHandler to paho, recovering panics so one bad
// message cannot take the router down.
func (c *Client) dispatch(sub subscription) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, m pahomqtt.Message) {
		msg := Message{
			Topic:     m.Topic(),
			Payload:   m.Payload(),
			QoS:       m.Qos(),
			Retained:  m.Retained(),
			Duplicate: m.Duplicate(),
			MessageID: m.MessageID(),
		}
		c.delivered.Add(1)

		defer func() {
			if r := recover(); r != nil {
				c.panics.Add(1)
				c.getLogger().Error("MQTT handler panic recovered",
					"filter", sub.filter,
					"topic", msg.Topic,
					"panic", r,
				)
			}
		}()

		if err := sub.handler(msg); err != nil {
			c.handlerErrors.Add(1)
			c.getLogger().Warn("MQTT handler returned error",
				"filter", sub.filter,
				"topic", msg.Topic,
				"error", err,
			)
		}
	}
}

// waitAck waits for the broker's acknowledgement of token.
func waitAck(token pahomqtt.Token, failure error) error {
	if !token.WaitTimeout(ackTimeout) {
		return fmt.Errorf("%w: %w after %v", failure, ErrTimeout, ackTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", failure, err)
	}
	return nil
}
