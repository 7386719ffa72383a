package mqtt

import (
	"fmt"
)

// Subscribe registers interest in topic. Messages are delivered to the
// OnMessage handler given to Connect; subscriptions do not survive a
// reconnect and must be issued again after every Connect.
func (c *Client) Subscribe(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	client, err := c.current()
	if err != nil {
		return err
	}

	// nil callback routes messages to the default publish handler
	token := client.Subscribe(topic, qos, nil)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}
