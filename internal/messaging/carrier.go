package messaging

import "github.com/segmentio/kafka-go"

// EventTypeHeader names the event kind so consumers can route without
// decoding the payload.
const EventTypeHeader = "event-type"

// MessageCarrier adapts kafka headers to the otel propagation carrier.
type MessageCarrier struct {
	msg *kafka.Message
}

func NewMessageCarrier(msg *kafka.Message) *MessageCarrier {
	return &MessageCarrier{msg: msg}
}

func (c *MessageCarrier) Get(key string) string {
	return header(c.msg, key)
}

func (c *MessageCarrier) Set(key, value string) {
	setHeader(c.msg, key, value)
}

func (c *MessageCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func header(msg *kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func setHeader(msg *kafka.Message, key, value string) {
	for i, h := range msg.Headers {
		if h.Key == key {
			msg.Headers[i].Value = []byte(value)
			return
		}
	}
	msg.Headers = append(msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}
