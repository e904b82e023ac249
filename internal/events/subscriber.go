package events

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Message is one raw event payload together with the subject it arrived on.
type Message struct {
	Topic string
	Data  []byte
}

// Decode unmarshals the payload into the event type registered for its
// topic. Unknown topics decode into a generic map.
func (m Message) Decode() (any, error) {
	var v any
	switch m.Topic {
	case TopicStructCreated:
		v = &StructCreated{}
	case TopicStructCopied:
		v = &StructCopied{}
	case TopicStructDeleted:
		v = &StructDeleted{}
	case TopicTemplateAdded:
		v = &TemplateAdded{}
	case TopicTemplateRejected:
		v = &TemplateRejected{}
	case TopicTemplateRemoved:
		v = &TemplateRemoved{}
	case TopicStructsOrphaned:
		v = &StructsOrphaned{}
	case TopicStructsReparented:
		v = &StructsReparented{}
	case TopicMigrationLossy:
		v = &MigrationLossy{}
	case TopicDeclLoaded:
		v = &DeclLoaded{}
	case TopicDeclFailed:
		v = &DeclFailed{}
	default:
		v = &map[string]any{}
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return nil, fmt.Errorf("decoding %s event: %w", m.Topic, err)
	}
	return v, nil
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers raw event payloads on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}
