package model

import (
	"fmt"
	"strings"
)

// EventKind is the closed set of notification event kinds.
type EventKind uint8

const (
	EventContractExpiry EventKind = iota + 1
	EventDocumentExpiry
	EventPaymentDue
	EventCustom
)

// Stored type tags for the built-in kinds.
const (
	TagContractExpiry = "contract_expiry"
	TagDocumentExpiry = "document_expiry"
	TagPaymentDue     = "payment_due"
	TagInfo           = "info"

	// TagContractCreated marks the custom notice sent when a contract is created.
	TagContractCreated = "contract_created"
)

// Event identifies what a notification is about. Custom events carry their own
// tag and the explicit recipient list supplied by the caller.
type Event struct {
	Kind       EventKind
	tag        string
	Recipients []int64
}

var (
	ContractExpiry = Event{Kind: EventContractExpiry}
	DocumentExpiry = Event{Kind: EventDocumentExpiry}
	PaymentDue     = Event{Kind: EventPaymentDue}
)

// Custom builds a custom event. An empty tag falls back to "info".
func Custom(tag string, recipients ...int64) Event {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		tag = TagInfo
	}
	return Event{Kind: EventCustom, tag: tag, Recipients: recipients}
}

// ParseEvent maps a stored type tag back to an event. Unknown tags are custom.
func ParseEvent(tag string) Event {
	switch tag {
	case TagContractExpiry:
		return ContractExpiry
	case TagDocumentExpiry:
		return DocumentExpiry
	case TagPaymentDue:
		return PaymentDue
	default:
		return Custom(tag)
	}
}

// Tag returns the string persisted in Notification.Type.
func (e Event) Tag() string {
	switch e.Kind {
	case EventContractExpiry:
		return TagContractExpiry
	case EventDocumentExpiry:
		return TagDocumentExpiry
	case EventPaymentDue:
		return TagPaymentDue
	case EventCustom:
		if e.tag == "" {
			return TagInfo
		}
		return e.tag
	default:
		panic(fmt.Sprintf("model: unknown event kind %d", e.Kind))
	}
}

func (e Event) String() string {
	return e.Tag()
}

// ContractScoped reports whether the event relates to a contract rather than a document.
func (e Event) ContractScoped() bool {
	return e.Kind == EventContractExpiry || e.Kind == EventPaymentDue
}
