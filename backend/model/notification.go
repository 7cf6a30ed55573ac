package model

import (
	"errors"
	"time"
)

// ErrInvalidEntity marks an entity whose stored data is logically inconsistent.
var ErrInvalidEntity = errors.New("invalid entity state")

// Notification is a persisted, per-recipient notice. Only Read changes after creation.
type Notification struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	Title             string    `json:"title"`
	Message           string    `json:"message"`
	Type              string    `json:"type"`
	RelatedContractID *int64    `json:"related_contract_id,omitempty"`
	RelatedDocumentID *int64    `json:"related_document_id,omitempty"`
	Read              bool      `json:"is_read"`
	CreatedAt         time.Time `json:"created_at"`
}

// Event returns the typed event for the stored type tag.
func (n *Notification) Event() Event {
	return ParseEvent(n.Type)
}

// Related points a notification at the entity it concerns.
type Related struct {
	ContractID *int64
	DocumentID *int64
}

// RelatedContract references a contract only.
func RelatedContract(id int64) Related {
	return Related{ContractID: &id}
}

// RelatedDocument references a document only.
func RelatedDocument(id int64) Related {
	return Related{DocumentID: &id}
}
