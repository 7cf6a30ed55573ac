package model

import (
	"fmt"
	"strings"
	"time"
)

// Document is a supporting file stored alongside contracts.
// A nil ExpiryDate means the document never expires.
type Document struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	ObjectName  string     `json:"object_name"`
	FileType    string     `json:"file_type"`
	FileSize    int64      `json:"file_size"`
	ContractID  *int64     `json:"contract_id,omitempty"`
	UploadedBy  int64      `json:"uploaded_by"`
	Tags        []string   `json:"tags"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate checks the invariants a stored document must satisfy.
func (d *Document) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: document %d has no title", ErrInvalidEntity, d.ID)
	}
	if d.UploadedBy == 0 {
		return fmt.Errorf("%w: document %d has no uploader", ErrInvalidEntity, d.ID)
	}
	return nil
}

// HasTag reports whether the document carries tag, ignoring case.
func (d *Document) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// ParseTags splits a comma separated tag list, dropping blanks.
func ParseTags(raw string) []string {
	tags := make([]string, 0)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
