// Package entity defines the chat domain value objects and their wire
// serialization rules.
package entity

import "github.com/critterchat/critterchat/internal/services/chat/domain/ident"

// AttachmentMetadata carries the typed metadata recorded for an attachment.
type AttachmentMetadata struct {
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	AltText   string `json:"alt_text,omitempty"`
	Sensitive bool   `json:"sensitive,omitempty"`
}

// Attachment is stored attachment metadata with its resolved storage URI.
// The binary content lives with the attachment-storage collaborator.
type Attachment struct {
	ID       ident.AttachmentID
	URI      string
	MimeType string
	Metadata AttachmentMetadata
}

// AttachmentPayload is the wire form of an attachment.
//
// It intentionally has no id field: exposing the numeric id next to the URI
// would let a reader correlate private attachments by guessing ids against
// the hash that produces URIs.
type AttachmentPayload struct {
	URI      string             `json:"uri"`
	MimeType string             `json:"mimetype"`
	Metadata AttachmentMetadata `json:"metadata"`
}

// Payload returns the wire form of the attachment.
func (a Attachment) Payload() AttachmentPayload {
	return AttachmentPayload{
		URI:      a.URI,
		MimeType: a.MimeType,
		Metadata: a.Metadata,
	}
}
