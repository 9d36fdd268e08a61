package models

import (
	"time"
)

// Address is one mailbox participant
type Address struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// EmailSummary is the envelope-level view of a message in a list page
type EmailSummary struct {
	UID     uint32    `json:"uid"`
	SeqNum  uint32    `json:"-"`
	Subject string    `json:"subject"`
	From    Address   `json:"from"`
	To      []Address `json:"to"`
	Date    time.Time `json:"date"`
	Seen    bool      `json:"seen"`
	Flagged bool      `json:"flagged"`
}

// EmailDetail is a fully parsed message
type EmailDetail struct {
	UID         uint32           `json:"uid"`
	Subject     string           `json:"subject"`
	From        []Address        `json:"from"`
	To          []Address        `json:"to"`
	Cc          []Address        `json:"cc"`
	Date        time.Time        `json:"date"`
	HTML        string           `json:"html"`
	Text        string           `json:"text"`
	Attachments []AttachmentInfo `json:"attachments"`
}

// AttachmentInfo describes an attachment without its content
type AttachmentInfo struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}
