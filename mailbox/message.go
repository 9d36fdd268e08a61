package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"fluxmail/models"
	"fluxmail/utils"
)

// parseMessage decodes a raw RFC 822 message into its displayable parts.
// Attachment bodies are counted, not kept.
func parseMessage(uid uint32, raw []byte) (*models.EmailDetail, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	defer mr.Close()

	detail := &models.EmailDetail{
		UID:         uid,
		From:        headerAddresses(&mr.Header, "From"),
		To:          headerAddresses(&mr.Header, "To"),
		Cc:          headerAddresses(&mr.Header, "Cc"),
		Attachments: []models.AttachmentInfo{},
	}
	if subject, err := mr.Header.Subject(); err == nil {
		detail.Subject = subject
	} else {
		detail.Subject = mr.Header.Get("Subject")
	}
	if date, err := mr.Header.Date(); err == nil {
		detail.Date = date
	}

	var htmlBody, textBody string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			utils.Log.Debug("Stopped reading message %d parts: %v", uid, err)
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, typeParams, _ := h.ContentType()
			filename := inlineFilename(h, typeParams)
			if filename != "" && !strings.HasPrefix(contentType, "text/") {
				detail.Attachments = append(detail.Attachments, attachmentInfo(filename, contentType, part.Body))
				continue
			}

			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/html"):
				if htmlBody == "" {
					htmlBody = string(body)
				}
			case contentType == "" || strings.HasPrefix(contentType, "text/plain"):
				if textBody == "" {
					textBody = string(body)
				}
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			detail.Attachments = append(detail.Attachments, attachmentInfo(filename, contentType, part.Body))
		}
	}

	if htmlBody != "" {
		detail.HTML = utils.SanitizeHTML(htmlBody)
	}
	detail.Text = textBody
	if detail.Text == "" && htmlBody != "" {
		detail.Text = utils.HTMLToText(htmlBody)
	}
	return detail, nil
}

func attachmentInfo(filename, contentType string, body io.Reader) models.AttachmentInfo {
	size, _ := io.Copy(io.Discard, body)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return models.AttachmentInfo{
		Filename:    filename,
		Size:        size,
		ContentType: contentType,
	}
}

// inlineFilename finds the name of an inline part such as an embedded image
func inlineFilename(h *mail.InlineHeader, typeParams map[string]string) string {
	if _, params, err := h.ContentDisposition(); err == nil && params["filename"] != "" {
		return params["filename"]
	}
	return typeParams["name"]
}

func headerAddresses(h *mail.Header, key string) []models.Address {
	out := []models.Address{}
	list, err := h.AddressList(key)
	if err != nil {
		if raw := strings.TrimSpace(h.Get(key)); raw != "" {
			out = append(out, models.Address{Address: raw})
		}
		return out
	}
	for _, a := range list {
		out = append(out, models.Address{Name: a.Name, Address: a.Address})
	}
	return out
}
