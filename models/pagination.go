package models

// EmailPage represents one page of a folder, newest first
type EmailPage struct {
	Emails []EmailSummary `json:"emails"`
	Total  uint32         `json:"total"`
	Page   uint32         `json:"page"`
	Pages  uint32         `json:"pages"`
}

// NewEmailPage creates a page response; pages is ceil(total/limit) and zero
// for an empty folder.
func NewEmailPage(emails []EmailSummary, page, limit, total uint32) *EmailPage {
	if emails == nil {
		emails = []EmailSummary{}
	}

	var pages uint32
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}

	return &EmailPage{
		Emails: emails,
		Total:  total,
		Page:   page,
		Pages:  pages,
	}
}
