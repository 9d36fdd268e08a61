package api

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	gofiberutils "github.com/gofiber/fiber/v2/utils"

	"fluxmail/middleware"
	"fluxmail/models"
	"fluxmail/utils"
)

const defaultFolder = "INBOX"

// queryFolder returns the folder query parameter as an owned string. Fiber
// query values alias the request buffer, which is reused after the handler.
func queryFolder(c *fiber.Ctx) string {
	return gofiberutils.CopyString(c.Query("folder", defaultFolder))
}

// MailReader is the read API of mailbox.Service
type MailReader interface {
	Folders(ctx context.Context, acc *models.Account) ([]models.Folder, error)
	ListEmails(ctx context.Context, acc *models.Account, folder string, page, limit int) (*models.EmailPage, error)
	Email(ctx context.Context, acc *models.Account, folder string, uid uint32) (*models.EmailDetail, error)
	CheckAccount(ctx context.Context, acc *models.Account) error
}

// MailHandler serves the signed-in account's mailbox
type MailHandler struct {
	mail MailReader
}

// NewMailHandler creates a handler reading through mail
func NewMailHandler(mail MailReader) *MailHandler {
	return &MailHandler{mail: mail}
}

// Account returns the caller's own account
func (h *MailHandler) Account(c *fiber.Ctx) error {
	return c.JSON(newAccountView(middleware.CurrentAccount(c)))
}

// Folders lists the account's folder tree
func (h *MailHandler) Folders(c *fiber.Ctx) error {
	folders, err := h.mail.Folders(c.UserContext(), middleware.CurrentAccount(c))
	if err != nil {
		return mailError(c, err)
	}
	return c.JSON(fiber.Map{"folders": folders})
}

// ListEmails returns one page of a folder
func (h *MailHandler) ListEmails(c *fiber.Ctx) error {
	folder := queryFolder(c)
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 0)

	result, err := h.mail.ListEmails(c.UserContext(), middleware.CurrentAccount(c), folder, page, limit)
	if err != nil {
		return mailError(c, err)
	}

	// The page may be shared with the cache, so subjects are filled on a copy
	noSubject := utils.T(middleware.Localizer(c), "mail.no_subject")
	out := *result
	out.Emails = make([]models.EmailSummary, len(result.Emails))
	for i, e := range result.Emails {
		if e.Subject == "" {
			e.Subject = noSubject
		}
		out.Emails[i] = e
	}
	return c.JSON(out)
}

// GetEmail returns one parsed message
func (h *MailHandler) GetEmail(c *fiber.Ctx) error {
	localizer := middleware.Localizer(c)

	uid, err := strconv.ParseUint(c.Params("uid"), 10, 32)
	if err != nil || uid == 0 {
		return utils.BadRequestError(utils.T(localizer, "error.bad_request"), err)
	}

	detail, err := h.mail.Email(c.UserContext(), middleware.CurrentAccount(c), queryFolder(c), uint32(uid))
	if err != nil {
		return mailError(c, err)
	}

	out := *detail
	if out.Subject == "" {
		out.Subject = utils.T(localizer, "mail.no_subject")
	}
	return c.JSON(out)
}

// mailError converts a mail core failure into a localized AppError
func mailError(c *fiber.Ctx, err error) *utils.AppError {
	localizer := middleware.Localizer(c)

	messageID := "error.internal"
	switch utils.ErrorKind(err) {
	case "auth":
		messageID = "error.mail_auth"
	case "network":
		messageID = "error.mail_network"
	case "not_found":
		messageID = "error.email_not_found"
	}
	return utils.FromMailError(utils.T(localizer, messageID), err)
}
