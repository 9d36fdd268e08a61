package api

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"fluxmail/middleware"
	"fluxmail/models"
	"fluxmail/storage"
	"fluxmail/utils"
)

// AdminHandler manages imported accounts
type AdminHandler struct {
	accounts *storage.AccountStorage
	mail     MailReader
}

// NewAdminHandler creates the admin handlers
func NewAdminHandler(accounts *storage.AccountStorage, mail MailReader) *AdminHandler {
	return &AdminHandler{
		accounts: accounts,
		mail:     mail,
	}
}

// adminAccountView omits every secret: mailbox passwords, the refresh
// token and the local password hash.
type adminAccountView struct {
	ID            uint64    `json:"id"`
	Email         string    `json:"email"`
	Login         string    `json:"user_login"`
	DisplayName   string    `json:"display_name"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	RecoveryEmail string    `json:"recovery_email"`
	ClientID      string    `json:"client_id"`
}

func newAdminAccountView(acc *models.Account) adminAccountView {
	return adminAccountView{
		ID:            acc.ID,
		Email:         acc.Email,
		Login:         acc.Login,
		DisplayName:   acc.Name(),
		Active:        acc.Active,
		CreatedAt:     acc.CreatedAt,
		RecoveryEmail: acc.RecoveryEmail,
		ClientID:      acc.ClientID,
	}
}

// Stats returns account totals
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.accounts.Stats()
	if err != nil {
		return utils.InternalServerError(utils.T(middleware.Localizer(c), "error.internal"), err)
	}
	return c.JSON(stats)
}

// ListAccounts returns every account, newest first
func (h *AdminHandler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.accounts.ListAccounts()
	if err != nil {
		return utils.InternalServerError(utils.T(middleware.Localizer(c), "error.internal"), err)
	}

	views := make([]adminAccountView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, newAdminAccountView(acc))
	}
	return c.JSON(fiber.Map{"accounts": views})
}

type bulkRequest struct {
	Data string `json:"data"`
}

// BulkImport ingests newline-separated credential lines
func (h *AdminHandler) BulkImport(c *fiber.Ctx) error {
	localizer := middleware.Localizer(c)

	var req bulkRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestError(utils.T(localizer, "error.bad_request"), err)
	}
	if strings.TrimSpace(req.Data) == "" {
		return utils.BadRequestError(utils.T(localizer, "error.missing_data"), nil)
	}

	return c.JSON(ImportCredentials(h.accounts, req.Data, localizer))
}

// UpdateAccount changes the administrative fields of one account
func (h *AdminHandler) UpdateAccount(c *fiber.Ctx) error {
	localizer := middleware.Localizer(c)

	id, err := accountID(c)
	if err != nil {
		return err
	}

	var upd models.AccountUpdate
	if err := c.BodyParser(&upd); err != nil {
		return utils.BadRequestError(utils.T(localizer, "error.bad_request"), err)
	}
	if (upd.Login != nil && strings.TrimSpace(*upd.Login) == "") || (upd.Password != nil && *upd.Password == "") {
		return utils.BadRequestError(utils.T(localizer, "error.login_required"), nil)
	}
	if upd.Password != nil && len(*upd.Password) > storage.MaxPasswordLength {
		return utils.BadRequestError(utils.T(localizer, "error.password_too_long"), nil)
	}

	acc, err := h.accounts.UpdateAccount(id, upd)
	switch {
	case errors.Is(err, storage.ErrAccountNotFound):
		return utils.NotFoundError(utils.T(localizer, "error.account_not_found"), err)
	case errors.Is(err, storage.ErrDuplicateLogin):
		return utils.ConflictError(utils.T(localizer, "error.login_taken"), err)
	case err != nil:
		return utils.InternalServerError(utils.T(localizer, "error.internal"), err)
	}

	utils.Log.WithField("account_id", id).Info("Account updated by admin")
	return c.JSON(fiber.Map{
		"success": true,
		"account": newAdminAccountView(acc),
	})
}

// DeleteAccount removes one account
func (h *AdminHandler) DeleteAccount(c *fiber.Ctx) error {
	localizer := middleware.Localizer(c)

	id, err := accountID(c)
	if err != nil {
		return err
	}

	err = h.accounts.DeleteAccount(id)
	if errors.Is(err, storage.ErrAccountNotFound) {
		return utils.NotFoundError(utils.T(localizer, "error.account_not_found"), err)
	}
	if err != nil {
		return utils.InternalServerError(utils.T(localizer, "error.internal"), err)
	}

	utils.Log.WithField("account_id", id).Info("Account deleted by admin")
	return c.JSON(fiber.Map{"success": true})
}

// CheckAccount reports whether the account can still reach its mailbox.
// An invalid account is a successful check with valid=false.
func (h *AdminHandler) CheckAccount(c *fiber.Ctx) error {
	localizer := middleware.Localizer(c)

	id, err := accountID(c)
	if err != nil {
		return err
	}

	acc, err := h.accounts.GetAccount(id)
	if errors.Is(err, storage.ErrAccountNotFound) {
		return utils.NotFoundError(utils.T(localizer, "error.account_not_found"), err)
	}
	if err != nil {
		return utils.InternalServerError(utils.T(localizer, "error.internal"), err)
	}

	if err := h.mail.CheckAccount(c.UserContext(), acc); err != nil {
		utils.Log.WithField("account_id", id).Warn("Account check failed: %v", err)
		return c.JSON(fiber.Map{
			"valid":  false,
			"kind":   utils.ErrorKind(err),
			"reason": mailError(c, err).Message,
		})
	}
	return c.JSON(fiber.Map{"valid": true})
}

func accountID(c *fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return 0, utils.BadRequestError(utils.T(middleware.Localizer(c), "error.bad_request"), err)
	}
	return id, nil
}
