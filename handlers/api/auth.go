package api

import (
	"crypto/subtle"
	"errors"

	"github.com/gofiber/fiber/v2"

	"fluxmail/middleware"
	"fluxmail/models"
	"fluxmail/storage"
	"fluxmail/utils"
)

// AuthHandler issues user and administrator sessions
type AuthHandler struct {
	accounts      *storage.AccountStorage
	tokens        *middleware.TokenManager
	adminPassword string
}

// NewAuthHandler creates the login handlers. An empty adminPassword
// disables admin login.
func NewAuthHandler(accounts *storage.AccountStorage, tokens *middleware.TokenManager, adminPassword string) *AuthHandler {
	return &AuthHandler{
		accounts:      accounts,
		tokens:        tokens,
		adminPassword: adminPassword,
	}
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// accountView is the account as its owner sees it
type accountView struct {
	ID          uint64 `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Login       string `json:"login"`
}

func newAccountView(acc *models.Account) accountView {
	return accountView{
		ID:          acc.ID,
		Email:       acc.Email,
		DisplayName: acc.Name(),
		Login:       acc.Login,
	}
}

// Login exchanges a local login and password for a user token
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	localizer := middleware.Localizer(c)

	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestError(utils.T(localizer, "error.bad_request"), err)
	}
	if req.Login == "" || req.Password == "" {
		return utils.BadRequestError(utils.T(localizer, "error.login_required"), nil)
	}

	acc, err := h.accounts.VerifyLogin(req.Login, req.Password)
	if errors.Is(err, storage.ErrInvalidCredentials) {
		return utils.UnauthorizedError(utils.T(localizer, "error.invalid_credentials"), err)
	}
	if err != nil {
		return utils.InternalServerError(utils.T(localizer, "error.internal"), err)
	}
	// Disabled accounts are indistinguishable from unknown ones
	if !acc.Active {
		return utils.UnauthorizedError(utils.T(localizer, "error.invalid_credentials"), nil)
	}

	token, err := h.tokens.UserToken(acc)
	if err != nil {
		return utils.InternalServerError(utils.T(localizer, "error.internal"), err)
	}

	utils.Log.WithField("account_id", acc.ID).Info("User signed in")
	return c.JSON(fiber.Map{
		"token":   token,
		"account": newAccountView(acc),
	})
}

type adminLoginRequest struct {
	Password string `json:"password"`
}

// AdminLogin exchanges the configured admin password for an admin token.
// An empty configured password disables admin access.
func (h *AuthHandler) AdminLogin(c *fiber.Ctx) error {
	localizer := middleware.Localizer(c)

	var req adminLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestError(utils.T(localizer, "error.bad_request"), err)
	}

	if h.adminPassword == "" || subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.adminPassword)) != 1 {
		utils.Log.WithField("ip", c.IP()).Warn("Rejected admin login")
		return utils.UnauthorizedError(utils.T(localizer, "error.invalid_credentials"), nil)
	}

	token, err := h.tokens.AdminToken()
	if err != nil {
		return utils.InternalServerError(utils.T(localizer, "error.internal"), err)
	}
	return c.JSON(fiber.Map{"token": token})
}
