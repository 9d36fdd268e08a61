package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"fluxmail/models"
	"fluxmail/utils"
)

// ErrInvalidToken rejects tokens that are not HS256 FluxMail claims
var ErrInvalidToken = errors.New("invalid token")

// Claims identify either a mailbox account or the administrator
type Claims struct {
	AccountID uint64 `json:"accountId,omitempty"`
	Email     string `json:"email,omitempty"`
	IsAdmin   bool   `json:"isAdmin,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates HS256 session tokens
type TokenManager struct {
	secretKey []byte
	userTTL   time.Duration
	adminTTL  time.Duration
	now       func() time.Time
}

// NewTokenManager signs with secretKey; user and admin sessions live for
// userTTL and adminTTL.
func NewTokenManager(secretKey string, userTTL, adminTTL time.Duration) *TokenManager {
	return &TokenManager{
		secretKey: []byte(secretKey),
		userTTL:   userTTL,
		adminTTL:  adminTTL,
		now:       time.Now,
	}
}

// UserToken signs a session for acc
func (m *TokenManager) UserToken(acc *models.Account) (string, error) {
	return m.sign(Claims{AccountID: acc.ID, Email: acc.Email}, m.userTTL)
}

// AdminToken signs an administrator session
func (m *TokenManager) AdminToken() (string, error) {
	return m.sign(Claims{IsAdmin: true}, m.adminTTL)
}

func (m *TokenManager) sign(claims Claims, ttl time.Duration) (string, error) {
	now := m.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    "fluxmail",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Validate parses tokenString. Expired tokens return an error wrapping
// jwt.ErrTokenExpired.
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secretKey, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AccountLookup resolves the account behind a user token
type AccountLookup interface {
	GetAccount(id uint64) (*models.Account, error)
}

func bearerClaims(c *fiber.Ctx, tokens *TokenManager) (*Claims, error) {
	header := c.Get(fiber.HeaderAuthorization)
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, utils.UnauthorizedError(utils.T(Localizer(c), "error.unauthorized"), nil)
	}

	claims, err := tokens.Validate(strings.TrimSpace(raw))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, utils.UnauthorizedError(utils.T(Localizer(c), "error.session_expired"), err)
	}
	if err != nil {
		return nil, utils.UnauthorizedError(utils.T(Localizer(c), "error.unauthorized"), err)
	}
	return claims, nil
}

// RequireUser admits only user tokens of active accounts. The account is
// stored in Locals("account").
func RequireUser(tokens *TokenManager, accounts AccountLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := bearerClaims(c, tokens)
		if err != nil {
			return err
		}
		if claims.IsAdmin {
			return utils.ForbiddenError(utils.T(Localizer(c), "error.forbidden"), nil)
		}

		acc, err := accounts.GetAccount(claims.AccountID)
		if err != nil {
			return utils.UnauthorizedError(utils.T(Localizer(c), "error.account_not_found"), err)
		}
		if !acc.Active {
			return utils.UnauthorizedError(utils.T(Localizer(c), "error.account_disabled"), nil)
		}

		c.Locals("claims", claims)
		c.Locals("account", acc)
		return c.Next()
	}
}

// RequireAdmin admits only administrator tokens
func RequireAdmin(tokens *TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := bearerClaims(c, tokens)
		if err != nil {
			return err
		}
		if !claims.IsAdmin {
			return utils.ForbiddenError(utils.T(Localizer(c), "error.admin_only"), nil)
		}

		c.Locals("claims", claims)
		return c.Next()
	}
}

// CurrentAccount returns the account admitted by RequireUser
func CurrentAccount(c *fiber.Ctx) *models.Account {
	acc, _ := c.Locals("account").(*models.Account)
	return acc
}
