package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/sync/singleflight"

	"fluxmail/config"
	"fluxmail/models"
	"fluxmail/utils"
)

// RefreshTokenStore persists a rotated refresh token
type RefreshTokenStore interface {
	UpdateRefreshToken(id uint64, token string) error
}

// TokenBroker exchanges an account's refresh token for short-lived IMAP
// access tokens and caches them under token:<id>.
type TokenBroker struct {
	client   *fasthttp.Client
	tokenURL string
	scope    string
	timeout  time.Duration
	ttl      time.Duration
	cache    *utils.ExpiringCache
	store    RefreshTokenStore
	group    singleflight.Group
	logger   *utils.Logger
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// NewTokenBroker creates a broker for the configured identity provider.
// Access tokens are reused for ttl.
func NewTokenBroker(cfg config.OAuthConfig, ttl time.Duration, cache *utils.ExpiringCache, store RefreshTokenStore) *TokenBroker {
	return &TokenBroker{
		client: &fasthttp.Client{
			Name:                "fluxmail",
			MaxIdleConnDuration: time.Minute,
		},
		tokenURL: cfg.TokenURL,
		scope:    cfg.Scope,
		timeout:  cfg.Timeout.Duration,
		ttl:      ttl,
		cache:    cache,
		store:    store,
		logger:   utils.Log,
	}
}

func tokenKey(accountID uint64) string {
	return "token:" + strconv.FormatUint(accountID, 10)
}

// AccessToken returns a cached access token for acc or refreshes one.
// Concurrent refreshes for the same account share a single exchange. When
// the provider rotates the refresh token, the new one is stored and set on
// acc before the access token is returned.
func (b *TokenBroker) AccessToken(ctx context.Context, acc *models.Account) (string, error) {
	key := tokenKey(acc.ID)
	if token, ok := utils.CachedAs[string](b.cache, key, b.ttl); ok {
		return token, nil
	}

	v, err, _ := b.group.Do(key, func() (interface{}, error) {
		// another flight may have just finished
		if token, ok := utils.CachedAs[string](b.cache, key, b.ttl); ok {
			return token, nil
		}

		resp, err := b.exchange(ctx, acc)
		if err != nil {
			return "", err
		}

		if resp.RefreshToken != "" && resp.RefreshToken != acc.RefreshToken {
			if err := b.store.UpdateRefreshToken(acc.ID, resp.RefreshToken); err != nil {
				return "", fmt.Errorf("failed to store rotated refresh token for account %d: %w", acc.ID, err)
			}
			acc.RefreshToken = resp.RefreshToken
			utils.TokenRefreshes.WithLabelValues("rotated").Inc()
			b.logger.WithField("account_id", acc.ID).Info("Refresh token rotated")
		}

		b.cache.Set(key, resp.AccessToken)
		utils.TokenRefreshes.WithLabelValues("ok").Inc()
		return resp.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (b *TokenBroker) exchange(ctx context.Context, acc *models.Account) (*tokenResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, utils.NetworkError("token refresh", acc.ID, err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	form := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(form)
	form.Set("client_id", acc.ClientID)
	form.Set("refresh_token", acc.RefreshToken)
	form.Set("grant_type", "refresh_token")
	form.Set("scope", b.scope)

	req.SetRequestURI(b.tokenURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	req.SetBody(form.QueryString())

	deadline := time.Now().Add(b.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	log := b.logger.WithField("account_id", acc.ID)
	log.Debug("Refreshing access token")

	if err := b.client.DoDeadline(req, resp, deadline); err != nil {
		utils.TokenRefreshes.WithLabelValues("network_error").Inc()
		log.Warn("Token endpoint unreachable: %v", err)
		return nil, utils.NetworkError("token refresh", acc.ID, err)
	}

	status := resp.StatusCode()
	if status >= fasthttp.StatusInternalServerError {
		utils.TokenRefreshes.WithLabelValues("network_error").Inc()
		return nil, utils.NetworkError("token refresh", acc.ID, fmt.Errorf("token endpoint returned %d", status))
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body(), &tr); err != nil && status == fasthttp.StatusOK {
		utils.TokenRefreshes.WithLabelValues("network_error").Inc()
		return nil, utils.NetworkError("token refresh", acc.ID, fmt.Errorf("malformed token response: %w", err))
	}

	if tr.AccessToken == "" {
		reason := tr.ErrorDescription
		if reason == "" {
			reason = tr.Error
		}
		if reason == "" {
			reason = fmt.Sprintf("no access token in response (status %d)", status)
		}
		utils.TokenRefreshes.WithLabelValues("auth_error").Inc()
		log.Info("Refresh token rejected: %s", reason)
		return nil, utils.AuthError("token refresh", acc.ID, errors.New(reason))
	}

	return &tr, nil
}
