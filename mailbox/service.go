package mailbox

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fluxmail/config"
	"fluxmail/models"
	"fluxmail/utils"
)

const (
	// DefaultPageSize applies when a caller asks for no limit
	DefaultPageSize = 50
	// MaxPageSize caps the limit of one page
	MaxPageSize = 100
)

// TokenSource yields IMAP access tokens for an account
type TokenSource interface {
	AccessToken(ctx context.Context, acc *models.Account) (string, error)
}

// Service is the account-scoped read API over IMAP. Every read is memoized
// with its own freshness window; a miss costs one token lookup and one IMAP
// session.
type Service struct {
	tokens   TokenSource
	sessions *Sessions
	cache    *utils.ExpiringCache
	ttl      config.CacheConfig
	logger   *utils.Logger
}

// NewService wires the token source and session opener behind cache
func NewService(tokens TokenSource, sessions *Sessions, cache *utils.ExpiringCache, ttl config.CacheConfig) *Service {
	return &Service{
		tokens:   tokens,
		sessions: sessions,
		cache:    cache,
		ttl:      ttl,
		logger:   utils.Log,
	}
}

// Folders returns the account's folder hierarchy, flattened depth-first
func (s *Service) Folders(ctx context.Context, acc *models.Account) ([]models.Folder, error) {
	key := fmt.Sprintf("folders:%d", acc.ID)
	if folders, ok := utils.CachedAs[[]models.Folder](s.cache, key, s.ttl.FoldersTTL.Duration); ok {
		return folders, nil
	}
	s.logger.WithField("account_id", acc.ID).Debug("Cache miss %s", key)

	token, err := s.tokens.AccessToken(ctx, acc)
	if err != nil {
		return nil, err
	}

	var folders []models.Folder
	err = s.sessions.WithSession(ctx, acc, token, func(conn *Conn) error {
		var err error
		folders, err = conn.Folders()
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, folders)
	return folders, nil
}

// NormalizePaging applies the defaults and bounds used by ListEmails
func NormalizePaging(page, limit int) (uint32, uint32) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return uint32(page), uint32(limit)
}

// ListEmails returns one page of folder, newest first. Page 1 holds the
// highest sequence numbers. A page past the end is empty but still reports
// the folder's total.
func (s *Service) ListEmails(ctx context.Context, acc *models.Account, folder string, page, limit int) (*models.EmailPage, error) {
	p, l := NormalizePaging(page, limit)
	key := fmt.Sprintf("list:%d:%s:%d:%d", acc.ID, folder, p, l)
	if cached, ok := utils.CachedAs[*models.EmailPage](s.cache, key, s.ttl.ListTTL.Duration); ok {
		return cached, nil
	}
	s.logger.WithFields(map[string]interface{}{"account_id": acc.ID, "folder": folder}).Debug("Cache miss %s", key)

	token, err := s.tokens.AccessToken(ctx, acc)
	if err != nil {
		return nil, err
	}

	var result *models.EmailPage
	err = s.sessions.WithFolder(ctx, acc, token, folder, func(conn *Conn, total uint32) error {
		end := int64(total) - int64(p-1)*int64(l)
		if total == 0 || end < 1 {
			result = models.NewEmailPage(nil, p, l, total)
			return nil
		}
		start := end - int64(l) + 1
		if start < 1 {
			start = 1
		}

		emails, err := conn.FetchEnvelopes(uint32(start), uint32(end))
		if err != nil {
			return err
		}
		sortNewestFirst(emails)
		result = models.NewEmailPage(emails, p, l, total)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, result)
	return result, nil
}

// sortNewestFirst orders by date descending, breaking ties by the higher
// sequence number
func sortNewestFirst(emails []models.EmailSummary) {
	sort.SliceStable(emails, func(i, j int) bool {
		if !emails[i].Date.Equal(emails[j].Date) {
			return emails[i].Date.After(emails[j].Date)
		}
		return emails[i].SeqNum > emails[j].SeqNum
	})
}

// Email fetches and parses one message by UID
func (s *Service) Email(ctx context.Context, acc *models.Account, folder string, uid uint32) (*models.EmailDetail, error) {
	key := fmt.Sprintf("email:%d:%s:%d", acc.ID, folder, uid)
	if cached, ok := utils.CachedAs[*models.EmailDetail](s.cache, key, s.ttl.EmailTTL.Duration); ok {
		return cached, nil
	}

	token, err := s.tokens.AccessToken(ctx, acc)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = s.sessions.WithFolder(ctx, acc, token, folder, func(conn *Conn, _ uint32) error {
		var err error
		raw, err = conn.FetchRaw(uid)
		return err
	})
	if err != nil {
		return nil, err
	}

	detail, err := parseMessage(uid, raw)
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, detail)
	return detail, nil
}

// CheckAccount reports whether acc can still obtain an access token
func (s *Service) CheckAccount(ctx context.Context, acc *models.Account) error {
	start := time.Now()
	_, err := s.tokens.AccessToken(ctx, acc)
	s.logger.WithFields(map[string]interface{}{
		"account_id": acc.ID,
		"valid":      err == nil,
	}).Info("Account check took %s", time.Since(start).Round(time.Millisecond))
	return err
}
