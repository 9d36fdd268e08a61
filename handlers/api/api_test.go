package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxmail/middleware"
	"fluxmail/models"
	"fluxmail/storage"
	"fluxmail/utils"
)

type fakeMail struct {
	mu       sync.Mutex
	folders  []models.Folder
	page     *models.EmailPage
	detail   *models.EmailDetail
	err      error
	lastCall string
	lastArgs []interface{}
}

func (f *fakeMail) record(call string, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCall = call
	f.lastArgs = args
	return f.err
}

func (f *fakeMail) Folders(ctx context.Context, acc *models.Account) ([]models.Folder, error) {
	if err := f.record("folders", acc.ID); err != nil {
		return nil, err
	}
	return f.folders, nil
}

func (f *fakeMail) ListEmails(ctx context.Context, acc *models.Account, folder string, page, limit int) (*models.EmailPage, error) {
	if err := f.record("list", acc.ID, folder, page, limit); err != nil {
		return nil, err
	}
	return f.page, nil
}

func (f *fakeMail) Email(ctx context.Context, acc *models.Account, folder string, uid uint32) (*models.EmailDetail, error) {
	if err := f.record("email", acc.ID, folder, uid); err != nil {
		return nil, err
	}
	return f.detail, nil
}

func (f *fakeMail) CheckAccount(ctx context.Context, acc *models.Account) error {
	return f.record("check", acc.ID)
}

func newTestAccounts(t *testing.T) *storage.AccountStorage {
	t.Helper()
	db, err := storage.InitDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return storage.NewAccountStorage(db)
}

type testServer struct {
	app      *fiber.App
	accounts *storage.AccountStorage
	mail     *fakeMail
	tokens   *middleware.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		accounts: newTestAccounts(t),
		mail:     &fakeMail{},
		tokens:   middleware.NewTokenManager("test-secret", time.Hour, time.Hour),
	}
	ts.app = fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	ts.app.Use(middleware.LocaleMiddleware())
	RegisterRoutes(ts.app, Deps{
		Accounts:      ts.accounts,
		Mail:          ts.mail,
		Tokens:        ts.tokens,
		AdminPassword: "admin-pass",
		LoginRequests: 100,
		LoginWindow:   time.Minute,
	})
	return ts
}

func (ts *testServer) createAccount(t *testing.T, email, password string) *models.Account {
	t.Helper()
	acc := &models.Account{
		Email:        email,
		RefreshToken: "refresh",
		ClientID:     testClientID,
		Login:        email,
		Active:       true,
	}
	require.NoError(t, ts.accounts.CreateAccount(acc, password))
	return acc
}

func (ts *testServer) userToken(t *testing.T, acc *models.Account) string {
	t.Helper()
	token, err := ts.tokens.UserToken(acc)
	require.NoError(t, err)
	return token
}

func (ts *testServer) adminToken(t *testing.T) string {
	t.Helper()
	token, err := ts.tokens.AdminToken()
	require.NoError(t, err)
	return token
}

// do sends a request and decodes the JSON response into out when non-nil
func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	acc := ts.createAccount(t, "john@outlook.com", "pw")

	var ok struct {
		Token   string      `json:"token"`
		Account accountView `json:"account"`
	}
	status := ts.do(t, "POST", "/api/login", "", fiber.Map{"login": "john@outlook.com", "password": "pw"}, &ok)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, accountView{ID: acc.ID, Email: "john@outlook.com", DisplayName: "john", Login: "john@outlook.com"}, ok.Account)

	claims, err := ts.tokens.Validate(ok.Token)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, claims.AccountID)

	var fail map[string]string
	status = ts.do(t, "POST", "/api/login", "", fiber.Map{"login": "john@outlook.com", "password": "bad"}, &fail)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Invalid login or password", fail["error"])

	status = ts.do(t, "POST", "/api/login", "", fiber.Map{"login": "john@outlook.com"}, &fail)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestLogin_DisabledAccount(t *testing.T) {
	ts := newTestServer(t)
	acc := ts.createAccount(t, "john@outlook.com", "pw")
	inactive := false
	_, err := ts.accounts.UpdateAccount(acc.ID, models.AccountUpdate{Active: &inactive})
	require.NoError(t, err)

	status := ts.do(t, "POST", "/api/login", "", fiber.Map{"login": "john@outlook.com", "password": "pw"}, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestAdminLogin(t *testing.T) {
	ts := newTestServer(t)

	var ok map[string]string
	status := ts.do(t, "POST", "/api/admin/login", "", fiber.Map{"password": "admin-pass"}, &ok)
	require.Equal(t, fiber.StatusOK, status)
	claims, err := ts.tokens.Validate(ok["token"])
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)

	status = ts.do(t, "POST", "/api/admin/login", "", fiber.Map{"password": "nope"}, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestAccountEndpoint(t *testing.T) {
	ts := newTestServer(t)
	acc := ts.createAccount(t, "john@outlook.com", "pw")

	var view accountView
	status := ts.do(t, "GET", "/api/account", ts.userToken(t, acc), nil, &view)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "john@outlook.com", view.Email)

	status = ts.do(t, "GET", "/api/account", ts.adminToken(t), nil, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestListEmails(t *testing.T) {
	ts := newTestServer(t)
	acc := ts.createAccount(t, "john@outlook.com", "pw")
	cached := &models.EmailPage{
		Emails: []models.EmailSummary{{UID: 2, Subject: ""}, {UID: 1, Subject: "hello"}},
		Total:  2, Page: 1, Pages: 1,
	}
	ts.mail.page = cached

	var page models.EmailPage
	status := ts.do(t, "GET", "/api/emails?folder=Archive&page=2&limit=500", ts.userToken(t, acc), nil, &page)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "list", ts.mail.lastCall)
	assert.Equal(t, []interface{}{acc.ID, "Archive", 2, 500}, ts.mail.lastArgs)

	require.Len(t, page.Emails, 2)
	assert.Equal(t, "(no subject)", page.Emails[0].Subject)
	assert.Equal(t, "hello", page.Emails[1].Subject)
	assert.Equal(t, "", cached.Emails[0].Subject, "the service's page is not modified")
}

func TestListEmails_DefaultsToInbox(t *testing.T) {
	ts := newTestServer(t)
	acc := ts.createAccount(t, "john@outlook.com", "pw")
	ts.mail.page = models.NewEmailPage(nil, 1, 50, 0)

	status := ts.do(t, "GET", "/api/emails", ts.userToken(t, acc), nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []interface{}{acc.ID, "INBOX", 1, 0}, ts.mail.lastArgs)
}

func TestGetEmail(t *testing.T) {
	ts := newTestServer(t)
	acc := ts.createAccount(t, "john@outlook.com", "pw")
	ts.mail.detail = &models.EmailDetail{UID: 42, Text: "body"}
	token := ts.userToken(t, acc)

	var detail models.EmailDetail
	status := ts.do(t, "GET", "/api/emails/42?folder=Sent&lang=ru", token, nil, &detail)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []interface{}{acc.ID, "Sent", uint32(42)}, ts.mail.lastArgs)
	assert.Equal(t, "(без темы)", detail.Subject)
	assert.Equal(t, "body", detail.Text)

	status = ts.do(t, "GET", "/api/emails/abc", token, nil, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestMailErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"auth", utils.AuthError("token", 1, errors.New("invalid_grant")), fiber.StatusForbidden, "auth"},
		{"network", utils.NetworkError("dial", 1, errors.New("refused")), fiber.StatusServiceUnavailable, "network"},
		{"not found", utils.NotFound("fetch", 1, errors.New("no such uid")), fiber.StatusNotFound, "not_found"},
		{"other", errors.New("boom"), fiber.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			acc := ts.createAccount(t, "john@outlook.com", "pw")
			ts.mail.err = tt.err

			var body map[string]string
			status := ts.do(t, "GET", "/api/emails/5", ts.userToken(t, acc), nil, &body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.kind, body["kind"])
			assert.NotContains(t, body["error"], "boom")
		})
	}
}

func TestFolders(t *testing.T) {
	ts := newTestServer(t)
	acc := ts.createAccount(t, "john@outlook.com", "pw")
	ts.mail.folders = []models.Folder{{Name: "INBOX", Path: "INBOX", SpecialUse: `\Inbox`}}

	var body struct {
		Folders []models.Folder `json:"folders"`
	}
	status := ts.do(t, "GET", "/api/folders", ts.userToken(t, acc), nil, &body)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, ts.mail.folders, body.Folders)
}

func TestAdminRoutesRejectUserTokens(t *testing.T) {
	ts := newTestServer(t)
	acc := ts.createAccount(t, "john@outlook.com", "pw")

	status := ts.do(t, "GET", "/api/admin/stats", ts.userToken(t, acc), nil, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status = ts.do(t, "GET", "/api/admin/stats", "", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestAdminStatsAndList(t *testing.T) {
	ts := newTestServer(t)
	ts.createAccount(t, "a@outlook.com", "pw")
	b := ts.createAccount(t, "b@outlook.com", "pw")
	inactive := false
	_, err := ts.accounts.UpdateAccount(b.ID, models.AccountUpdate{Active: &inactive})
	require.NoError(t, err)
	admin := ts.adminToken(t)

	var stats models.AccountStats
	require.Equal(t, fiber.StatusOK, ts.do(t, "GET", "/api/admin/stats", admin, nil, &stats))
	assert.Equal(t, models.AccountStats{Total: 2, Active: 1, Inactive: 1}, stats)

	var raw map[string][]map[string]interface{}
	require.Equal(t, fiber.StatusOK, ts.do(t, "GET", "/api/admin/accounts", admin, nil, &raw))
	require.Len(t, raw["accounts"], 2)
	for _, acc := range raw["accounts"] {
		assert.NotContains(t, acc, "refresh_token")
		assert.NotContains(t, acc, "user_password_hash")
		assert.NotContains(t, acc, "mailbox_password")
		assert.Contains(t, acc, "user_login")
	}
}

func TestAdminBulkImport(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.adminToken(t)

	var result models.ImportResult
	status := ts.do(t, "POST", "/api/admin/accounts/bulk", admin, fiber.Map{
		"data": "john@outlook.com:pw:x:" + testToken + "\nbad line",
	}, &result)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, result.Failed)

	var fail map[string]string
	status = ts.do(t, "POST", "/api/admin/accounts/bulk", admin, fiber.Map{"data": "  "}, &fail)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "No data supplied", fail["error"])
}

func TestAdminUpdateAccount(t *testing.T) {
	ts := newTestServer(t)
	acc := ts.createAccount(t, "john@outlook.com", "pw")
	ts.createAccount(t, "mary@outlook.com", "pw")
	admin := ts.adminToken(t)
	path := "/api/admin/accounts/" + itoa(acc.ID)

	status := ts.do(t, "PUT", path, admin, fiber.Map{"userLogin": "johnny", "userPassword": "new", "displayName": "John"}, nil)
	require.Equal(t, fiber.StatusOK, status)

	_, err := ts.accounts.VerifyLogin("johnny", "new")
	assert.NoError(t, err)

	status = ts.do(t, "PUT", path, admin, fiber.Map{"userLogin": "mary@outlook.com"}, nil)
	assert.Equal(t, fiber.StatusConflict, status)

	status = ts.do(t, "PUT", path, admin, fiber.Map{"userPassword": ""}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status = ts.do(t, "PUT", path, admin, fiber.Map{"userPassword": strings.Repeat("p", storage.MaxPasswordLength+1)}, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status = ts.do(t, "PUT", "/api/admin/accounts/999", admin, fiber.Map{"active": false}, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestAdminDisableRevokesUserSession(t *testing.T) {
	ts := newTestServer(t)
	acc := ts.createAccount(t, "john@outlook.com", "pw")
	user := ts.userToken(t, acc)

	status := ts.do(t, "PUT", "/api/admin/accounts/"+itoa(acc.ID), ts.adminToken(t), fiber.Map{"active": false}, nil)
	require.Equal(t, fiber.StatusOK, status)

	status = ts.do(t, "GET", "/api/account", user, nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestAdminDeleteAccount(t *testing.T) {
	ts := newTestServer(t)
	acc := ts.createAccount(t, "john@outlook.com", "pw")
	admin := ts.adminToken(t)
	path := "/api/admin/accounts/" + itoa(acc.ID)

	require.Equal(t, fiber.StatusOK, ts.do(t, "DELETE", path, admin, nil, nil))
	assert.Equal(t, fiber.StatusNotFound, ts.do(t, "DELETE", path, admin, nil, nil))
	assert.Equal(t, fiber.StatusBadRequest, ts.do(t, "DELETE", "/api/admin/accounts/x", admin, nil, nil))
}

func TestAdminCheckAccount(t *testing.T) {
	ts := newTestServer(t)
	acc := ts.createAccount(t, "john@outlook.com", "pw")
	admin := ts.adminToken(t)
	path := "/api/admin/accounts/" + itoa(acc.ID) + "/check"

	var body map[string]interface{}
	require.Equal(t, fiber.StatusOK, ts.do(t, "POST", path, admin, nil, &body))
	assert.Equal(t, true, body["valid"])

	ts.mail.err = utils.AuthError("token", acc.ID, errors.New("invalid_grant"))
	body = nil
	require.Equal(t, fiber.StatusOK, ts.do(t, "POST", path, admin, nil, &body))
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "auth", body["kind"])
	assert.Equal(t, "Mailbox credentials are no longer valid", body["reason"])

	assert.Equal(t, fiber.StatusNotFound, ts.do(t, "POST", "/api/admin/accounts/999/check", admin, nil, nil))
}

func itoa(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func TestTranslations(t *testing.T) {
	ts := newTestServer(t)

	var body struct {
		Lang         string            `json:"lang"`
		Translations map[string]string `json:"translations"`
	}
	require.Equal(t, fiber.StatusOK, ts.do(t, "GET", "/api/i18n/ru", "", nil, &body))
	assert.Equal(t, "ru", body.Lang)
	assert.Equal(t, "(без темы)", body.Translations["mail.no_subject"])
	assert.Len(t, body.Translations, len(clientMessageIDs))

	require.Equal(t, fiber.StatusOK, ts.do(t, "GET", "/api/i18n/ja", "", nil, &body))
	assert.Equal(t, "en", body.Lang)
	assert.Equal(t, "(no subject)", body.Translations["mail.no_subject"])
}

func TestFolderOutlivesRequest(t *testing.T) {
	ts := newTestServer(t)
	acc := ts.createAccount(t, "john@outlook.com", "pw")
	ts.mail.page = models.NewEmailPage(nil, 1, 50, 0)
	ts.mail.detail = &models.EmailDetail{UID: 1, Subject: "s"}
	token := ts.userToken(t, acc)

	require.Equal(t, fiber.StatusOK, ts.do(t, "GET", "/api/emails?folder=Archive", token, nil, nil))
	listArgs := ts.mail.lastArgs
	require.Equal(t, fiber.StatusOK, ts.do(t, "GET", "/api/emails/1?folder=Drafts", token, nil, nil))
	emailArgs := ts.mail.lastArgs
	require.Equal(t, fiber.StatusOK, ts.do(t, "GET", "/api/emails?folder=Junk123", token, nil, nil))
	require.Equal(t, fiber.StatusOK, ts.do(t, "GET", "/api/emails/1?folder=Junk456", token, nil, nil))

	assert.Equal(t, "Archive", listArgs[1])
	assert.Equal(t, "Drafts", emailArgs[1])
}
