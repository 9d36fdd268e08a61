package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-sasl"

	"fluxmail/config"
	"fluxmail/models"
	"fluxmail/utils"
)

// fakeIMAP is an in-memory imapClient. Messages are indexed by sequence
// number - 1 per folder.
type fakeIMAP struct {
	mu sync.Mutex

	authErr   error
	listErr   error
	selectErr error
	fetchErr  error

	mailboxes []*imap.MailboxInfo
	folders   map[string][]*imap.Message
	raw       map[uint32][]byte
	selected  string

	// onSelect runs inside Select, after the folder is known
	onSelect func(folder string)

	authCalls     int
	selectCalls   int
	fetchCalls    int
	uidFetchCalls int
	logoutCalls   int
	fetchRanges   []string
	lastAuthIR    string
}

func newFakeIMAP() *fakeIMAP {
	return &fakeIMAP{
		folders: make(map[string][]*imap.Message),
		raw:     make(map[uint32][]byte),
	}
}

func (f *fakeIMAP) Authenticate(auth sasl.Client) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	_, ir, _ := auth.Start()
	f.lastAuthIR = string(ir)
	return f.authErr
}

func (f *fakeIMAP) List(ref, name string, ch chan *imap.MailboxInfo) error {
	defer close(ch)
	if f.listErr != nil {
		return f.listErr
	}
	for _, mb := range f.mailboxes {
		ch <- mb
	}
	return nil
}

func (f *fakeIMAP) Select(name string, readOnly bool) (*imap.MailboxStatus, error) {
	f.mu.Lock()
	f.selectCalls++
	f.selected = name
	hook := f.onSelect
	msgs, ok := f.folders[name]
	f.mu.Unlock()

	if hook != nil {
		hook(name)
	}
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	if !ok {
		return nil, fmt.Errorf("Mailbox doesn't exist: %s", name)
	}
	return &imap.MailboxStatus{Name: name, ReadOnly: readOnly, Messages: uint32(len(msgs))}, nil
}

func (f *fakeIMAP) Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
	defer close(ch)
	f.mu.Lock()
	f.fetchCalls++
	f.fetchRanges = append(f.fetchRanges, seqset.String())
	var out []*imap.Message
	for _, m := range f.folders[f.selected] {
		if seqset.Contains(m.SeqNum) {
			out = append(out, m)
		}
	}
	f.mu.Unlock()

	if f.fetchErr != nil {
		return f.fetchErr
	}
	for _, m := range out {
		ch <- m
	}
	return nil
}

func (f *fakeIMAP) UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
	defer close(ch)
	f.mu.Lock()
	f.uidFetchCalls++
	raw := f.raw
	f.mu.Unlock()

	if f.fetchErr != nil {
		return f.fetchErr
	}
	for uid, body := range raw {
		if !seqset.Contains(uid) {
			continue
		}
		ch <- &imap.Message{
			SeqNum: 1,
			Uid:    uid,
			Body:   map[*imap.BodySectionName]imap.Literal{{}: bytes.NewReader(body)},
		}
	}
	return nil
}

func (f *fakeIMAP) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return nil
}

func (f *fakeIMAP) counts() (selects, fetches, logouts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selectCalls, f.fetchCalls, f.logoutCalls
}

// addMessages fills folder with n messages; message i is one minute newer
// than message i-1 and has UID 1000+i.
func (f *fakeIMAP) addMessages(folder string, n int) {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	msgs := make([]*imap.Message, 0, n)
	for i := 1; i <= n; i++ {
		msgs = append(msgs, &imap.Message{
			SeqNum:       uint32(i),
			Uid:          uint32(1000 + i),
			InternalDate: base.Add(time.Duration(i) * time.Minute),
			Envelope: &imap.Envelope{
				Subject: fmt.Sprintf("message %d", i),
				Date:    base.Add(time.Duration(i) * time.Minute),
				From:    []*imap.Address{{PersonalName: "Sender", MailboxName: "sender", HostName: "example.com"}},
				To:      []*imap.Address{{MailboxName: "john", HostName: "outlook.com"}},
			},
		})
	}
	f.folders[folder] = msgs
}

type fakeTokens struct {
	mu    sync.Mutex
	token string
	err   error
	calls int
}

func (t *fakeTokens) AccessToken(ctx context.Context, acc *models.Account) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	return t.token, t.err
}

func testIMAPConfig() config.IMAPConfig {
	return config.IMAPConfig{
		Server:         "imap.test",
		Port:           993,
		DialTimeout:    config.Duration{Duration: time.Second},
		CommandTimeout: config.Duration{Duration: time.Second},
	}
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		TokenTTL:   config.Duration{Duration: 45 * time.Minute},
		FoldersTTL: config.Duration{Duration: 5 * time.Minute},
		ListTTL:    config.Duration{Duration: 2 * time.Minute},
		EmailTTL:   config.Duration{Duration: 10 * time.Minute},
	}
}

// newTestSessions returns sessions whose every dial yields fake, plus a
// counter of dials.
func newTestSessions(fake *fakeIMAP) (*Sessions, func() int) {
	var mu sync.Mutex
	dials := 0
	s := NewSessions(testIMAPConfig(), withClientFactory(func(ctx context.Context) (imapClient, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return fake, nil
	}))
	return s, func() int {
		mu.Lock()
		defer mu.Unlock()
		return dials
	}
}

func newTestService(fake *fakeIMAP) (*Service, *fakeTokens, func() int) {
	tokens := &fakeTokens{token: "access"}
	sessions, dials := newTestSessions(fake)
	return NewService(tokens, sessions, utils.NewExpiringCache(), testCacheConfig()), tokens, dials
}

func testAccount() *models.Account {
	return &models.Account{
		ID:           7,
		Email:        "john@outlook.com",
		RefreshToken: "refresh",
		ClientID:     "11111111-2222-3333-4444-555555555555",
		Active:       true,
	}
}
