package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"

	"fluxmail/config"
	"fluxmail/models"
	"fluxmail/utils"
)

// imapClient is the subset of *client.Client used by a session
type imapClient interface {
	Authenticate(auth sasl.Client) error
	List(ref, name string, ch chan *imap.MailboxInfo) error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Logout() error
}

// Sessions opens one authenticated IMAP connection per operation. There is
// no pooling; every session is logged out before its caller returns.
type Sessions struct {
	addr           string
	dialTimeout    time.Duration
	commandTimeout time.Duration
	logger         *utils.Logger
	newClient      func(ctx context.Context) (imapClient, error)
	locks          *folderLocks
}

// SessionOption customizes session behavior.
type SessionOption func(*Sessions)

// WithSessionLogger overrides the logger used for session diagnostics.
func WithSessionLogger(logger *utils.Logger) SessionOption {
	return func(s *Sessions) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func withClientFactory(factory func(ctx context.Context) (imapClient, error)) SessionOption {
	return func(s *Sessions) {
		s.newClient = factory
	}
}

// NewSessions returns a session opener for the configured IMAP endpoint
func NewSessions(cfg config.IMAPConfig, opts ...SessionOption) *Sessions {
	s := &Sessions{
		addr:           cfg.IMAPAddress(),
		dialTimeout:    cfg.DialTimeout.Duration,
		commandTimeout: cfg.CommandTimeout.Duration,
		logger:         utils.Log,
		locks:          newFolderLocks(),
	}
	s.newClient = s.defaultClientFactory
	for _, opt := range opts {
		opt(s)
	}
	if s.newClient == nil {
		s.newClient = s.defaultClientFactory
	}
	return s
}

func (s *Sessions) defaultClientFactory(ctx context.Context) (imapClient, error) {
	host, _, err := net.SplitHostPort(s.addr)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: s.dialTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	c, err := client.DialWithDialerTLS(dialer, s.addr, &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return nil, err
	}
	c.Timeout = s.commandTimeout
	return c, nil
}

// WithSession connects, authenticates acc with accessToken over XOAUTH2 and
// runs fn. The connection is logged out on every return path, including a
// panic in fn.
func (s *Sessions) WithSession(ctx context.Context, acc *models.Account, accessToken string, fn func(*Conn) error) error {
	if err := ctx.Err(); err != nil {
		return utils.NetworkError("imap connect", acc.ID, err)
	}

	log := s.logger.WithField("account_id", acc.ID)
	start := time.Now()

	c, err := s.newClient(ctx)
	if err != nil {
		utils.IMAPSessions.WithLabelValues("network_error").Inc()
		log.Warn("IMAP connect to %s failed: %v", s.addr, err)
		return utils.NetworkError("imap connect", acc.ID, err)
	}
	defer func() {
		if lerr := c.Logout(); lerr != nil {
			log.Debug("IMAP logout: %v", lerr)
		}
		utils.IMAPSessionDuration.Observe(time.Since(start).Seconds())
	}()

	if err := c.Authenticate(NewXoauth2Client(acc.Email, accessToken)); err != nil {
		if isTransportError(err) {
			utils.IMAPSessions.WithLabelValues("network_error").Inc()
			return utils.NetworkError("imap authenticate", acc.ID, err)
		}
		utils.IMAPSessions.WithLabelValues("auth_error").Inc()
		log.Info("XOAUTH2 rejected: %v", err)
		return utils.AuthError("imap authenticate", acc.ID, err)
	}

	if err := fn(&Conn{c: c, accountID: acc.ID}); err != nil {
		utils.IMAPSessions.WithLabelValues("op_error").Inc()
		return err
	}
	utils.IMAPSessions.WithLabelValues("ok").Inc()
	return nil
}

// WithFolder runs fn against folder opened read-only, passing its message
// count. Callers for the same account and folder are serialized; the lock is
// taken before dialing and released after logout.
func (s *Sessions) WithFolder(ctx context.Context, acc *models.Account, accessToken, folder string, fn func(*Conn, uint32) error) error {
	release, err := s.locks.acquire(ctx, folderKey{accountID: acc.ID, folder: folder})
	if err != nil {
		return utils.NetworkError("folder lock", acc.ID, err)
	}
	defer release()

	return s.WithSession(ctx, acc, accessToken, func(conn *Conn) error {
		total, err := conn.selectFolder(folder)
		if err != nil {
			return err
		}
		return fn(conn, total)
	})
}

// isTransportError reports whether err came from the connection rather than
// from a server response
func isTransportError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "connection closed")
}

type folderKey struct {
	accountID uint64
	folder    string
}

type folderLock struct {
	sem  chan struct{}
	refs int
}

// folderLocks hands out one mutex per (account, folder). Entries are
// reference counted and dropped once nobody holds or waits on them.
type folderLocks struct {
	mu    sync.Mutex
	locks map[folderKey]*folderLock
}

func newFolderLocks() *folderLocks {
	return &folderLocks{locks: make(map[folderKey]*folderLock)}
}

func (l *folderLocks) acquire(ctx context.Context, key folderKey) (func(), error) {
	l.mu.Lock()
	fl, ok := l.locks[key]
	if !ok {
		// The map key outlives the caller; its folder may alias a request buffer
		key.folder = strings.Clone(key.folder)
		fl = &folderLock{sem: make(chan struct{}, 1)}
		l.locks[key] = fl
	}
	fl.refs++
	l.mu.Unlock()

	select {
	case fl.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-fl.sem
				l.unref(key, fl)
			})
		}, nil
	case <-ctx.Done():
		l.unref(key, fl)
		return nil, ctx.Err()
	}
}

func (l *folderLocks) unref(key folderKey, fl *folderLock) {
	l.mu.Lock()
	fl.refs--
	if fl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

func (l *folderLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
