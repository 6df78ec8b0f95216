package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

const defaultIMAPTimeout = 30 * time.Second

type imapConfig struct {
	Server   string `json:"server"`
	Username string `json:"username"`
	Password string `json:"password"`
	Folder   string `json:"folder"`
	Timeout  int    `json:"timeout"`
}

type imapMailbox struct {
	c *client.Client
}

func init() {
	Register("imap", createIMAPOpener)
}

func createIMAPOpener(args interface{}) (Opener, error) {
	cfg := &imapConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Server == "" {
		cfg.Server = "imap.gmail.com:993"
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("%w: imap username/password are required", appErr.ErrConfig)
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	timeout := defaultIMAPTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return func(ctx context.Context) (Mailbox, error) {
		return dialIMAP(ctx, cfg, timeout)
	}, nil
}

func dialIMAP(ctx context.Context, cfg *imapConfig, timeout time.Duration) (Mailbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	host, _, err := net.SplitHostPort(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("%w: imap server %q: %v", appErr.ErrConfig, cfg.Server, err)
	}
	dialer := &net.Dialer{Timeout: timeout}
	c, err := client.DialWithDialerTLS(dialer, cfg.Server, &tls.Config{ServerName: host})
	if err != nil {
		return nil, fmt.Errorf("%w: imap dial %s: %v", appErr.ErrTransient, cfg.Server, err)
	}
	c.Timeout = timeout
	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("%w: imap login: %v", appErr.ErrConfig, err)
	}
	if _, err := c.Select(cfg.Folder, true); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("%w: imap select %s: %v", appErr.ErrTransient, cfg.Folder, err)
	}
	logutil.GetLogger(ctx).Debug("imap session opened", zap.String("server", cfg.Server), zap.String("folder", cfg.Folder))
	return &imapMailbox{c: c}, nil
}

func (m *imapMailbox) Search(ctx context.Context, subject string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Subject", subject)
	uids, err := m.c.UidSearch(criteria)
	if err != nil {
		return nil, err
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

func (m *imapMailbox) Fetch(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: imap uid %q", appErr.ErrInvalid, id)
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.c.UidFetch(seqset, items, messages)
	}()
	var raw []byte
	var readErr error
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil || readErr != nil {
			continue
		}
		raw, readErr = io.ReadAll(body)
	}
	if err := <-done; err != nil {
		return nil, m.fetchErr(id, err)
	}
	if readErr != nil {
		return nil, m.fetchErr(id, readErr)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: imap message %s has no body", appErr.ErrNotFound, id)
	}
	return raw, nil
}

// fetchErr marks the error transient when the session is gone, so the caller
// stops instead of failing every remaining message the same way.
func (m *imapMailbox) fetchErr(id string, err error) error {
	var netErr net.Error
	if m.c.State() == imap.LogoutState || errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: imap fetch %s: %v", appErr.ErrTransient, id, err)
	}
	return fmt.Errorf("imap fetch %s: %w", id, err)
}

func (m *imapMailbox) Close() error {
	return m.c.Logout()
}
