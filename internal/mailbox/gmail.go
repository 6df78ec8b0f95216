package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

const (
	googleAuthURL   = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL  = "https://oauth2.googleapis.com/token"
	defaultMaxScan  = 500
	gmailPageSize   = 100
	gmailDefaultUID = "me"
)

type gmailConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	User         string `json:"user"`
	MaxScan      int    `json:"max_scan"`
}

type gmailMailbox struct {
	srv     *gmail.Service
	user    string
	maxScan int
}

var errScanLimit = errors.New("scan limit reached")

func init() {
	Register("gmail", createGmailOpener)
}

func createGmailOpener(args interface{}) (Opener, error) {
	cfg := &gmailConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, fmt.Errorf("%w: gmail client_id/client_secret/refresh_token are required", appErr.ErrConfig)
	}
	if cfg.User == "" {
		cfg.User = gmailDefaultUID
	}
	if cfg.MaxScan <= 0 {
		cfg.MaxScan = defaultMaxScan
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  googleAuthURL,
			TokenURL: googleTokenURL,
		},
		Scopes: []string{gmail.GmailReadonlyScope},
	}
	return func(ctx context.Context) (Mailbox, error) {
		ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
		srv, err := gmail.NewService(ctx, option.WithTokenSource(ts))
		if err != nil {
			return nil, fmt.Errorf("%w: gmail service: %v", appErr.ErrTransient, err)
		}
		return &gmailMailbox{srv: srv, user: cfg.User, maxScan: cfg.MaxScan}, nil
	}, nil
}

// Search pages through the newest maxScan matches. Gmail lists newest first,
// so the ids are reversed into arrival order before returning.
func (m *gmailMailbox) Search(ctx context.Context, subject string) ([]string, error) {
	ids := make([]string, 0)
	call := m.srv.Users.Messages.List(m.user).
		Q(fmt.Sprintf("subject:%q", subject)).
		MaxResults(gmailPageSize)
	err := call.Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		for _, msg := range resp.Messages {
			ids = append(ids, msg.Id)
			if len(ids) >= m.maxScan {
				return errScanLimit
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errScanLimit) {
		return nil, err
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids, nil
}

func (m *gmailMailbox) Fetch(ctx context.Context, id string) ([]byte, error) {
	msg, err := m.srv.Users.Messages.Get(m.user, id).Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, gmailFetchErr(id, err)
	}
	raw, err := base64.URLEncoding.DecodeString(msg.Raw)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(msg.Raw)
		if err != nil {
			return nil, fmt.Errorf("%w: gmail raw body of %s: %v", appErr.ErrMalformed, id, err)
		}
	}
	return raw, nil
}

// gmailFetchErr keeps 404s and other 4xx answers scoped to the message.
// Server errors, throttling and transport failures are transient.
func gmailFetchErr(id string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusNotFound:
			return fmt.Errorf("%w: gmail message %s", appErr.ErrNotFound, id)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: gmail fetch %s: %v", appErr.ErrTransient, id, err)
		default:
			return fmt.Errorf("gmail fetch %s: %w", id, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: gmail fetch %s: %v", appErr.ErrTransient, id, err)
}

func (m *gmailMailbox) Close() error {
	return nil
}
