// Package mailboxtest provides an in-memory mailbox and a raw message builder for tests.
package mailboxtest

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/xxxsen/mailrag/internal/mailbox"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

type File struct {
	Name    string
	Content []byte
}

// BuildMessage renders a multipart/mixed message with a text body and one
// base64 attachment per file.
func BuildMessage(subject string, files ...File) []byte {
	const boundary = "mailrag-boundary"
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: supplier@example.com\r\n")
	fmt.Fprintf(&b, "To: orders@example.com\r\n")
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nplease find attached\r\n", boundary)
	for _, f := range files {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		fmt.Fprintf(&b, "Content-Type: application/octet-stream\r\n")
		fmt.Fprintf(&b, "Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n\r\n", f.Name)
		enc := base64.StdEncoding.EncodeToString(f.Content)
		for len(enc) > 76 {
			b.WriteString(enc[:76] + "\r\n")
			enc = enc[76:]
		}
		b.WriteString(enc + "\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.Bytes()
}

type message struct {
	subject string
	raw     []byte
}

// Memory is a mailbox backed by a slice in arrival order. Search matches the
// subject by case-insensitive substring.
type Memory struct {
	mu       sync.Mutex
	messages []message
	down     atomic.Bool
	fetches  atomic.Int64
	failOn   map[string]bool
	expunged map[string]bool
}

func NewMemory() *Memory {
	return &Memory{failOn: map[string]bool{}, expunged: map[string]bool{}}
}

func (m *Memory) Add(subject string, raw []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message{subject: subject, raw: raw})
	return fmt.Sprintf("%d", len(m.messages))
}

func (m *Memory) SetDown(down bool) {
	m.down.Store(down)
}

// FailFetch makes fetching id fail as if the connection dropped.
func (m *Memory) FailFetch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[id] = true
}

// Expunge makes id disappear between search and fetch.
func (m *Memory) Expunge(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expunged[id] = true
}

func (m *Memory) Fetches() int64 {
	return m.fetches.Load()
}

func (m *Memory) Opener() mailbox.Opener {
	return func(ctx context.Context) (mailbox.Mailbox, error) {
		if m.down.Load() {
			return nil, errors.New("mailbox unreachable")
		}
		return m, nil
	}
}

func (m *Memory) Search(ctx context.Context, subject string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0)
	for i, msg := range m.messages {
		if strings.Contains(strings.ToLower(msg.subject), strings.ToLower(subject)) {
			ids = append(ids, fmt.Sprintf("%d", i+1))
		}
	}
	return ids, nil
}

func (m *Memory) Fetch(ctx context.Context, id string) ([]byte, error) {
	m.fetches.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[id] {
		return nil, fmt.Errorf("%w: connection reset fetching %s", appErr.ErrTransient, id)
	}
	if m.expunged[id] {
		return nil, fmt.Errorf("%w: message %s", appErr.ErrNotFound, id)
	}
	var idx int
	if _, err := fmt.Sscanf(id, "%d", &idx); err != nil || idx < 1 || idx > len(m.messages) {
		return nil, fmt.Errorf("no message %s", id)
	}
	return m.messages[idx-1].raw, nil
}

func (m *Memory) Close() error {
	return nil
}
