package mailbox_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mailrag/internal/config"
	"github.com/xxxsen/mailrag/internal/mailbox"
	"github.com/xxxsen/mailrag/internal/mailbox/mailboxtest"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

func TestEMLDirMailbox(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	write := func(name, subject string) {
		raw := mailboxtest.BuildMessage(subject, mailboxtest.File{Name: name + ".pdf", Content: []byte(name)})
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".eml"), raw, 0o644))
	}
	write("002", "Re: Proforma Invoice 17")
	write("001", "proforma invoice 16")
	write("003", "Lunch")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	open, err := mailbox.NewOpener(config.MailboxConfig{Type: "eml_dir", Data: map[string]interface{}{"dir": dir}})
	require.NoError(t, err)
	mb, err := open(ctx)
	require.NoError(t, err)
	defer mb.Close()

	ids, err := mb.Search(ctx, "Proforma Invoice")
	require.NoError(t, err)
	require.Equal(t, []string{"001.eml", "002.eml"}, ids)

	raw, err := mb.Fetch(ctx, ids[1])
	require.NoError(t, err)
	parts, err := mailbox.ParseAttachments(raw)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	require.Equal(t, "002.pdf", parts[0].Filename)

	_, err = mb.Fetch(ctx, "../003.eml")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestNewOpenerErrors(t *testing.T) {
	_, err := mailbox.NewOpener(config.MailboxConfig{Type: "pop3", Data: map[string]interface{}{}})
	require.ErrorIs(t, err, appErr.ErrConfig)

	_, err = mailbox.NewOpener(config.MailboxConfig{Type: "imap", Data: map[string]interface{}{"server": "imap.example.com:993"}})
	require.ErrorIs(t, err, appErr.ErrConfig)

	open, err := mailbox.NewOpener(config.MailboxConfig{Type: "eml_dir", Data: map[string]interface{}{"dir": filepath.Join(t.TempDir(), "missing")}})
	require.NoError(t, err)
	_, err = open(context.Background())
	require.True(t, appErr.IsTransient(err))
}
