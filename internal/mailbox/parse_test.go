package mailbox_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mailrag/internal/mailbox"
	"github.com/xxxsen/mailrag/internal/mailbox/mailboxtest"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

func TestParseAttachments(t *testing.T) {
	raw := mailboxtest.BuildMessage("PO Order",
		mailboxtest.File{Name: "po 1.xlsx", Content: []byte("sheet-bytes")},
		mailboxtest.File{Name: "notes.txt", Content: []byte("hello")},
	)
	parts, err := mailbox.ParseAttachments(raw)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	require.Equal(t, "po 1.xlsx", parts[0].Filename)
	require.Equal(t, []byte("sheet-bytes"), parts[0].Content)
	require.Equal(t, "notes.txt", parts[1].Filename)
}

func TestParseAttachmentsQuotedPrintableInline(t *testing.T) {
	raw := []byte("Subject: Proforma Invoice\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=b1\r\n\r\n" +
		"--b1\r\n" +
		"Content-Type: multipart/alternative; boundary=b2\r\n\r\n" +
		"--b2\r\nContent-Type: text/plain\r\n\r\nbody\r\n--b2--\r\n" +
		"--b1\r\n" +
		"Content-Type: application/pdf; name=\"pi.pdf\"\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"Content-Disposition: inline; filename=\"pi.pdf\"\r\n\r\n" +
		"a=3Db\r\n" +
		"--b1--\r\n")
	parts, err := mailbox.ParseAttachments(raw)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	require.Equal(t, "pi.pdf", parts[0].Filename)
	require.Equal(t, "a=b", string(parts[0].Content))
}

func TestParseAttachmentsMalformed(t *testing.T) {
	_, err := mailbox.ParseAttachments([]byte("Content-Type: multipart/mixed\r\n\r\nbody"))
	require.True(t, appErr.IsMalformed(err))
}

func TestParseAttachmentsPlainMessage(t *testing.T) {
	parts, err := mailbox.ParseAttachments([]byte("Subject: hi\r\n\r\njust text"))
	require.NoError(t, err)
	require.Empty(t, parts)
}
