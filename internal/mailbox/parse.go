package mailbox

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"

	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

const maxPartDepth = 8

type Part struct {
	Filename string
	Content  []byte
}

// ParseAttachments walks a raw RFC 822 message and returns every part carrying
// a filename with an attachment (or inline) disposition, in message order.
func ParseAttachments(raw []byte) ([]Part, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: read message: %v", appErr.ErrMalformed, err)
	}
	parts := make([]Part, 0)
	if err := walkPart(textproto.MIMEHeader(msg.Header), msg.Body, &parts, 0); err != nil {
		return nil, err
	}
	return parts, nil
}

func walkPart(header textproto.MIMEHeader, body io.Reader, out *[]Part, depth int) error {
	if depth > maxPartDepth {
		return nil
	}
	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, params = "application/octet-stream", map[string]string{}
	}
	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("%w: multipart without boundary", appErr.ErrMalformed)
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%w: next part: %v", appErr.ErrMalformed, err)
			}
			if err := walkPart(part.Header, part, out, depth+1); err != nil {
				return err
			}
		}
	}
	filename := attachmentName(header, params)
	if filename == "" {
		return nil
	}
	data, err := decodeBody(header.Get("Content-Transfer-Encoding"), body)
	if err != nil {
		return fmt.Errorf("%w: decode %s: %v", appErr.ErrMalformed, filename, err)
	}
	*out = append(*out, Part{Filename: filename, Content: data})
	return nil
}

func attachmentName(header textproto.MIMEHeader, typeParams map[string]string) string {
	disposition, params, err := mime.ParseMediaType(header.Get("Content-Disposition"))
	if err != nil {
		return ""
	}
	switch strings.ToLower(disposition) {
	case "attachment":
		if name := params["filename"]; name != "" {
			return name
		}
		return typeParams["name"]
	case "inline":
		return params["filename"]
	}
	return ""
}

func decodeBody(encoding string, body io.Reader) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return io.ReadAll(base64.NewDecoder(base64.StdEncoding, body))
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(body))
	default:
		return io.ReadAll(body)
	}
}
