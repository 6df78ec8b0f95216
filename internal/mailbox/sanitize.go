package mailbox

import (
	"mime"
	"path"
	"strings"
	"unicode"
)

var wordDecoder = new(mime.WordDecoder)

// DecodeFilename resolves RFC 2047 encoded words. Undecodable input is returned as is.
func DecodeFilename(name string) string {
	decoded, err := wordDecoder.DecodeHeader(name)
	if err != nil {
		return name
	}
	return decoded
}

// SanitizeFilename keeps [A-Za-z0-9._-]. Whitespace and path separators become
// underscores and leading dots are dropped, so the result never names a parent
// directory or a hidden file. An empty result means the name is unusable.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(DecodeFilename(name))
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			sb.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteRune('_')
		}
	}
	return strings.TrimLeft(sb.String(), ".")
}
