package extract

import (
	"context"
	"fmt"
	"unicode/utf8"

	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

func init() {
	Register(".txt", ExtractorFunc(extractText))
	Register(".csv", ExtractorFunc(extractText))
}

func extractText(_ context.Context, name string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not utf-8", appErr.ErrMalformed, name)
	}
	return string(data), nil
}
