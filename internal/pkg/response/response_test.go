package response

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mailrag/internal/pkg/errcode"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{err: fmt.Errorf("%w: receipts", appErr.ErrUnknownClass), code: errcode.ErrUnknownClass},
		{err: fmt.Errorf("%w: query is empty", appErr.ErrInvalid), code: errcode.ErrInvalid},
		{err: fmt.Errorf("sync po_dump: %w", fmt.Errorf("%w: imap dial", appErr.ErrTransient)), code: errcode.ErrTransient},
		{err: errors.Join(appErr.ErrDimensionMismatch), code: errcode.ErrDimensionMismatch},
		{err: appErr.ErrUnavailable, code: errcode.ErrAIUnavailable},
		{err: appErr.ErrConfig, code: errcode.ErrConfig},
		{err: appErr.ErrNotFound, code: errcode.ErrNotFound},
		{err: context.DeadlineExceeded, code: errcode.ErrInternal},
	}
	for _, tt := range tests {
		code, msg := Classify(tt.err)
		require.Equal(t, tt.code, code, tt.err.Error())
		require.NotEmpty(t, msg)
	}
}
