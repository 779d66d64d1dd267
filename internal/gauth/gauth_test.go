package gauth

import (
	"errors"
	"fmt"
	"testing"

	"email_forwarder/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestClassify(t *testing.T) {
	t.Run("forbidden becomes permanent permission error", func(t *testing.T) {
		err := Classify("sheet-1", fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 403, Message: "denied"}))

		assert.True(t, retry.IsPermanent(err))
		var perm *PermissionError
		require.True(t, errors.As(err, &perm))
		assert.Equal(t, "sheet-1", perm.Resource)
		assert.Equal(t, 403, perm.StatusCode)
	})

	t.Run("not found is permanent but not a permission error", func(t *testing.T) {
		err := Classify("sheet-1", &googleapi.Error{Code: 404})

		assert.True(t, retry.IsPermanent(err))
		var perm *PermissionError
		assert.False(t, errors.As(err, &perm))
	})

	t.Run("rate limit and server errors stay retryable", func(t *testing.T) {
		assert.False(t, retry.IsPermanent(Classify("x", &googleapi.Error{Code: 429})))
		assert.False(t, retry.IsPermanent(Classify("x", &googleapi.Error{Code: 503})))
	})

	t.Run("non api errors pass through", func(t *testing.T) {
		plain := errors.New("connection reset")
		assert.Equal(t, plain, Classify("x", plain))
		assert.Nil(t, Classify("x", nil))
	})
}
