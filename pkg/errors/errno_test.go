package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeCode(t *testing.T) {
	tests := []struct {
		service  int
		category int
		sequence int
		expected int
	}{
		{0, 0, 0, 0},
		{0, 1, 1, 1001},
		{21, 1, 3, 2101003},
		{94, 6, 1, 9406001},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d_%d", tt.service, tt.category, tt.sequence), func(t *testing.T) {
			got := MakeCode(tt.service, tt.category, tt.sequence)
			assert.Equal(t, tt.expected, got)

			s, c, q := ParseCode(got)
			assert.Equal(t, tt.service, s)
			assert.Equal(t, tt.category, c)
			assert.Equal(t, tt.sequence, q)
		})
	}
}

func TestErrnoWithCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := ErrExtractionFailed.WithCause(cause)

	assert.True(t, stderrors.Is(err, ErrExtractionFailed))
	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "disk full")
	assert.Nil(t, ErrExtractionFailed.Unwrap(), "the registered value must stay untouched")
}

func TestFromErrorFindsWrappedErrno(t *testing.T) {
	wrapped := fmt.Errorf("load budget.pdf: %w", ErrFileTooLarge.WithMessage("budget.pdf is 70 MB"))

	e := FromError(wrapped)
	require.NotNil(t, e)
	assert.Equal(t, ErrFileTooLarge.Code, e.Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, e.HTTPStatus())
	assert.True(t, IsCode(wrapped, ErrFileTooLarge.Code))

	plain := FromError(stderrors.New("boom"))
	assert.Equal(t, ErrInternal.Code, plain.Code)
	assert.Nil(t, FromError(nil))
	assert.Equal(t, -1, GetCode(stderrors.New("boom")))
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, ErrLLMRateLimited.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, (&Errno{}).HTTPStatus())

	assert.True(t, IsClientError(ErrCorruptFile.Code))
	assert.True(t, IsServerError(ErrDimensionMismatch.Code))
}

func TestMessageLanguage(t *testing.T) {
	assert.Equal(t, "文件过大", ErrFileTooLarge.Message("zh-CN"))
	assert.Equal(t, "文件过大", ErrFileTooLarge.Message("ZH"))
	assert.Equal(t, "File too large", ErrFileTooLarge.Message("en"))
	assert.Equal(t, "Success", New(1, 200, "Success", "").Message("zh"))
}

func TestRegisterDuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		Register(New(ErrCorruptFile.Code, 400, "dup", "重复"))
	})

	e, ok := Lookup(ErrCorruptFile.Code)
	require.True(t, ok)
	assert.Equal(t, "Corrupt or unreadable PDF", e.MessageEN)
}
