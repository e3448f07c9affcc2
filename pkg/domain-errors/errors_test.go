package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCodeThroughWrapping(t *testing.T) {
	base := errors.New("connection reset")
	err := fmt.Errorf("commit: %w", Wrap(base, CodeUnavailable, "store unavailable"))

	assert.True(t, HasCode(err, CodeUnavailable))
	assert.False(t, HasCode(err, CodeConflict))
	assert.ErrorIs(t, err, base)
	assert.False(t, HasCode(base, CodeInternal))
}

func TestWithFieldsCopies(t *testing.T) {
	fields := map[string]string{"teamName": "ALREADY EXISTS"}
	orig := New(CodeConflict, "taken")
	withFields := orig.WithFields(fields)
	fields["teamName"] = "mutated"

	require.Nil(t, orig.Fields)
	assert.Equal(t, "ALREADY EXISTS", withFields.Fields["teamName"])
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:        http.StatusUnprocessableEntity,
		CodeConflict:          http.StatusConflict,
		CodeEncoding:          http.StatusBadRequest,
		CodeUnavailable:       http.StatusServiceUnavailable,
		CodeResourceExhausted: http.StatusTooManyRequests,
		CodeUnauthorized:      http.StatusUnauthorized,
		Code("unknown"):       http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), "code %s", code)
	}
}
