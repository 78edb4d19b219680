package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"plain", ErrSweepRunning, "sweep_running: A sweep pass is already running"},
		{"with internal", ErrStore.WithInternal(errors.New("connection reset")), "store_error: Store operation failed (connection reset)"},
		{"custom message", NewBadRequest("empty submission"), "bad_request: empty submission"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_CopiesLeaveSentinelUntouched(t *testing.T) {
	cause := errors.New("boom")
	got := ErrMissingType.WithInternal(cause).WithMessage("node _:b has no type").WithDetails(map[string]any{"node": "_:b"})

	assert.Equal(t, http.StatusUnprocessableEntity, got.HTTPStatus)
	assert.Equal(t, "missing_type", got.Code)
	assert.Equal(t, "node _:b has no type", got.Message)
	assert.Equal(t, "_:b", got.Details["node"])
	assert.ErrorIs(t, got, cause)

	assert.Nil(t, ErrMissingType.Internal)
	assert.Nil(t, ErrMissingType.Details)
	assert.Equal(t, "Resource has no rdf:type", ErrMissingType.Message)
}

func TestNewInternal(t *testing.T) {
	cause := errors.New("disk full")
	err := NewInternal("commit failed", cause)

	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
	assert.Equal(t, "internal_error", err.Code)
	assert.ErrorIs(t, err, cause)
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err    *Error
		status int
		code   string
	}{
		{ErrBadRequest, http.StatusBadRequest, "bad_request"},
		{ErrMissingType, http.StatusUnprocessableEntity, "missing_type"},
		{ErrMalformedQuery, http.StatusBadRequest, "malformed_query"},
		{ErrDuplicateRecords, http.StatusInternalServerError, "duplicate_records"},
		{ErrSweepRunning, http.StatusConflict, "sweep_running"},
		{ErrUnknownTenant, http.StatusNotFound, "unknown_tenant"},
		{ErrInternal, http.StatusInternalServerError, "internal_error"},
		{ErrStore, http.StatusInternalServerError, "store_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestMatch(t *testing.T) {
	errMissing := errors.New("missing type")
	errDup := errors.New("duplicate records")
	rules := []Rule{
		{Target: errMissing, Err: ErrMissingType},
		{Target: errDup, Err: ErrDuplicateRecords},
	}

	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, Match(nil, rules...))
	})

	t.Run("wrapped sentinel", func(t *testing.T) {
		err := fmt.Errorf("assign identifiers: %w", errMissing)
		got := Match(err, rules...)
		require.NotNil(t, got)
		assert.Equal(t, "missing_type", got.Code)
		assert.Equal(t, err.Error(), got.Message)
		assert.ErrorIs(t, got, errMissing)
	})

	t.Run("first rule wins", func(t *testing.T) {
		got := Match(errors.Join(errDup, errMissing), rules...)
		assert.Equal(t, "missing_type", got.Code)
	})

	t.Run("app error passes through", func(t *testing.T) {
		got := Match(fmt.Errorf("sweep: %w", ErrSweepRunning), rules...)
		assert.Same(t, ErrSweepRunning, got)
	})

	t.Run("unknown is internal", func(t *testing.T) {
		cause := errors.New("whatever")
		got := Match(cause, rules...)
		assert.Equal(t, "internal_error", got.Code)
		assert.ErrorIs(t, got, cause)
	})
}
