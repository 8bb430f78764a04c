package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := New(KindNotFound, "chunk missing")
	assert.Equal(t, "[not_found] chunk missing", err.Error())

	wrapped := Wrap(KindDependency, "embed failed", stderrors.New("connection refused"))
	assert.Contains(t, wrapped.Error(), "dependency")
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestWrapNil(t *testing.T) {
	err := Wrap(KindDependency, "x", nil)
	assert.NoError(t, err)
	// The nil must survive as a nil interface, not a typed nil that
	// callers would mistake for a failure.
	assert.True(t, err == nil)
}

func TestUnwrapChain(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(KindDependency, "save chunks", cause)

	require.ErrorIs(t, err, cause)

	// fmt %w chains still resolve the kind.
	outer := fmt.Errorf("ingest: %w", err)
	assert.Equal(t, KindDependency, KindOf(outer))
}

func TestIsMatchesByKind(t *testing.T) {
	err := NotFound("workflow", "abc")
	assert.True(t, stderrors.Is(err, New(KindNotFound, "anything")))
	assert.False(t, stderrors.Is(err, New(KindConflict, "anything")))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(stderrors.New("plain")))
	assert.Equal(t, KindConflict, KindOf(Conflict("not pending")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Timeout("step timed out")))
	assert.True(t, IsRetryable(Dependency("db", stderrors.New("locked"))))
	assert.False(t, IsRetryable(InvalidInput("bad tags")))
	assert.False(t, IsRetryable(nil))
}

func TestWithDetail(t *testing.T) {
	err := New(KindInvalidInput, "bad front-matter").
		WithDetail("path", "notes/a.md").
		WithDetail("line", "3")
	assert.Equal(t, "notes/a.md", err.Details["path"])
	assert.Equal(t, "3", err.Details["line"])
}
