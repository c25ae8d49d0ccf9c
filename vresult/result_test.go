package vresult

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/VennDev/VOsaka/internal/errtag"
)

func TestResult_Ok(t *testing.T) {
	r := New(42, nil)
	require.True(t, r.Ok())
	require.NoError(t, r.Error())
	require.Equal(t, 42, r.Unwrap())
	require.Equal(t, 42, r.UnwrapOr(0))
}

func TestResult_Err(t *testing.T) {
	boom := errors.New("boom")
	r := New(nil, boom)
	require.False(t, r.Ok())
	require.ErrorIs(t, r.Error(), boom)
	require.Equal(t, "fallback", r.UnwrapOr("fallback"))
}

func TestResult_UnwrapPanicsOnError(t *testing.T) {
	boom := errors.New("boom")
	r := New(nil, boom)
	defer func() {
		rec := recover()
		require.NotNil(t, rec)
		err, ok := rec.(error)
		require.True(t, ok)
		require.ErrorIs(t, err, boom)
	}()
	r.Unwrap()
}

func TestResult_ExpectWrapsMessageAndCause(t *testing.T) {
	boom := errors.New("boom")
	r := New(nil, boom)
	defer func() {
		rec := recover()
		require.NotNil(t, rec)
		err, ok := rec.(error)
		require.True(t, ok)
		// errtag.ErrRuntime is the same value as vosaka.ErrRuntime, so a
		// caller holding a vosaka import classifies this panic the same way
		// without vresult ever importing vosaka itself.
		require.ErrorIs(t, err, errtag.ErrRuntime)
		require.ErrorIs(t, err, boom)
		require.Contains(t, err.Error(), "precondition")
	}()
	r.Expect("precondition")
}
