// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package coderr

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestErrorStack(t *testing.T) {
	r := require.New(t)
	cerr := NewCodeError(Internal, "test internal error")
	err := cerr.WithCausef("failed reason:%s", "for test")
	errDesc := fmt.Sprintf("%s", err)
	expectErrDesc := "tabletmeta/pkg/coderr/error_test.go:"

	r.True(strings.Contains(errDesc, expectErrDesc), "actual errDesc:%s", errDesc)
}

func TestIsWrapped(t *testing.T) {
	r := require.New(t)
	cerr := NewCodeError(NotFound, "node not found")
	err := errors.WithMessage(cerr.WithCausef("key:%s", "/meta/leader"), "load leader")

	r.True(Is(err, NotFound))
	r.False(Is(err, Internal))

	cause, ok := GetCause(err)
	r.True(ok)
	r.Equal("node not found", cause.Desc())
}
