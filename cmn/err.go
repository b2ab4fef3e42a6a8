// Package cmn provides common constants, types, and configuration for the
// weavemesh distribution core
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package cmn

import (
	goerrors "errors"

	"github.com/pkg/errors"
)

// The core's error taxonomy. Component boundaries swallow the recoverable
// ones, converting them into a dropped frame, a disconnect, or an alert
// event. A parse error never advances a receive counter.
var (
	ErrTransport     = goerrors.New("transport I/O error")
	ErrParse         = goerrors.New("malformed frame")
	ErrSequenceGap   = goerrors.New("sequence gap")
	ErrBufferFull    = goerrors.New("buffer full")
	ErrChannelClosed = goerrors.New("channel closed")
	ErrLogin         = goerrors.New("login refused")
	ErrApplication   = goerrors.New("application callback failed")
	ErrFatal         = goerrors.New("fatal startup error")
)

func ParseErrf(format string, a ...any) error {
	return errors.WithMessagef(ErrParse, format, a...)
}

func TransportErr(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithMessage(ErrTransport, err.Error())
}

func LoginErrf(format string, a ...any) error {
	return errors.WithMessagef(ErrLogin, format, a...)
}

func FatalErrf(format string, a ...any) error {
	return errors.WithMessagef(ErrFatal, format, a...)
}

func IsErrParse(err error) bool     { return goerrors.Is(err, ErrParse) }
func IsErrTransport(err error) bool { return goerrors.Is(err, ErrTransport) }
