package atoms

import (
	stderrors "errors"

	"github.com/wippyai/wasm-hoststate/errors"
)

// Errno is the error code returned to the guest by every atoms function.
type Errno int32

const (
	ErrnoOk Errno = iota
	ErrnoInval
	ErrnoFault
	ErrnoOverflow
)

func (e Errno) Error() string {
	switch e {
	case ErrnoOk:
		return "ok"
	case ErrnoInval:
		return "inval"
	case ErrnoFault:
		return "fault"
	case ErrnoOverflow:
		return "overflow"
	default:
		return "unknown errno"
	}
}

// AliasToFloat is the result of DoubleIntReturnFloat.
type AliasToFloat = float32

// ErrnoOf maps a host error to the errno the guest sees. Errors with no
// errno mapping report false and abort the call.
func ErrnoOf(err error) (Errno, bool) {
	if err == nil {
		return ErrnoOk, true
	}
	var e Errno
	if stderrors.As(err, &e) {
		return e, true
	}
	var re *errors.Error
	if stderrors.As(err, &re) {
		switch re.Kind {
		case errors.KindOutOfBounds:
			return ErrnoFault, true
		case errors.KindInvalidInput:
			return ErrnoInval, true
		}
	}
	return 0, false
}
