package pkg

import (
	"testing"

	"github.com/pkg/errors"
)

func TestErrorsAreDistinct(t *testing.T) {
	errs := []error{
		ErrChannelClosed,
		ErrProtocol,
		ErrBufferTooSmall,
		ErrShortFrame,
		ErrInvalidParameter,
		ErrInvalidVersion,
		ErrAlreadyStarted,
		ErrBusy,
		ErrNotSupported,
		ErrNoTransport,
	}

	for i, a := range errs {
		for j, b := range errs {
			if i != j && errors.Is(a, b) {
				t.Errorf("errs[%d] and errs[%d] are not distinct: %v", i, j, a)
			}
		}
	}
}

func TestWrappedErrorsUnwrap(t *testing.T) {
	wrapped := errors.Wrap(ErrChannelClosed, "transact")
	if !errors.Is(wrapped, ErrChannelClosed) {
		t.Errorf("wrapped error does not match ErrChannelClosed: %v", wrapped)
	}

	wrapped = errors.Wrapf(ErrInvalidParameter, "block length %d", 100)
	if !errors.Is(wrapped, ErrInvalidParameter) {
		t.Errorf("wrapped error does not match ErrInvalidParameter: %v", wrapped)
	}
}
