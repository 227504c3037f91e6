package tresor

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
		kind     Kind
	}{
		{validationErr("read", "bad"), ErrValidation, KindValidation},
		{&Error{Kind: KindAuthRequired}, ErrAuthRequired, KindAuthRequired},
		{storageErr("write", errors.New("down")), ErrStorageUnavailable, KindStorageUnavailable},
		{internalErr("put", "x", nil), ErrInternal, KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			wrapped := fmt.Errorf("ctx: %w", tc.err)
			if !errors.Is(wrapped, tc.sentinel) {
				t.Fatalf("errors.Is failed for %v", tc.err)
			}
			if KindOf(wrapped) != tc.kind {
				t.Fatalf("KindOf: got %v", KindOf(wrapped))
			}
			for _, other := range []error{ErrValidation, ErrAuthRequired, ErrStorageUnavailable, ErrInternal} {
				if other != tc.sentinel && errors.Is(tc.err, other) {
					t.Fatalf("%v matched foreign sentinel %v", tc.err, other)
				}
			}
		})
	}
}

func TestErrorUnwrapAndMessage(t *testing.T) {
	base := errors.New("dial tcp")
	err := storageErr("warm", base)
	if !errors.Is(err, base) {
		t.Fatalf("cause lost")
	}
	if got := err.Error(); got != "tresor: warm: storage unavailable: dial tcp" {
		t.Fatalf("message: %q", got)
	}
	if KindOf(base) != KindInternal {
		t.Fatalf("plain errors are internal")
	}
}
