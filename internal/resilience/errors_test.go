package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestIsTransient_Transienter(t *testing.T) {
	if !IsTransient(&statusErr{transient: true}) {
		t.Error("expected transient")
	}
	if IsTransient(&statusErr{transient: false}) {
		t.Error("expected not transient")
	}
}

func TestIsTransient_WrappedTransienterDecides(t *testing.T) {
	// A non-transient classification wins over message heuristics.
	err := fmt.Errorf("i/o timeout: %w", &statusErr{transient: false})
	if IsTransient(err) {
		t.Error("Transienter in chain should decide")
	}
}

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_ContextErrors(t *testing.T) {
	if IsTransient(fmt.Errorf("query: %w", context.Canceled)) {
		t.Error("cancellation should not be transient")
	}
	if IsTransient(context.DeadlineExceeded) {
		t.Error("deadline should not be transient")
	}
}

func TestIsTransient_Network(t *testing.T) {
	cases := []error{
		fmt.Errorf("write tcp: %w", syscall.ECONNRESET),
		fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED),
		&net.DNSError{IsTimeout: true, Err: "timeout"},
		errors.New("read: connection reset by peer"),
	}
	for _, err := range cases {
		if !IsTransient(err) {
			t.Errorf("expected transient: %v", err)
		}
	}
}

func TestIsTransient_RegularError(t *testing.T) {
	if IsTransient(errors.New("invalid where clause")) {
		t.Error("regular error should not be transient")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("%d should be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 501} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("%d should not be transient", code)
		}
	}
}
