package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{
			name:     "Configuration",
			err:      New(ErrConfiguration, "unknown model", nil),
			expected: ErrConfiguration,
		},
		{
			name:     "Asset",
			err:      New(ErrAsset, "bad image", nil),
			expected: ErrAsset,
		},
		{
			name:     "Transient",
			err:      New(ErrTransient, "timeout", nil),
			expected: ErrTransient,
		},
		{
			name:     "Policy",
			err:      New(ErrPolicy, "blocked", nil),
			expected: ErrPolicy,
		},
		{
			name:     "Cancelled",
			err:      New(ErrCancelled, "cancelled", context.Canceled),
			expected: ErrCancelled,
		},
		{
			name:     "WrappedWithFmt",
			err:      fmt.Errorf("submit: %w", New(ErrRateLimited, "quota", nil)),
			expected: ErrRateLimited,
		},
		{
			name:     "UnknownError",
			err:      errors.New("standard error"),
			expected: ErrUnknown,
		},
		{
			name:     "NilError",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	err := New(ErrAsset, "reference rejected", errors.New("unsupported format"))
	expected := "[ASSET_ERROR] reference rejected: unsupported format"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}

	errNoWrap := New(ErrTimeout, "poll timeout", nil)
	expectedNoWrap := "[TIMEOUT] poll timeout"
	if errNoWrap.Error() != expectedNoWrap {
		t.Errorf("Error() = %v, want %v", errNoWrap.Error(), expectedNoWrap)
	}
}

func TestIsCancelled(t *testing.T) {
	if !IsCancelled(New(ErrCancelled, "stop", nil)) {
		t.Fatalf("expected coded cancellation to be detected")
	}
	if !IsCancelled(fmt.Errorf("wait: %w", context.Canceled)) {
		t.Fatalf("expected context.Canceled to be detected")
	}
	if !IsCancelled(New(ErrUnknown, "outer", New(ErrCancelled, "inner", nil))) {
		t.Fatalf("expected nested cancellation to be detected")
	}
	if IsCancelled(New(ErrTransient, "timeout", context.DeadlineExceeded)) {
		t.Fatalf("deadline exceeded must not count as cancellation")
	}
	if IsCancelled(nil) {
		t.Fatalf("nil is not a cancellation")
	}
}

func TestIsConfiguration(t *testing.T) {
	if !IsConfiguration(fmt.Errorf("lookup: %w", New(ErrConfiguration, "unknown model", nil))) {
		t.Fatalf("expected configuration error")
	}
	if IsConfiguration(errors.New("unknown model")) {
		t.Fatalf("plain error must not be a configuration error")
	}
}
