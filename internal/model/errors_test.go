package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	apiErr := NewUserNotFoundError("tourist")
	if apiErr.Code != "USER_NOT_FOUND" {
		t.Errorf("Code = %q, want %q", apiErr.Code, "USER_NOT_FOUND")
	}
	if apiErr.Category != "client" {
		t.Errorf("Category = %q, want %q", apiErr.Category, "client")
	}
	if apiErr.Action == "" {
		t.Error("Action should not be empty")
	}
	if apiErr.Error() == "" {
		t.Error("Error() should not be empty")
	}
}

func TestAPIError_ErrorsAs(t *testing.T) {
	var err error = NewSyncInProgressError()
	wrapped := fmt.Errorf("request failed: %w", err)

	var apiErr *APIError
	if !errors.As(wrapped, &apiErr) {
		t.Fatal("errors.As should unwrap *APIError")
	}
	if apiErr.Code != "SYNC_IN_PROGRESS" {
		t.Errorf("Code = %q, want %q", apiErr.Code, "SYNC_IN_PROGRESS")
	}
}

func TestCrawlError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewNetworkError(PlatformCodeforces, cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if err.Code != ErrCodeNetwork {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeNetwork)
	}
}

func TestIsTokenExpired(t *testing.T) {
	expired := NewTokenExpiredError(PlatformLuogu, "トークンが失効しています")
	if !IsTokenExpired(expired) {
		t.Error("IsTokenExpired should be true for token expired error")
	}

	wrapped := fmt.Errorf("fetch failed: %w", expired)
	if !IsTokenExpired(wrapped) {
		t.Error("IsTokenExpired should see through wrapping")
	}

	network := NewNetworkError(PlatformLuogu, errors.New("timeout"))
	if IsTokenExpired(network) {
		t.Error("IsTokenExpired should be false for network error")
	}

	if IsTokenExpired(errors.New("plain")) {
		t.Error("IsTokenExpired should be false for plain error")
	}
}

func TestNewConfigMissingError(t *testing.T) {
	err := NewConfigMissingError(PlatformHDU)
	if err.Platform != PlatformHDU {
		t.Errorf("Platform = %q, want %q", err.Platform, PlatformHDU)
	}
	if err.Code != ErrCodeConfigMissing {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeConfigMissing)
	}
}
