package derrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	err := New(CredentialsMissing, "pinecone provider requires apiKey")
	if !strings.Contains(err.Error(), "[CREDENTIALS_MISSING]") {
		t.Errorf("expected code in message, got: %s", err.Error())
	}
	if !strings.Contains(err.Error(), "requires apiKey") {
		t.Errorf("expected message text, got: %s", err.Error())
	}
}

func TestWrapAndUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(ProviderUnavailable, "pgvector init failed", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause through Unwrap")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected cause in message, got: %s", err.Error())
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"typed", New(ConfigInvalid, "bad threshold"), ConfigInvalid},
		{"wrapped in fmt", fmt.Errorf("context: %w", New(ProviderUnknown, "x")), ProviderUnknown},
		{"foreign", errors.New("plain"), InternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsConfig(t *testing.T) {
	if !IsConfig(New(CredentialsMissing, "x")) {
		t.Error("CredentialsMissing should be a config error")
	}
	if !IsConfig(fmt.Errorf("wrap: %w", New(ConfigInvalid, "x"))) {
		t.Error("wrapped ConfigInvalid should be a config error")
	}
	if IsConfig(New(DownloadFailed, "x")) {
		t.Error("DownloadFailed should not be a config error")
	}
	if IsConfig(errors.New("plain")) {
		t.Error("foreign errors should not be config errors")
	}
}
