package chatstore

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateChatName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty allowed", "", nil},
		{"plain", "General", nil},
		{"at limit", strings.Repeat("a", MaxChatNameLength), nil},
		{"too long", strings.Repeat("a", MaxChatNameLength+1), ErrChatNameTooLong},
		{"invalid utf8", "bad\xff", ErrChatNameInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChatName(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateChatName(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"plain", "hello", nil},
		{"empty", "", ErrMessageEmpty},
		{"whitespace only", "  \n\t", ErrMessageEmpty},
		{"at limit", strings.Repeat("x", MaxMessageLength), nil},
		{"too long", strings.Repeat("x", MaxMessageLength+1), ErrMessageTooLong},
		{"invalid utf8", "hi\xfe", ErrMessageInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateMessage() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateParticipants(t *testing.T) {
	got, err := ValidateParticipants([]string{"alice", " bob ", "alice", ""})
	if err != nil {
		t.Fatalf("ValidateParticipants() error = %v", err)
	}
	if len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Errorf("ValidateParticipants() = %v, want [alice bob]", got)
	}

	if _, err := ValidateParticipants([]string{"alice", "alice"}); !errors.Is(err, ErrTooFewParticipants) {
		t.Errorf("Expected ErrTooFewParticipants, got %v", err)
	}

	many := make([]string, MaxParticipants+1)
	for i := range many {
		many[i] = strings.Repeat("u", i+1)
	}
	if _, err := ValidateParticipants(many); !errors.Is(err, ErrTooManyParticipants) {
		t.Errorf("Expected ErrTooManyParticipants, got %v", err)
	}
}

func TestErrorCodeRoundTrip(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{ErrChatNotFound, CodeNotFound},
		{ErrNotParticipant, CodeNotParticipant},
		{ErrMessageEmpty, CodeInvalid},
		{ErrTooFewParticipants, CodeInvalid},
		{errors.New("disk on fire"), CodeInternal},
	}

	for _, tt := range tests {
		code := errorCode(tt.err)
		if code != tt.code {
			t.Errorf("errorCode(%v) = %q, want %q", tt.err, code, tt.code)
		}
		back := responseError(code, tt.err.Error())
		if back == nil {
			t.Errorf("responseError(%q) = nil", code)
		}
	}

	if !errors.Is(responseError(CodeNotFound, "x"), ErrChatNotFound) {
		t.Error("Expected not_found to map back to ErrChatNotFound")
	}
	if !errors.Is(responseError(CodeNotParticipant, "x"), ErrNotParticipant) {
		t.Error("Expected not_participant to map back to ErrNotParticipant")
	}
	var verr *ValidationError
	if !errors.As(responseError(CodeInvalid, "bad"), &verr) {
		t.Error("Expected invalid to map back to *ValidationError")
	}
	if responseError("", "") != nil {
		t.Error("Expected empty code to map to nil")
	}
}
