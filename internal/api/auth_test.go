package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestIsValidSchedulerSignature(t *testing.T) {
	body := []byte(`{"source":"scheduler"}`)
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	tests := []struct {
		name      string
		secret    string
		signature string
		want      bool
	}{
		{name: "valid hex signature", secret: "secret", signature: valid, want: true},
		{name: "valid with sha256 prefix", secret: "secret", signature: "sha256=" + valid, want: true},
		{name: "wrong secret", secret: "other", signature: valid, want: false},
		{name: "empty signature", secret: "secret", signature: "", want: false},
		{name: "garbage signature", secret: "secret", signature: "zzzz", want: false},
		{name: "unconfigured secret rejects everything", secret: "", signature: valid, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidSchedulerSignature(tt.secret, tt.signature, body); got != tt.want {
				t.Fatalf("expected %t, got %t", tt.want, got)
			}
		})
	}
}

func TestIsValidInternalKey(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		provided string
		want     bool
	}{
		{name: "matching key", expected: "k1", provided: "k1", want: true},
		{name: "wrong key", expected: "k1", provided: "k2", want: false},
		{name: "empty provided key", expected: "k1", provided: "", want: false},
		{name: "unconfigured key rejects everything", expected: "", provided: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidInternalKey(tt.expected, tt.provided); got != tt.want {
				t.Fatalf("expected %t, got %t", tt.want, got)
			}
		})
	}
}
