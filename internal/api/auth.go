/**
 * @description
 * Trigger authentication for the payout engine. Two paths are accepted and
 * both are verified before any ledger access:
 *   - the scheduled delivery signs the raw request body with HMAC-SHA256 and
 *     sends it in the X-Scheduler-Signature header (hex or base64 accepted);
 *   - operators may instead present the internal API key in the
 *     X-Internal-API-Key header for manual or emergency invocation.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256, crypto/subtle: For signature validation.
 */

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
)

const (
	schedulerSignatureHeader = "X-Scheduler-Signature"
	internalAPIKeyHeader     = "X-Internal-API-Key"
)

// isValidSchedulerSignature validates the HMAC signature over the raw body.
// A missing secret disables the scheduler path entirely rather than
// accepting unsigned requests.
func isValidSchedulerSignature(secret, signatureHeader string, body []byte) bool {
	if secret == "" {
		return false
	}

	header := strings.TrimSpace(signatureHeader)
	if strings.HasPrefix(strings.ToLower(header), "sha256=") {
		header = header[len("sha256="):]
	}
	if header == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	if decoded, err := hex.DecodeString(header); err == nil {
		if hmac.Equal(decoded, expected) {
			return true
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(header); err == nil {
		if hmac.Equal(decoded, expected) {
			return true
		}
	}
	return false
}

// isValidInternalKey checks the fallback secret-bearing header.
func isValidInternalKey(expectedKey, providedKey string) bool {
	if expectedKey == "" || providedKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedKey), []byte(providedKey)) == 1
}

// authorizeTrigger accepts either auth path for the run trigger.
func authorizeTrigger(webhookSecret, internalKey string, r *http.Request, body []byte) bool {
	if isValidSchedulerSignature(webhookSecret, r.Header.Get(schedulerSignatureHeader), body) {
		return true
	}
	return isValidInternalKey(internalKey, r.Header.Get(internalAPIKeyHeader))
}
