package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// ChecksumHeader carries the gateway's signature of the callback body
const ChecksumHeader = "QuickPay-Checksum-Sha256"

// ComputeChecksum returns the lower-case hex HMAC-SHA256 of body keyed by key
func ComputeChecksum(body []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyChecksum compares the submitted checksum against the exact raw bytes received.
// The comparison is constant-time and byte-for-byte.
func VerifyChecksum(body []byte, key, submitted string) bool {
	if submitted == "" {
		return false
	}
	expected := ComputeChecksum(body, key)
	return hmac.Equal([]byte(expected), []byte(submitted))
}
