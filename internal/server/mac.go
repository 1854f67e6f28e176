package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const macPrefix = "hmac-sha256="

// verifyMAC checks the X-Airtable-Content-MAC header against an
// HMAC-SHA256 of the raw request body keyed with the webhook's secret.
func verifyMAC(body []byte, secretBase64, header string) bool {
	if !strings.HasPrefix(header, macPrefix) {
		return false
	}
	secret, err := base64.StdEncoding.DecodeString(secretBase64)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(header, macPrefix)))
}
