package wire

import (
	"crypto/hmac"
	"crypto/sha256"

	"tuyalink/pkg/tuyaerr"
)

func hmacSHA256(key, data []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, key)
	if _, err := mac.Write(data); err != nil {
		return nil, tuyaerr.Wrap(tuyaerr.CodeKeyOrVersion, "ENCRYPTION_FAILED", err)
	}
	return mac.Sum(nil), nil
}

func hmacEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}
