package aggregator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// MessageHash is the content identity of a message: SHA-256 of method
// followed by data, hex encoded.
func MessageHash(method, data string) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func connectionHash(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
