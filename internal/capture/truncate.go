package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"unicode/utf8"
)

// clip describes a payload cut to a byte ceiling. OriginalSize is always
// set; SHA256 covers the original and is only set when Truncated.
type clip struct {
	Truncated    bool
	OriginalSize int
	SHA256       string
}

func newClip(in []byte, kept int) clip {
	c := clip{OriginalSize: len(in)}
	if kept < len(in) {
		sum := sha256.Sum256(in)
		c.Truncated = true
		c.SHA256 = hex.EncodeToString(sum[:])
	}
	return c
}

// clipBytes cuts opaque bytes at exactly maxBytes. maxBytes <= 0 disables
// the ceiling.
func clipBytes(in []byte, maxBytes int) ([]byte, clip) {
	if maxBytes <= 0 || len(in) <= maxBytes {
		return in, newClip(in, len(in))
	}
	return in[:maxBytes], newClip(in, maxBytes)
}

// clipText cuts valid UTF-8 at the last rune boundary within maxBytes so
// the kept prefix stays valid text.
func clipText(in []byte, maxBytes int) ([]byte, clip) {
	if maxBytes <= 0 || len(in) <= maxBytes {
		return in, newClip(in, len(in))
	}
	n := maxBytes
	for n > 0 && !utf8.RuneStart(in[n]) {
		n--
	}
	return in[:n], newClip(in, n)
}

func clipString(in string, maxBytes int) (string, clip) {
	out, c := clipText([]byte(in), maxBytes)
	return string(out), c
}
