package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"unicode/utf8"
)

func TestClipBytes(t *testing.T) {
	input := []byte("hello world")
	sum := sha256.Sum256(input)

	tests := []struct {
		name      string
		max       int
		want      string
		truncated bool
	}{
		{"within limit", len(input), "hello world", false},
		{"no ceiling", 0, "hello world", false},
		{"cut", 5, "hello", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, c := clipBytes(input, tt.max)
			if string(out) != tt.want {
				t.Fatalf("out = %q, want %q", out, tt.want)
			}
			if c.Truncated != tt.truncated || c.OriginalSize != len(input) {
				t.Fatalf("clip = %+v", c)
			}
			wantHash := ""
			if tt.truncated {
				wantHash = hex.EncodeToString(sum[:])
			}
			if c.SHA256 != wantHash {
				t.Fatalf("SHA256 = %q, want %q", c.SHA256, wantHash)
			}
		})
	}

	t.Run("opaque bytes ignore rune boundaries", func(t *testing.T) {
		out, _ := clipBytes([]byte("😀😀"), 5)
		if len(out) != 5 {
			t.Fatalf("len = %d, want 5", len(out))
		}
	})
}

func TestClipString(t *testing.T) {
	t.Run("backs off to a rune boundary", func(t *testing.T) {
		out, c := clipString("😀😀", 5)
		if out != "😀" || !utf8.ValidString(out) {
			t.Fatalf("out = %q", out)
		}
		if !c.Truncated || c.OriginalSize != 8 {
			t.Fatalf("clip = %+v", c)
		}
	})

	t.Run("ascii cut is exact", func(t *testing.T) {
		out, c := clipString(`["1","1","lv:a","phx_join",{}]`, 10)
		if out != `["1","1","` || !c.Truncated {
			t.Fatalf("out = %q, clip = %+v", out, c)
		}
	})

	t.Run("ceiling smaller than the first rune", func(t *testing.T) {
		out, c := clipString("é", 1)
		if out != "" || !c.Truncated || c.OriginalSize != 2 {
			t.Fatalf("out = %q, clip = %+v", out, c)
		}
	})
}
