package observer

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/dgnsrekt/phx_devtools/internal/types"
)

const timestampLayout = "15:04:05.000"

// fold lowercases s and strips combining marks, so "Café" and "cafe" match.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// searchTerms splits a query into folded, space-separated terms.
func searchTerms(query string) []string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, fold(f))
	}
	return terms
}

// searchBlob is the folded text a message is searched in.
func searchBlob(msg types.Message, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(msg.Method)
	b.WriteByte(' ')
	b.WriteString(msg.Data)
	b.WriteByte(' ')
	b.WriteString(string(msg.Type))
	b.WriteByte(' ')
	b.WriteString(string(msg.Direction))
	b.WriteByte(' ')
	if msg.IsPhoenix {
		b.WriteString("phoenix ")
	}
	b.WriteString(strconv.FormatBool(msg.IsPhoenix))
	b.WriteByte(' ')
	b.WriteString(time.UnixMilli(msg.Timestamp).In(loc).Format(timestampLayout))
	if pretty := indentJSON(msg.Data); pretty != "" {
		b.WriteByte(' ')
		b.WriteString(pretty)
	}
	return fold(b.String())
}

// matches reports whether every term occurs in blob.
func matches(blob string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(blob, term) {
			return false
		}
	}
	return true
}

func indentJSON(data string) string {
	if !json.Valid([]byte(data)) {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(data), "", "  "); err != nil {
		return ""
	}
	return buf.String()
}
