package storage

import (
	"net/url"
	"strconv"
	"strings"
)

// TransformURLToPathSegment transforms a URL path into a filesystem-safe path segment.
func TransformURLToPathSegment(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	path := strings.TrimPrefix(parsed.Path, "/")
	if path == "" {
		return "root", nil
	}
	path = strings.TrimSuffix(path, "/")
	path = strings.ReplaceAll(path, "/", "_")
	return path, nil
}

// BrowserIDFromTargetID returns the first 8 chars of a CDP target ID.
func BrowserIDFromTargetID(targetID string) string {
	if len(targetID) >= 8 {
		return targetID[:8]
	}
	return targetID
}

// TabDir names the archive directory of a tab. Untagged traffic goes to
// "untagged".
func TabDir(tabID int) string {
	if tabID <= 0 {
		return "untagged"
	}
	return "tab-" + strconv.Itoa(tabID)
}

// KeyFilename maps a storage key onto a file name, replacing anything that
// is not a letter, digit, dash or underscore.
func KeyFilename(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "_.json"
	}
	return b.String() + ".json"
}
