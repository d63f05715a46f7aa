package ingest

import (
	"fmt"
	"strings"
)

// DefaultKeyPrefix is the folder every page blob is written under.
const DefaultKeyPrefix = "metadata"

// BlobKey returns the object name for page under the default prefix.
func BlobKey(page int) string {
	return KeyFor(DefaultKeyPrefix, page)
}

// KeyFor returns "<prefix>/page=<page>.json". An empty prefix yields a top-level object.
func KeyFor(prefix string, page int) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("page=%d.json", page)
	}
	return fmt.Sprintf("%s/page=%d.json", prefix, page)
}
