package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ContentType is attached to every uploaded page.
const ContentType = "application/json"

// EncodeBatch renders batch as JSON indented by two spaces. Strings are copied
// byte for byte, so non-ASCII text and HTML characters stay literal.
func EncodeBatch(batch Batch) ([]byte, error) {
	raw := bytes.TrimSpace(batch)
	if len(raw) == 0 {
		return nil, fmt.Errorf("encode batch: empty page")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	return buf.Bytes(), nil
}
