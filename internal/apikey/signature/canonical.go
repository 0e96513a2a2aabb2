package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CanonicalPayload builds the string that gets signed:
// METHOD\nPATH\nSHA256(body)\nTIMESTAMP\nNONCE. PATH excludes the query
// string; callers pass it already stripped.
func CanonicalPayload(method, path string, body []byte, timestamp int64, nonce string) string {
	return strings.Join([]string{
		strings.ToUpper(method),
		path,
		BodyHash(body),
		strconv.FormatInt(timestamp, 10),
		nonce,
	}, "\n")
}

// BodyHash hashes the request body. JSON object/array bodies are re-encoded
// with keys sorted at every level first, so semantically identical payloads
// hash identically regardless of field order. Anything else is hashed as-is.
func BodyHash(body []byte) string {
	payload := body
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err == nil {
			var b strings.Builder
			writeCanonicalJSON(&b, decoded)
			payload = []byte(b.String())
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func writeCanonicalJSON(b *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			encoded, _ := json.Marshal(k)
			b.Write(encoded)
			b.WriteByte(':')
			writeCanonicalJSON(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonicalJSON(b, item)
		}
		b.WriteByte(']')
	case nil:
		b.WriteString("null")
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			b.WriteString(fmt.Sprintf("%v", val))
			return
		}
		b.Write(encoded)
	}
}
