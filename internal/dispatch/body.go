package dispatch

import (
	"encoding/json"
	"net/url"
)

// ParseBody interprets a raw request body according to its Content-Type:
//
//   - application/json            → decoded JSON value; on decode failure,
//     the raw bytes are passed through unchanged.
//   - application/x-www-form-urlencoded → decoded to a flattened map.
//   - text/plain                  → decoded text.
//   - application/octet-stream, missing, or anything else → raw bytes.
func ParseBody(body []byte, contentType string) any {
	if len(body) == 0 {
		return nil
	}
	switch contentType {
	case "application/json":
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return body
		}
		return v
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return body
		}
		return FlattenQuery(values)
	case "text/plain":
		return string(body)
	default:
		return body
	}
}

// RawPayload is the sentinel value a handler returns to bypass the
// envelope entirely and have the dispatcher write Bytes verbatim with
// Mimetype as the Content-Type.
type RawPayload struct {
	Bytes    []byte
	Mimetype string
}
