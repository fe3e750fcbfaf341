// Package envelope implements the wire envelope codec shared by every
// non-raw TARP response.
//
// A success envelope is {status, mimetype, result}; an error envelope is
// {status, type, message}. Any raw byte slice reachable inside result —
// whether it is the result itself or nested under a map/slice leaf — is
// rewritten to its base64 text on the wire; encoding/json already applies
// that rule to every []byte it marshals, at any depth, so Success needs no
// manual tree walk to satisfy it. Decoding is the inverse-free direction:
// callers read status and mimetype/result (or type/message) straight off
// the struct; byte payloads inside RPC results are handled by the RPC
// layer's own opaque encoding, not reversed here.
package envelope

import (
	"encoding/json"

	"github.com/tarp-project/tarp/internal/tarperrs"
)

// Envelope is the single wire shape for every JSON response body TARP
// writes, success or error.
//
// A success envelope always carries both mimetype and result on the
// wire, even when result is nil — a handler returning nothing still
// serializes as `"result":null`, not as an absent key. Go's struct-tag
// `omitempty` cannot express that (a nil `any` and an "omit this field"
// request are the same zero value), so Envelope implements MarshalJSON
// directly instead of relying on field tags for Result.
type Envelope struct {
	Status   string `json:"status"`
	Mimetype string `json:"mimetype,omitempty"`
	Result   any    `json:"result,omitempty"`
	Type     string `json:"type,omitempty"`
	Message  string `json:"message,omitempty"`
}

// MarshalJSON emits {status, mimetype, result} for a success envelope
// (result present and literal null when nil) and {status, type, message}
// for an error envelope, with no result key at all.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Status == "success" {
		return json.Marshal(struct {
			Status   string `json:"status"`
			Mimetype string `json:"mimetype"`
			Result   any    `json:"result"`
		}{Status: e.Status, Mimetype: e.Mimetype, Result: e.Result})
	}
	return json.Marshal(struct {
		Status  string `json:"status"`
		Type    string `json:"type,omitempty"`
		Message string `json:"message,omitempty"`
	}{Status: e.Status, Type: e.Type, Message: e.Message})
}

// Success builds a success envelope around result.
func Success(result any, mimetype string) Envelope {
	return Envelope{
		Status:   "success",
		Mimetype: mimetype,
		Result:   result,
	}
}

// Error builds an error envelope with the given discriminator kind.
func Error(message string, kind tarperrs.Kind) Envelope {
	return Envelope{
		Status:  "error",
		Type:    string(kind),
		Message: message,
	}
}
