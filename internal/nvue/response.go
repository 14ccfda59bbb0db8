package nvue

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// RawResponse is the result of one round trip through a Connection.
// Body must be seekable: the decoder rewinds it when the JSON parse fails.
type RawResponse struct {
	StatusCode int
	Status     string
	Body       io.ReadSeeker
}

// IsError reports whether the HTTP outcome is a failure
func (r *RawResponse) IsError() bool {
	return r.StatusCode >= 400
}

// Response is a decoded API response: either a JSON value (object, array or
// scalar) or the raw text of a body that is not valid JSON.
type Response struct {
	value  any
	text   string
	isText bool
}

// NewJSONResponse wraps an already decoded JSON value
func NewJSONResponse(v any) *Response {
	return &Response{value: v}
}

// NewTextResponse wraps a body that is not JSON
func NewTextResponse(s string) *Response {
	return &Response{text: s, isText: true}
}

// IsJSON reports whether the body was decoded as JSON
func (r *Response) IsJSON() bool {
	return !r.isText
}

// Value returns the decoded JSON value, or the raw text as a string
func (r *Response) Value() any {
	if r.isText {
		return r.text
	}
	return r.value
}

// Object returns the value as a JSON object
func (r *Response) Object() (map[string]any, bool) {
	if r.isText {
		return nil, false
	}
	obj, ok := r.value.(map[string]any)
	return obj, ok
}

// StateString returns the "state" field of an object response, or "".
func (r *Response) StateString() string {
	obj, ok := r.Object()
	if !ok {
		return ""
	}
	s, _ := obj["state"].(string)
	return s
}

// State returns the revision state carried by the response
func (r *Response) State() RevisionState {
	return ParseRevisionState(r.StateString())
}

// IsEmpty reports whether the response carries no data (null, {}, [], "" or empty text)
func (r *Response) IsEmpty() bool {
	if r.isText {
		return r.text == ""
	}
	switch v := r.value.(type) {
	case nil:
		return true
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case string:
		return v == ""
	default:
		return false
	}
}

// MarshalJSON emits the JSON value, or the text as a JSON string
func (r *Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Value())
}

// String renders the response for messages: compact JSON or the raw text
func (r *Response) String() string {
	if r.isText {
		return r.text
	}
	data, err := json.Marshal(r.value)
	if err != nil {
		return fmt.Sprintf("%v", r.value)
	}
	return string(data)
}

// DecodeResponse normalizes a raw transport result. A body that is not a single
// valid JSON document is returned as text. An HTTP error outcome becomes a
// transport *Error embedding the status and the decoded or raw body.
func DecodeResponse(raw *RawResponse) (*Response, error) {
	if raw == nil {
		return nil, NewShapeError("connection returned no response")
	}

	resp, err := decodeBody(raw.Body)
	if err != nil {
		return nil, err
	}

	if raw.IsError() {
		return nil, NewTransportError(raw.StatusCode, raw.Status, resp.String())
	}

	return resp, nil
}

func decodeBody(body io.ReadSeeker) (*Response, error) {
	if body == nil {
		return NewTextResponse(""), nil
	}

	dec := json.NewDecoder(body)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err == nil {
		// Anything but whitespace after the first value makes the body non-JSON
		if _, err := dec.Token(); errors.Is(err, io.EOF) {
			return NewJSONResponse(v), nil
		}
	}

	// The failed parse may have consumed the stream
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return nil, &Error{Type: ErrTypeNetwork, Message: "failed to rewind response body", Err: err}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &Error{Type: ErrTypeNetwork, Message: "failed to read response body", Err: err}
	}

	return NewTextResponse(string(data)), nil
}
