package nvue

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
)

// failingSeeker decodes nothing and cannot rewind
type failingSeeker struct{ io.Reader }

func (failingSeeker) Seek(int64, int) (int64, error) {
	return 0, errors.New("seek not supported")
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantJSON bool
		wantStr  string
	}{
		{name: "object", status: 200, body: `{"state": "open"}`, wantJSON: true, wantStr: `{"state":"open"}`},
		{name: "array", status: 200, body: `[1, 2]`, wantJSON: true, wantStr: `[1,2]`},
		{name: "scalar", status: 200, body: `"applied"`, wantJSON: true, wantStr: `"applied"`},
		{name: "integer above 2^53", status: 200, body: `{"counters": {"rx-bytes": 9007199254740993}}`, wantJSON: true, wantStr: `{"counters":{"rx-bytes":9007199254740993}}`},
		{name: "number text kept", status: 200, body: `[1.50, 1e3, -0]`, wantJSON: true, wantStr: `[1.50,1e3,-0]`},
		{name: "trailing whitespace", status: 200, body: "{}\n\n", wantJSON: true, wantStr: `{}`},
		{name: "plain text", status: 200, body: `OK`, wantJSON: false, wantStr: `OK`},
		{name: "trailing garbage", status: 200, body: `{"a": 1} extra`, wantJSON: false, wantStr: `{"a": 1} extra`},
		{name: "two documents", status: 200, body: `{} {}`, wantJSON: false, wantStr: `{} {}`},
		{name: "truncated", status: 200, body: `{"state": "ope`, wantJSON: false, wantStr: `{"state": "ope`},
		{name: "empty body", status: 204, body: ``, wantJSON: false, wantStr: ``},
		{name: "redirect is not an error", status: 302, body: `moved`, wantJSON: false, wantStr: `moved`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeResponse(&RawResponse{StatusCode: tt.status, Body: strings.NewReader(tt.body)})
			if err != nil {
				t.Fatalf("DecodeResponse() error = %v", err)
			}
			if resp.IsJSON() != tt.wantJSON {
				t.Errorf("IsJSON() = %v, want %v", resp.IsJSON(), tt.wantJSON)
			}
			if resp.String() != tt.wantStr {
				t.Errorf("String() = %q, want %q", resp.String(), tt.wantStr)
			}
		})
	}
}

func TestDecodeResponse_LargeIntegerMarshalsExactly(t *testing.T) {
	resp, err := DecodeResponse(&RawResponse{StatusCode: 200, Body: strings.NewReader(`{"asn": 4294967295, "id": 18446744073709551615}`)})
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if want := `{"asn":4294967295,"id":18446744073709551615}`; string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestDecodeResponse_TextFallbackReadsWholeBody(t *testing.T) {
	// The decoder buffers ahead; the fallback must still return every byte
	body := `<html>` + strings.Repeat("x", 8192) + `</html>`
	resp, err := DecodeResponse(&RawResponse{StatusCode: 200, Body: strings.NewReader(body)})
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if resp.Value() != body {
		t.Errorf("text fallback lost data: got %d bytes, want %d", len(resp.String()), len(body))
	}
}

func TestDecodeResponse_ErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		line     string
		body     string
		wantMsg  string
		wantBody string
	}{
		{
			name:     "json body",
			status:   400,
			line:     "400 Bad Request",
			body:     `{"title": "Bad Request", "detail": "bad key"}`,
			wantMsg:  `Connection error: HTTP 400 Bad Request, data: {"detail":"bad key","title":"Bad Request"}`,
			wantBody: `{"detail":"bad key","title":"Bad Request"}`,
		},
		{
			name:     "text body",
			status:   500,
			line:     "500 Internal Server Error",
			body:     `nvued crashed`,
			wantMsg:  `Connection error: HTTP 500 Internal Server Error, data: nvued crashed`,
			wantBody: `nvued crashed`,
		},
		{
			name:     "no status line",
			status:   404,
			body:     `not found`,
			wantMsg:  `Connection error: HTTP 404, data: not found`,
			wantBody: `not found`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeResponse(&RawResponse{StatusCode: tt.status, Status: tt.line, Body: strings.NewReader(tt.body)})
			if err == nil {
				t.Fatal("DecodeResponse() should fail")
			}

			var nvErr *Error
			if !errors.As(err, &nvErr) {
				t.Fatalf("error type = %T, want *Error", err)
			}
			if nvErr.Type != ErrTypeTransport {
				t.Errorf("Type = %v, want ErrTypeTransport", nvErr.Type)
			}
			if nvErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", nvErr.StatusCode, tt.status)
			}
			if nvErr.Body != tt.wantBody {
				t.Errorf("Body = %q, want %q", nvErr.Body, tt.wantBody)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestDecodeResponse_NilInputs(t *testing.T) {
	if _, err := DecodeResponse(nil); !IsShapeError(err) {
		t.Errorf("nil raw: error = %v, want shape error", err)
	}

	resp, err := DecodeResponse(&RawResponse{StatusCode: 200})
	if err != nil {
		t.Fatalf("nil body: error = %v", err)
	}
	if !resp.IsEmpty() {
		t.Errorf("nil body should decode to an empty response, got %q", resp)
	}
}

func TestDecodeResponse_RewindFailure(t *testing.T) {
	_, err := DecodeResponse(&RawResponse{StatusCode: 200, Body: failingSeeker{strings.NewReader("not json")}})
	if !IsNetworkError(err) {
		t.Errorf("error = %v, want network error", err)
	}
}

func TestResponse_Accessors(t *testing.T) {
	t.Run("state of object", func(t *testing.T) {
		resp := NewJSONResponse(map[string]any{"state": "applied"})
		if resp.State() != StateApplied || resp.StateString() != "applied" {
			t.Errorf("State() = %v / %q", resp.State(), resp.StateString())
		}
	})

	t.Run("state of text", func(t *testing.T) {
		resp := NewTextResponse("applied")
		if resp.StateString() != "" || resp.State() != StateUnknown {
			t.Errorf("text response must not carry a state")
		}
	})

	t.Run("non-string state", func(t *testing.T) {
		resp := NewJSONResponse(map[string]any{"state": 3.0})
		if resp.StateString() != "" {
			t.Errorf("StateString() = %q, want empty", resp.StateString())
		}
	})

	t.Run("empty values", func(t *testing.T) {
		for _, resp := range []*Response{
			NewJSONResponse(nil),
			NewJSONResponse(map[string]any{}),
			NewJSONResponse([]any{}),
			NewJSONResponse(""),
			NewTextResponse(""),
		} {
			if !resp.IsEmpty() {
				t.Errorf("IsEmpty() = false for %q", resp)
			}
		}
		if NewJSONResponse(0.0).IsEmpty() {
			t.Errorf("IsEmpty() = true for 0")
		}
	})

	t.Run("marshal text as string", func(t *testing.T) {
		data, err := NewTextResponse("plain").MarshalJSON()
		if err != nil {
			t.Fatalf("MarshalJSON() error = %v", err)
		}
		if string(data) != `"plain"` {
			t.Errorf("MarshalJSON() = %s", data)
		}
	})
}

func TestEscapeRevisionID(t *testing.T) {
	tests := map[string]string{
		"rev1":                       "rev1",
		"a/b":                        "a%2Fb",
		"changeset/cumulus/2024-1-1": "changeset%2Fcumulus%2F2024-1-1",
		"":                           "",
	}
	for in, want := range tests {
		if got := EscapeRevisionID(in); got != want {
			t.Errorf("EscapeRevisionID(%q) = %q, want %q", in, got, want)
		}
	}
}
