package nvuemock

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode %s: %v", s, err)
	}
	return v
}

// Cases from RFC 7396 appendix A
func TestMergePatch(t *testing.T) {
	tests := []struct {
		target string
		patch  string
		want   string
	}{
		{`{"a":"b"}`, `{"a":"c"}`, `{"a":"c"}`},
		{`{"a":"b"}`, `{"b":"c"}`, `{"a":"b","b":"c"}`},
		{`{"a":"b"}`, `{"a":null}`, `{}`},
		{`{"a":"b","b":"c"}`, `{"a":null}`, `{"b":"c"}`},
		{`{"a":["b"]}`, `{"a":"c"}`, `{"a":"c"}`},
		{`{"a":"c"}`, `{"a":["b"]}`, `{"a":["b"]}`},
		{`{"a":{"b":"c"}}`, `{"a":{"b":"d","c":null}}`, `{"a":{"b":"d"}}`},
		{`{"a":[{"b":"c"}]}`, `{"a":[1]}`, `{"a":[1]}`},
		{`["a","b"]`, `["c","d"]`, `["c","d"]`},
		{`{"a":"b"}`, `["c"]`, `["c"]`},
		{`{"a":"foo"}`, `null`, `null`},
		{`{"a":"foo"}`, `"bar"`, `"bar"`},
		{`{"e":null}`, `{"a":1}`, `{"e":null,"a":1}`},
		{`[1,2]`, `{"a":"b","c":null}`, `{"a":"b"}`},
		{`{}`, `{"a":{"bb":{"ccc":null}}}`, `{"a":{"bb":{}}}`},
	}

	for _, tt := range tests {
		got := MergePatch(decode(t, tt.target), decode(t, tt.patch))
		if diff := cmp.Diff(decode(t, tt.want), got); diff != "" {
			t.Errorf("MergePatch(%s, %s) mismatch (-want +got):\n%s", tt.target, tt.patch, diff)
		}
	}
}

func TestComposePatch_KeepsDeletes(t *testing.T) {
	acc := composePatch(nil, decode(t, `{"router":{"bgp":{"enable":"on"}}}`).(map[string]any))
	acc = composePatch(acc, decode(t, `{"router":{"ospf":null,"bgp":{"autonomous-system":65001}}}`).(map[string]any))

	want := decode(t, `{"router":{"ospf":null,"bgp":{"enable":"on","autonomous-system":65001}}}`)
	if diff := cmp.Diff(want, any(acc)); diff != "" {
		t.Errorf("composePatch mismatch (-want +got):\n%s", diff)
	}

	applied := MergePatch(decode(t, `{"router":{"ospf":{"enable":"on"}}}`), acc)
	if diff := cmp.Diff(decode(t, `{"router":{"bgp":{"enable":"on","autonomous-system":65001}}}`), applied); diff != "" {
		t.Errorf("commit mismatch (-want +got):\n%s", diff)
	}
}

func TestReplayPatches_NullThenObject(t *testing.T) {
	target := decode(t, `{"a":{"b":1,"c":2},"keep":true}`).(map[string]any)
	patches := []map[string]any{
		decode(t, `{"a":null}`).(map[string]any),
		decode(t, `{"a":{"d":3}}`).(map[string]any),
	}

	got := replayPatches(target, patches)
	if diff := cmp.Diff(decode(t, `{"a":{"d":3},"keep":true}`), any(got)); diff != "" {
		t.Errorf("replayPatches mismatch (-want +got):\n%s", diff)
	}
}

func TestDeepCopy_DoesNotAlias(t *testing.T) {
	orig := decode(t, `{"a":{"b":[1,{"c":2}]}}`).(map[string]any)
	cp := deepCopy(orig).(map[string]any)

	cp["a"].(map[string]any)["b"].([]any)[1].(map[string]any)["c"] = 3.0

	if diff := cmp.Diff(decode(t, `{"a":{"b":[1,{"c":2}]}}`), any(orig)); diff != "" {
		t.Errorf("original modified through copy:\n%s", diff)
	}
}
