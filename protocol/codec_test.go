package protocol

import (
	"errors"
	"testing"
)

func TestDecodeServerMessageIdentity(t *testing.T) {
	m, err := DecodeServerMessage([]byte(`{"myId":"abc123"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	id, ok := m.(IdentityAssignment)
	if !ok {
		t.Fatalf("got %T, want IdentityAssignment", m)
	}
	if id.ID != "abc123" {
		t.Fatalf("id = %q, want %q", id.ID, "abc123")
	}
}

func TestDecodeServerMessageBroadcast(t *testing.T) {
	m, err := DecodeServerMessage([]byte(`{"a":{"x":100,"z":50,"angle":1.57},"b":{"x":1,"z":2,"angle":0}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sb, ok := m.(StateBroadcast)
	if !ok {
		t.Fatalf("got %T, want StateBroadcast", m)
	}
	if len(sb.Entities) != 2 {
		t.Fatalf("entities = %d, want 2", len(sb.Entities))
	}
	if got := sb.Entities["a"]; got != (EntityState{X: 100, Z: 50, Angle: 1.57}) {
		t.Fatalf("entity a = %+v", got)
	}
}

func TestDecodeServerMessageEmptyBroadcast(t *testing.T) {
	m, err := DecodeServerMessage([]byte(`{}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sb, ok := m.(StateBroadcast)
	if !ok || len(sb.Entities) != 0 {
		t.Fatalf("got %#v, want empty broadcast", m)
	}
}

func TestDecodeServerMessageErrors(t *testing.T) {
	cases := map[string]string{
		"empty":      "",
		"not json":   "nope",
		"array":      `[1,2]`,
		"null":       `null`,
		"bad id":     `{"myId":42}`,
		"empty id":   `{"myId":""}`,
		"bad entity": `{"a":"x"}`,
		// 实体字段缺失、为 null、类型错误或多余时整条广播丢弃
		"null entity":    `{"a":null}`,
		"missing z":      `{"a":{"x":100,"angle":0}}`,
		"only x":         `{"a":{"x":100}}`,
		"null angle":     `{"a":{"x":1,"z":2,"angle":null}}`,
		"string x":       `{"a":{"x":"1","z":2,"angle":0}}`,
		"extra field":    `{"a":{"x":1,"z":2,"angle":0,"junk":1}}`,
		"one bad of two": `{"a":{"x":1,"z":2,"angle":0},"b":{"x":1}}`,
	}
	for name, raw := range cases {
		if _, err := DecodeServerMessage([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseReport(t *testing.T) {
	r, err := ParseReport([]byte(`{"x":100,"z":50,"angle":1.57}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.State() != (EntityState{X: 100, Z: 50, Angle: 1.57}) || r.Seq != 0 {
		t.Fatalf("report = %+v", r)
	}

	r, err = ParseReport([]byte(`{"x":1,"z":2,"angle":-3,"seq":17}`))
	if err != nil {
		t.Fatalf("parse with seq: %v", err)
	}
	if r.Seq != 17 {
		t.Fatalf("seq = %d, want 17", r.Seq)
	}
}

func TestParseReportRejects(t *testing.T) {
	cases := []string{
		``,
		`garbage`,
		`{"x":1,"z":2}`,
		`{"x":null,"z":2,"angle":0}`,
		`{"x":"1","z":2,"angle":0}`,
		`{"x":1,"z":2,"angle":true}`,
		`{"x":1,"z":2,"angle":0,"myId":"other"}`,
		`{"x":1,"z":2,"angle":0,"seq":-1}`,
		`{"x":1,"z":2,"angle":0,"seq":1.5}`,
		`{"x":1,"z":2,"angle":0,"seq":null}`,
		`{"x":1,"z":2,"angle":0,"seq":0}`,
		`null`,
	}
	for _, raw := range cases {
		_, err := ParseReport([]byte(raw))
		if err == nil {
			t.Fatalf("%q: expected error", raw)
		}
		if !errors.Is(err, ErrInvalidReport) && !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("%q: unexpected error kind %v", raw, err)
		}
	}
}
