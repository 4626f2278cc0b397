package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"cavernsync/protocol"
)

func TestSchemas_EncodedMessagesValidate(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}
	validate := func(s *jsonschema.Schema, b []byte) {
		t.Helper()
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate %s: %v", b, err)
		}
	}

	identity := compile("identity.schema.json")
	broadcast := compile("broadcast.schema.json")
	report := compile("report.schema.json")

	b, err := protocol.EncodeIdentity("abc123")
	if err != nil {
		t.Fatalf("encode identity: %v", err)
	}
	validate(identity, b)

	b, err = protocol.EncodeBroadcast(map[string]protocol.EntityState{
		"abc123": {X: 512, Z: 512},
		"def456": {X: 100, Z: 50, Angle: 1.57},
	})
	if err != nil {
		t.Fatalf("encode broadcast: %v", err)
	}
	validate(broadcast, b)

	b, err = protocol.EncodeBroadcast(nil)
	if err != nil {
		t.Fatalf("encode empty broadcast: %v", err)
	}
	validate(broadcast, b)

	b, err = protocol.EncodeReport(protocol.Report{X: 1, Z: 2, Angle: 3})
	if err != nil {
		t.Fatalf("encode report: %v", err)
	}
	validate(report, b)

	b, err = protocol.EncodeReport(protocol.Report{X: 1, Z: 2, Angle: 3, Seq: 9})
	if err != nil {
		t.Fatalf("encode report with seq: %v", err)
	}
	validate(report, b)
}

func TestSchemas_RejectInvalidReports(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "schemas", "report.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	for _, raw := range []string{
		`{"x":1,"z":2}`,
		`{"x":"1","z":2,"angle":0}`,
		`{"x":1,"z":2,"angle":0,"id":"other"}`,
		`{"x":1,"z":2,"angle":0,"seq":null}`,
		`{"x":1,"z":2,"angle":0,"seq":0}`,
	} {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if err := s.Validate(v); err == nil {
			t.Fatalf("expected %s to be rejected by schema", raw)
		}
		if _, err := protocol.ParseReport([]byte(raw)); err == nil {
			t.Fatalf("expected %s to be rejected by ParseReport", raw)
		}
	}
}

// 解码器与广播 schema 对同一批载荷给出相同结论
func TestSchemas_BroadcastDecoderAgrees(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "schemas", "broadcast.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	cases := map[string]bool{
		`{"a":{"x":100,"z":50,"angle":1.57}}`:    true,
		`{"a":{"x":100}}`:                        false,
		`{"a":null}`:                             false,
		`{"a":{"x":1,"z":2,"angle":0,"junk":1}}`: false,
		`{"a":{"x":"1","z":2,"angle":0}}`:        false,
	}
	for raw, valid := range cases {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if got := s.Validate(v) == nil; got != valid {
			t.Fatalf("schema on %s = %v, want %v", raw, got, valid)
		}
		if _, err := protocol.DecodeServerMessage([]byte(raw)); (err == nil) != valid {
			t.Fatalf("decoder on %s: err = %v, want valid=%v", raw, err, valid)
		}
	}
}
