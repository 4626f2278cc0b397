package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage  = errors.New("empty message")
	ErrInvalidReport = errors.New("invalid report")
	ErrInvalidServer = errors.New("invalid server message")
)

// identityKey 区分身份分配与全量广播的哨兵字段
const identityKey = "myId"

// EncodeIdentity 编码 {"myId": id}
func EncodeIdentity(id string) ([]byte, error) {
	if id == "" {
		return nil, fmt.Errorf("trying to encode empty identity")
	}
	return json.Marshal(IdentityAssignment{ID: id})
}

// EncodeBroadcast 将共享状态表编码为扁平映射 {"<id>": {x,z,angle}, ...}
func EncodeBroadcast(entities map[string]EntityState) ([]byte, error) {
	if entities == nil {
		entities = map[string]EntityState{}
	}
	return json.Marshal(entities)
}

// EncodeReport 编码客户端上报
func EncodeReport(r Report) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeServerMessage 按是否存在 myId 字段解析服务端消息
func DecodeServerMessage(b []byte) (Message, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, ErrEmptyMessage
	}
	probe, err := objectFields(b, ErrInvalidServer)
	if err != nil {
		return nil, err
	}
	if raw, ok := probe[identityKey]; ok {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil || id == "" {
			return nil, fmt.Errorf("%w: bad %s", ErrInvalidServer, identityKey)
		}
		return IdentityAssignment{ID: id}, nil
	}
	entities := make(map[string]EntityState, len(probe))
	for id, raw := range probe {
		fields, err := objectFields(raw, ErrInvalidServer, "x", "z", "angle")
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", id, err)
		}
		st, err := poseFields(fields, ErrInvalidServer)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", id, err)
		}
		entities[id] = st
	}
	return StateBroadcast{Entities: entities}, nil
}

// objectFields 解析 JSON 对象；给出 allowed 时，出现其之外的字段即拒绝
func objectFields(b []byte, kind error, allowed ...string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", kind, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", kind)
	}
	if len(allowed) == 0 {
		return fields, nil
	}
next:
	for k := range fields {
		for _, a := range allowed {
			if k == a {
				continue next
			}
		}
		return nil, fmt.Errorf("%w: unexpected field %q", kind, k)
	}
	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// poseFields x/z/angle 必须存在且为非 null 数字
func poseFields(fields map[string]json.RawMessage, kind error) (EntityState, error) {
	var st EntityState
	num := func(key string, dst *float64) error {
		raw, ok := fields[key]
		if !ok {
			return fmt.Errorf("%w: missing %q", kind, key)
		}
		if isNull(raw) {
			return fmt.Errorf("%w: %q is null", kind, key)
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("%w: %q is not a number", kind, key)
		}
		return nil
	}
	if err := num("x", &st.X); err != nil {
		return EntityState{}, err
	}
	if err := num("z", &st.Z); err != nil {
		return EntityState{}, err
	}
	if err := num("angle", &st.Angle); err != nil {
		return EntityState{}, err
	}
	return st, nil
}

// ParseReport 校验并解析客户端上报：x/z/angle 必须存在且为数字，
// 仅允许额外的 seq（正整数；不带 seq 即不排序），其余字段一律拒绝
func ParseReport(b []byte) (Report, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return Report{}, ErrEmptyMessage
	}
	fields, err := objectFields(b, ErrInvalidReport, "x", "z", "angle", "seq")
	if err != nil {
		return Report{}, err
	}
	st, err := poseFields(fields, ErrInvalidReport)
	if err != nil {
		return Report{}, err
	}
	r := Report{X: st.X, Z: st.Z, Angle: st.Angle}
	if raw, ok := fields["seq"]; ok {
		if isNull(raw) {
			return Report{}, fmt.Errorf("%w: %q is null", ErrInvalidReport, "seq")
		}
		if err := json.Unmarshal(raw, &r.Seq); err != nil || r.Seq == 0 {
			return Report{}, fmt.Errorf("%w: %q is not a sequence number", ErrInvalidReport, "seq")
		}
	}
	return r, nil
}
