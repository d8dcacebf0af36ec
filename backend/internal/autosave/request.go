package autosave

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FieldParser 解析调用方注册的附加字段
// 输入是该键对应的原始 JSON 值，返回值后续直接作为列更新写库
type FieldParser func(raw json.RawMessage) (any, error)

var ErrMalformedBody = errors.New("malformed autosave body")

// FieldError 指出哪个附加字段解析失败，整个请求被拒绝
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return fmt.Sprintf("invalid field %q: %v", e.Field, e.Err) }
func (e *FieldError) Unwrap() error { return e.Err }

// Request 一次自动保存请求（不落库）
type Request struct {
	Text    string
	Version *uint64        // 客户端已知的版本号，可缺省
	Extra   map[string]any // 已解析的附加字段
}

// ParseRequest 解码 JSON 请求体 { "text": ..., "version": ..., ...附加字段 }
// text 缺省为空串，version 可缺省或为 null。
// 附加字段只在键存在时解析；任何解析失败都在写库之前返回，无副作用。
func ParseRequest(raw []byte, parsers map[string]FieldParser) (*Request, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		return nil, ErrMalformedBody
	}

	req := &Request{Extra: make(map[string]any)}

	if rawText, ok := body["text"]; ok {
		if err := json.Unmarshal(rawText, &req.Text); err != nil {
			return nil, ErrMalformedBody
		}
	}
	if rawVer, ok := body["version"]; ok && string(rawVer) != "null" {
		var v uint64
		if err := json.Unmarshal(rawVer, &v); err != nil {
			return nil, ErrMalformedBody
		}
		req.Version = &v
	}
	for name, parse := range parsers {
		rawVal, ok := body[name]
		if !ok {
			continue
		}
		v, err := parse(rawVal)
		if err != nil {
			return nil, &FieldError{Field: name, Err: err}
		}
		req.Extra[name] = v
	}
	return req, nil
}
