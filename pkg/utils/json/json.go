// Package json 是 JSON 编解码的统一入口。
// amd64/arm64 上使用 sonic（与 encoding/json 行为兼容的配置），其他平台回退到 encoding/json。
package json

import (
	stdjson "encoding/json"
	"io"
	"runtime"

	"github.com/bytedance/sonic"
)

// RawMessage 延迟解码的原始 JSON。
type RawMessage = stdjson.RawMessage

// Encoder 流式编码器。
type Encoder interface {
	Encode(v any) error
}

// Decoder 流式解码器。
type Decoder interface {
	Decode(v any) error
}

type codec interface {
	Marshal(v any) ([]byte, error)
	MarshalIndent(v any, prefix, indent string) ([]byte, error)
	Unmarshal(data []byte, v any) error
	encoder(w io.Writer) Encoder
	decoder(r io.Reader) Decoder
}

type sonicCodec struct{ sonic.API }

func (c sonicCodec) encoder(w io.Writer) Encoder { return c.NewEncoder(w) }
func (c sonicCodec) decoder(r io.Reader) Decoder { return c.NewDecoder(r) }

type stdCodec struct{}

func (stdCodec) Marshal(v any) ([]byte, error) { return stdjson.Marshal(v) }
func (stdCodec) MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return stdjson.MarshalIndent(v, prefix, indent)
}
func (stdCodec) Unmarshal(data []byte, v any) error { return stdjson.Unmarshal(data, v) }
func (stdCodec) encoder(w io.Writer) Encoder { return stdjson.NewEncoder(w) }
func (stdCodec) decoder(r io.Reader) Decoder { return stdjson.NewDecoder(r) }

var active = pick(runtime.GOARCH)

func pick(arch string) codec {
	if arch == "amd64" || arch == "arm64" {
		return sonicCodec{sonic.ConfigStd}
	}
	return stdCodec{}
}

// Marshal encodes v.
func Marshal(v any) ([]byte, error) { return active.Marshal(v) }

// MarshalIndent encodes v with indentation.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return active.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error { return active.Unmarshal(data, v) }

// NewEncoder returns a streaming encoder writing to w.
func NewEncoder(w io.Writer) Encoder { return active.encoder(w) }

// NewDecoder returns a streaming decoder reading from r.
func NewDecoder(r io.Reader) Decoder { return active.decoder(r) }

// IsUsingSonic 报告当前是否由 sonic 编解码。
func IsUsingSonic() bool {
	_, ok := active.(sonicCodec)
	return ok
}
