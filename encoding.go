package merkledb

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec converts values to and from their canonical binary encoding.
// Decode(Encode(v)) must equal v. Key codecs additionally define the
// iteration order of maps and sets, which is the byte order of encoded keys.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// MsgPack is the default value codec. Map keys are sorted so that the
// encoding, and thus the object hash, is deterministic.
func MsgPack[T any]() Codec[T] {
	return msgpackCodec[T]{}
}

type msgpackCodec[T any] struct{}

func (msgpackCodec[T]) Encode(v T) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T using MsgPack: %w", v, err)
	}
	return buf.Bytes(), nil
}

func (msgpackCodec[T]) Decode(data []byte) (T, error) {
	var v T
	err := msgpackDecode(data, &v)
	return v, err
}

func msgpackEncode(v any) []byte {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(fmt.Errorf("failed to encode %T using MsgPack: %w", v, err))
	}
	return buf.Bytes()
}

func msgpackDecode(buf []byte, ptr any) error {
	var r bytes.Reader
	r.Reset(buf)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	err := dec.Decode(ptr)
	msgpack.PutDecoder(dec)
	if err != nil {
		return decodeErrf(buf, 0, err, "failed to decode msgpack into %T", ptr)
	}
	return nil
}

// JSON encodes values with encoding/json.
func JSON[T any]() Codec[T] {
	return jsonCodec[T]{}
}

type jsonCodec[T any] struct{}

func (jsonCodec[T]) Encode(v T) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T to JSON: %w", v, err)
	}
	return raw, nil
}

func (jsonCodec[T]) Decode(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	if err != nil {
		return v, decodeErrf(data, 0, err, "failed to decode JSON into %T", &v)
	}
	return v, nil
}

var cborEncMode = must(cbor.CanonicalEncOptions().EncMode())

// CBOR encodes values using canonical CBOR (RFC 8949 core deterministic
// encoding).
func CBOR[T any]() Codec[T] {
	return cborCodec[T]{}
}

type cborCodec[T any] struct{}

func (cborCodec[T]) Encode(v T) ([]byte, error) {
	raw, err := cborEncMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T to CBOR: %w", v, err)
	}
	return raw, nil
}

func (cborCodec[T]) Decode(data []byte) (T, error) {
	var v T
	err := cbor.Unmarshal(data, &v)
	if err != nil {
		return v, decodeErrf(data, 0, err, "failed to decode CBOR into %T", &v)
	}
	return v, nil
}

// Binary uses the type's own MarshalBinary/UnmarshalBinary.
func Binary[T any, PT interface {
	*T
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}]() Codec[T] {
	return binaryCodec[T, PT]{}
}

type binaryCodec[T any, PT interface {
	*T
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}] struct{}

func (binaryCodec[T, PT]) Encode(v T) ([]byte, error) {
	return PT(&v).MarshalBinary()
}

func (binaryCodec[T, PT]) Decode(data []byte) (T, error) {
	var v T
	err := PT(&v).UnmarshalBinary(data)
	if err != nil {
		return v, decodeErrf(data, 0, err, "failed to decode %v", reflect.TypeFor[T]())
	}
	return v, nil
}

// Key codecs.
var (
	Bytes   Codec[[]byte] = bytesCodec{}
	String  Codec[string] = stringCodec{}
	Uint64  Codec[uint64] = uint64Codec{}
	HashKey Codec[Hash]   = hashCodec{}
)

type bytesCodec struct{}

func (bytesCodec) Encode(v []byte) ([]byte, error) { return bytes.Clone(v), nil }

func (bytesCodec) Decode(data []byte) ([]byte, error) {
	if data == nil {
		return []byte{}, nil
	}
	return bytes.Clone(data), nil
}

type stringCodec struct{}

func (stringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }

func (stringCodec) Decode(data []byte) (string, error) { return string(data), nil }

// uint64Codec is big-endian, so byte order equals numeric order.
type uint64Codec struct{}

func (uint64Codec) Encode(v uint64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, v), nil
}

func (uint64Codec) Decode(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, decodeErrf(data, 0, nil, "uint64 must be 8 bytes")
	}
	return binary.BigEndian.Uint64(data), nil
}

type hashCodec struct{}

func (hashCodec) Encode(v Hash) ([]byte, error) { return bytes.Clone(v[:]), nil }

func (hashCodec) Decode(data []byte) (Hash, error) {
	var h Hash
	if len(data) != len(h) {
		return h, decodeErrf(data, 0, nil, "hash must be %d bytes", len(h))
	}
	copy(h[:], data)
	return h, nil
}

func encodeOrPanic[T any](c Codec[T], addr Address, v T) []byte {
	raw, err := c.Encode(v)
	if err != nil {
		panic(indexErrf(addr, nil, err, "encode"))
	}
	if raw == nil {
		raw = emptyValue
	}
	return raw
}

func decodeOrPanic[T any](c Codec[T], addr Address, key, raw []byte) T {
	v, err := c.Decode(raw)
	if err != nil {
		panic(indexErrf(addr, key, err, "decode"))
	}
	return v
}
