package common

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// msgpackHandle is shared by every encoder; a configured handle is safe for
// concurrent use. Canonical mode sorts map keys so that encodings used as
// signed payloads are deterministic.
var msgpackHandle = func() *codec.MsgpackHandle {
	h := new(codec.MsgpackHandle)
	h.WriteExt = true
	h.Canonical = true
	return h
}()

// MsgpackHandle returns the handle used for payloads and persisted records.
func MsgpackHandle() *codec.MsgpackHandle {
	return msgpackHandle
}

// EncodeMsgpack ...
func EncodeMsgpack(v interface{}) ([]byte, error) {
	var b bytes.Buffer
	enc := codec.NewEncoder(&b, msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// DecodeMsgpack ...
func DecodeMsgpack(data []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(data, msgpackHandle)
	return dec.Decode(v)
}

// MustEncodeMsgpack is EncodeMsgpack for values whose encoding cannot fail,
// such as plain structs used as signed payloads.
func MustEncodeMsgpack(v interface{}) []byte {
	b, err := EncodeMsgpack(v)
	if err != nil {
		panic(err)
	}
	return b
}
