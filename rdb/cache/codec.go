package cache

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// EncodeRow 行值编码为 msgpack
func EncodeRow(values []any) ([]byte, error) {
	data, err := msgpack.Marshal(values)
	if err != nil {
		return nil, errors.Wrap(err, "encode row failed")
	}
	return data, nil
}

// DecodeRow 整数解码为 int64/uint64，浮点数为 float64，时间为 time.Time
func DecodeRow(data []byte) ([]any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	var values []any
	if err := dec.Decode(&values); err != nil {
		return nil, errors.Wrap(err, "decode row failed")
	}
	return values, nil
}
