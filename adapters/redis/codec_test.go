package redis

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// pointerCodecMessage 的自定義編解碼器掛在pointer receiver上，
// 和拍賣事件的負載使用同一種msgpack擴充方式。
type pointerCodecMessage struct {
	Value string
}

var (
	_ msgpack.CustomEncoder = (*pointerCodecMessage)(nil)
	_ msgpack.CustomDecoder = (*pointerCodecMessage)(nil)
)

func (m *pointerCodecMessage) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(m.Value)
}

func (m *pointerCodecMessage) DecodeMsgpack(dec *msgpack.Decoder) error {
	value, err := dec.DecodeString()
	if err != nil {
		return err
	}
	m.Value = value
	return nil
}

func TestMarshalMessage(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		msg := TestMessage{ID: "1", Data: "test data"}

		fields, err := MarshalMessage(msg)
		require.NoError(t, err)
		require.Contains(t, fields, payloadField)

		decoded, err := UnmarshalMessage[TestMessage](fields)
		require.NoError(t, err)
		assert.Equal(t, msg, decoded)
	})

	t.Run("round trip with pointer receiver codec", func(t *testing.T) {
		msg := pointerCodecMessage{Value: "bid accepted"}

		fields, err := MarshalMessage(msg)
		require.NoError(t, err)

		decoded, err := UnmarshalMessage[pointerCodecMessage](fields)
		require.NoError(t, err)
		assert.Equal(t, msg, decoded)
	})

	t.Run("pointer type rejected", func(t *testing.T) {
		_, err := MarshalMessage(&TestMessage{ID: "1"})
		assert.ErrorIs(t, err, ErrPointerType)
	})
}

func TestUnmarshalMessage(t *testing.T) {
	t.Run("pointer type rejected", func(t *testing.T) {
		_, err := UnmarshalMessage[*TestMessage](map[string]any{payloadField: ""})
		assert.ErrorIs(t, err, ErrPointerType)
	})

	t.Run("empty message returns zero value", func(t *testing.T) {
		decoded, err := UnmarshalMessage[TestMessage](map[string]any{})
		assert.NoError(t, err)
		assert.Equal(t, TestMessage{}, decoded)
	})

	t.Run("missing payload field", func(t *testing.T) {
		_, err := UnmarshalMessage[TestMessage](map[string]any{"other": "value"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "payload field missing")
	})

	t.Run("invalid base64", func(t *testing.T) {
		_, err := UnmarshalMessage[TestMessage](map[string]any{payloadField: "!!!not-base64!!!"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "Fail to decode payload")
	})

	t.Run("invalid msgpack payload", func(t *testing.T) {
		garbage := base64.StdEncoding.EncodeToString([]byte("\xc1garbage"))
		_, err := UnmarshalMessage[TestMessage](map[string]any{payloadField: garbage})
		assert.Error(t, err)
	})
}
