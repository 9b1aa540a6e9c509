package redis

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// payloadField 是負載在 stream entry 中使用的欄位名稱
const payloadField = "payload"

var (
	ErrPointerType = errors.New("pointer type is not allowed")
)

// MarshalMessage 將資料序列化為可寫入 Redis Stream 的欄位集合。
// 內容以 msgpack 編碼後 base64 成單一 payload 欄位，
// stream 欄位值只能是字串，負載本身的格式不受此限制。
func MarshalMessage[T any](data T) (map[string]any, error) {
	const op = "MarshalMessage"
	// 負載必須以值型別宣告，指標會讓編碼與解碼的行為不對稱
	if reflect.TypeOf(data).Kind() == reflect.Ptr {
		return nil, ErrPointerType
	}

	// 一律取址編碼，pointer receiver的自定義編碼器才會被用到
	raw, err := msgpack.Marshal(&data)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to encode payload, err=%w", op, err)
	}

	return map[string]any{
		payloadField: base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// UnmarshalMessage 將 Redis Stream 的欄位集合還原為資料。
// 空的欄位集合視為零值負載，不是錯誤。
func UnmarshalMessage[T any](message map[string]any) (T, error) {
	const op = "UnmarshalMessage"
	var result T

	if reflect.TypeOf(result).Kind() == reflect.Ptr {
		return result, ErrPointerType
	}
	if len(message) == 0 {
		return result, nil
	}

	encoded, ok := message[payloadField].(string)
	if !ok {
		return result, fmt.Errorf("[%s] payload field missing or not a string", op)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return result, fmt.Errorf("[%s] Fail to decode payload, err=%w", op, err)
	}
	if err := msgpack.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("[%s] Fail to decode payload, err=%w", op, err)
	}
	return result, nil
}
