package notice

import (
	"encoding/json"
	"fmt"
)

// EncodeData は通知ペイロードの構造体をJSONにシリアライズする。
func EncodeData(data any) (json.RawMessage, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("通知ペイロードのシリアライズに失敗: %w", err)
	}
	return jsonData, nil
}

// DecodeData は通知のdataフィールドを指定された型にデシリアライズする。
// 通知タイプに対応するData構造体を型引数に指定する。
func DecodeData[T any](raw json.RawMessage) (*T, error) {
	var data T
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("通知ペイロードのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}
