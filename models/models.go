package models

import "github.com/shopspring/decimal"

func init() {
	// 金額在 JSON 中必須以數字呈現，維持與既有客戶端相容的 wire 格式
	decimal.MarshalJSONWithoutQuotes = true
}
