package flow

import (
	"encoding/json"
)

var jsonNull = json.RawMessage("null")

// State is the per-iteration context threaded between steps. It is created
// fresh for every iteration and owned by the goroutine running it.
type State struct {
	ProductID  string
	VariantID  json.RawMessage // JSON null when the product has no variant
	Price      json.Number
	Title      string
	Thumbnail  string
	OptionName string
	Cart       []CartLine
	OrderID    string
}

// CartLine identifies one cart entry for bulk deletion. Values are kept as
// the raw JSON the cart service returned.
type CartLine struct {
	ProductID json.RawMessage `json:"productId"`
	VariantID json.RawMessage `json:"variantId"`
}

type addressBody struct {
	ZipCode        string `json:"zipCode"`
	Address        string `json:"address"`
	DetailAddress  string `json:"detailAddress"`
	Recipient      string `json:"recipient"`
	RecipientPhone string `json:"recipientPhone"`
	IsDefault      bool   `json:"isDefault"`
}

type cartAddBody struct {
	ProductID string          `json:"productId"`
	VariantID json.RawMessage `json:"variantId"`
	Quantity  int             `json:"quantity"`
}

type orderItem struct {
	ProductID        string          `json:"productId"`
	VariantID        json.RawMessage `json:"variantId"`
	Quantity         int             `json:"quantity"`
	ProductTitle     string          `json:"productTitle"`
	ProductThumbnail string          `json:"productThumbnail"`
	OptionName       string          `json:"optionName"`
	UnitPrice        json.Number     `json:"unitPrice"`
}

type orderBody struct {
	AddressID   *string     `json:"addressId"`
	TotalAmount json.Number `json:"totalAmount"`
	Items       []orderItem `json:"items"`
}

type paymentReadyBody struct {
	OrderID string      `json:"orderId"`
	Amount  json.Number `json:"amount"`
}

func rawOrNull(raw string) json.RawMessage {
	if raw == "" {
		return jsonNull
	}
	return json.RawMessage(raw)
}
