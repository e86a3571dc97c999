package domain

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// BasketItem is one basket line as handed over by the shop, prices in major units
type BasketItem struct {
	Price    decimal.Decimal `json:"price" validate:"required"`
	TaxRate  decimal.Decimal `json:"tax_rate"`
	Number   string          `json:"number" validate:"required"`
	Name     string          `json:"name" validate:"required"`
	Quantity int             `json:"quantity" validate:"gt=0"`
}

// Basket is the snapshot of a checkout basket.
// Tax rates are percentages (19 means 19%).
type Basket struct {
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	ShippingTaxRate decimal.Decimal `json:"shipping_tax_rate"`
	Items           []BasketItem    `json:"items" validate:"dive"`
}

// GatewayBasketItem is the basket line format of the gateway API
type GatewayBasketItem struct {
	ItemNo    string  `json:"item_no"`
	ItemName  string  `json:"item_name"`
	Quantity  int     `json:"qty"`
	ItemPrice int64   `json:"item_price"`
	VatRate   float64 `json:"vat_rate"`
}

// GatewayShipping is the shipping block of the gateway API
type GatewayShipping struct {
	Amount  int64   `json:"amount"`
	VatRate float64 `json:"vat_rate"`
}

// ToMinorUnits converts a major-unit price to minor units, rounding half away from zero
func ToMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// vatRate converts a percentage into the fraction the gateway expects
func vatRate(percent decimal.Decimal) float64 {
	f, _ := percent.Div(hundred).Float64()
	return f
}

// GatewayItems converts the basket lines to the gateway format
func (b *Basket) GatewayItems() []GatewayBasketItem {
	if b == nil {
		return []GatewayBasketItem{}
	}
	items := make([]GatewayBasketItem, 0, len(b.Items))
	for _, item := range b.Items {
		items = append(items, GatewayBasketItem{
			ItemNo:    item.Number,
			ItemName:  item.Name,
			Quantity:  item.Quantity,
			ItemPrice: ToMinorUnits(item.Price),
			VatRate:   vatRate(item.TaxRate),
		})
	}
	return items
}

// GatewayShipping converts the shipping cost to the gateway format
func (b *Basket) GatewayShipping() *GatewayShipping {
	if b == nil {
		return nil
	}
	return &GatewayShipping{
		Amount:  ToMinorUnits(b.ShippingCost),
		VatRate: vatRate(b.ShippingTaxRate),
	}
}

// Total returns the gross basket amount in minor units including shipping
func (b *Basket) Total() int64 {
	if b == nil {
		return 0
	}
	total := b.ShippingCost
	for _, item := range b.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return ToMinorUnits(total)
}
