package agent

import (
	"encoding/json"
	"fmt"
)

// Method names of the Pyth agent JSON-RPC API.
const (
	MethodGetProductList      = "get_product_list"
	MethodSubscribePriceSched = "subscribe_price_sched"
	MethodUpdatePrice         = "update_price"
	MethodNotifyPriceSched    = "notify_price_sched"
)

// StatusTrading is the only price status the publisher sends.
const StatusTrading = "trading"

// Product is the subset of a product-list entry the publisher needs.
type Product struct {
	Symbol         string `json:"symbol"`
	ProductAccount string `json:"product_account"`
	PriceAccount   string `json:"price_account"`
	Exponent       int32  `json:"exponent"`
}

// Check reports whether prices can be published for the product.
func (p Product) Check() error {
	if p.PriceAccount == "" {
		return fmt.Errorf("%w: product %s (%s) has no price account", ErrInvalidProduct, p.ProductAccount, p.Symbol)
	}
	return nil
}

// Subscription binds a subscription id issued by the agent to a product.
type Subscription struct {
	ID      int64   `json:"id"`
	Product Product `json:"product"`
}

// productEntry is one element of the get_product_list result.
type productEntry struct {
	Account  string `json:"account"`
	AttrDict struct {
		Symbol        string `json:"symbol"`
		AssetType     string `json:"asset_type"`
		QuoteCurrency string `json:"quote_currency"`
		Description   string `json:"description"`
	} `json:"attr_dict"`
	Price []struct {
		Account       string `json:"account"`
		PriceExponent int32  `json:"price_exponent"`
		PriceType     string `json:"price_type"`
	} `json:"price"`
}

type subscribeResult struct {
	Subscription int64 `json:"subscription"`
}

// PriceSchedNotification is the params object of notify_price_sched.
type PriceSchedNotification struct {
	Subscription int64 `json:"subscription"`
}

type updatePriceParams struct {
	Account string `json:"account"`
	Price   int64  `json:"price"`
	Conf    uint64 `json:"conf"`
	Status  string `json:"status"`
}

// MarshalJSON encodes update_price params positionally.
func (p updatePriceParams) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{p.Account, p.Price, p.Conf, p.Status})
}
