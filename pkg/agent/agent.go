// Package agent implements the Pyth agent JSON-RPC methods used by the publisher.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
)

// Requester sends one JSON-RPC request and returns its raw result.
type Requester interface {
	Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error)
}

// Client is a typed view of the agent API.
type Client struct {
	rpc Requester
}

// NewClient wraps a JSON-RPC requester.
func NewClient(rpc Requester) *Client {
	return &Client{rpc: rpc}
}

// GetProductList returns every product known to the agent. Each entry's first
// price account is the one prices are published to. Entries without a price
// account are returned with an empty PriceAccount; see Product.Check.
func (c *Client) GetProductList(ctx context.Context) ([]Product, error) {
	raw, err := c.rpc.Request(ctx, MethodGetProductList, []interface{}{})
	if err != nil {
		return nil, err
	}

	var entries []productEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidResponse, MethodGetProductList, err)
	}

	products := make([]Product, 0, len(entries))
	for _, e := range entries {
		product := Product{
			Symbol:         e.AttrDict.Symbol,
			ProductAccount: e.Account,
		}
		if len(e.Price) > 0 {
			product.PriceAccount = e.Price[0].Account
			product.Exponent = e.Price[0].PriceExponent
		}
		products = append(products, product)
	}
	return products, nil
}

// SubscribePriceSched subscribes to the publishing schedule of a price account.
func (c *Client) SubscribePriceSched(ctx context.Context, priceAccount string) (int64, error) {
	raw, err := c.rpc.Request(ctx, MethodSubscribePriceSched, []interface{}{priceAccount})
	if err != nil {
		return 0, err
	}

	var res subscribeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidResponse, MethodSubscribePriceSched, err)
	}
	return res.Subscription, nil
}

// UpdatePrice publishes an already scaled price and confidence.
func (c *Client) UpdatePrice(ctx context.Context, priceAccount string, price int64, conf uint64, status string) error {
	_, err := c.rpc.Request(ctx, MethodUpdatePrice, updatePriceParams{
		Account: priceAccount,
		Price:   price,
		Conf:    conf,
		Status:  status,
	})
	return err
}

// ParsePriceSchedNotification decodes the params of a notify_price_sched notification.
func ParsePriceSchedNotification(params json.RawMessage) (PriceSchedNotification, error) {
	var n PriceSchedNotification
	if err := json.Unmarshal(params, &n); err != nil {
		return n, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	return n, nil
}
