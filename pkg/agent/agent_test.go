package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRequester struct {
	mock.Mock
}

func (m *mockRequester) Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	args := m.Called(ctx, method, params)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

const productListFixture = `[
  {
    "account": "3nuBtwdXGW2YW6yx9PUNpGAaFkqurKHq5rgKGcw2AW7X",
    "attr_dict": {"symbol": "Crypto.BTC/USD", "asset_type": "Crypto", "quote_currency": "USD"},
    "price": [
      {"account": "GVXRSBjFk6e6J3NbVPXohDJetcTjaeeuykUpbQF8UoMU", "price_exponent": -8, "price_type": "price"}
    ]
  },
  {
    "account": "5uKdRzB3FzdmwyCHrqSGq4u2URja617jqtKkM71BVrkw",
    "attr_dict": {"symbol": "Crypto.ETH/USD"},
    "price": [
      {"account": "EdVCmQ9FSPcVe5YySXDPCRmc8aDQLKJ9xvYBMZPie1Vw", "price_exponent": -6},
      {"account": "ignored", "price_exponent": -2}
    ]
  }
]`

func TestGetProductList(t *testing.T) {
	rpc := new(mockRequester)
	rpc.On("Request", mock.Anything, MethodGetProductList, []interface{}{}).
		Return(json.RawMessage(productListFixture), nil)

	products, err := NewClient(rpc).GetProductList(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, Product{
		Symbol:         "Crypto.BTC/USD",
		ProductAccount: "3nuBtwdXGW2YW6yx9PUNpGAaFkqurKHq5rgKGcw2AW7X",
		PriceAccount:   "GVXRSBjFk6e6J3NbVPXohDJetcTjaeeuykUpbQF8UoMU",
		Exponent:       -8,
	}, products[0])
	assert.Equal(t, "EdVCmQ9FSPcVe5YySXDPCRmc8aDQLKJ9xvYBMZPie1Vw", products[1].PriceAccount)
	assert.Equal(t, int32(-6), products[1].Exponent)
	rpc.AssertExpectations(t)
}

func TestGetProductList_MissingPriceAccount(t *testing.T) {
	rpc := new(mockRequester)
	rpc.On("Request", mock.Anything, MethodGetProductList, mock.Anything).
		Return(json.RawMessage(`[
			{"account":"a","attr_dict":{"symbol":"Equity.XYZ/USD"},"price":[]},
			{"account":"b","attr_dict":{"symbol":"Crypto.BTC/USD"},"price":[{"account":"p","price_exponent":-8}]}
		]`), nil)

	products, err := NewClient(rpc).GetProductList(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Empty(t, products[0].PriceAccount)
	assert.ErrorIs(t, products[0].Check(), ErrInvalidProduct)
	assert.NoError(t, products[1].Check())
	assert.Equal(t, "p", products[1].PriceAccount)
}

func TestGetProductList_Malformed(t *testing.T) {
	rpc := new(mockRequester)
	rpc.On("Request", mock.Anything, MethodGetProductList, mock.Anything).
		Return(json.RawMessage(`{"not":"a list"}`), nil)

	_, err := NewClient(rpc).GetProductList(context.Background())
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestSubscribePriceSched(t *testing.T) {
	rpc := new(mockRequester)
	rpc.On("Request", mock.Anything, MethodSubscribePriceSched, []interface{}{"price-acct"}).
		Return(json.RawMessage(`{"subscription": 17}`), nil)

	id, err := NewClient(rpc).SubscribePriceSched(context.Background(), "price-acct")
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)
}

func TestSubscribePriceSched_Error(t *testing.T) {
	boom := errors.New("boom")
	rpc := new(mockRequester)
	rpc.On("Request", mock.Anything, MethodSubscribePriceSched, mock.Anything).Return(nil, boom)

	_, err := NewClient(rpc).SubscribePriceSched(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestUpdatePrice_PositionalParams(t *testing.T) {
	rpc := new(mockRequester)
	var sent interface{}
	rpc.On("Request", mock.Anything, MethodUpdatePrice, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(2) }).
		Return(json.RawMessage(`0`), nil)

	err := NewClient(rpc).UpdatePrice(context.Background(), "acct", 10100000000, 10100000, StatusTrading)
	require.NoError(t, err)

	data, err := json.Marshal(sent)
	require.NoError(t, err)
	assert.JSONEq(t, `["acct", 10100000000, 10100000, "trading"]`, string(data))
}

func TestParsePriceSchedNotification(t *testing.T) {
	n, err := ParsePriceSchedNotification(json.RawMessage(`{"subscription": 3}`))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n.Subscription)

	_, err = ParsePriceSchedNotification(json.RawMessage(`[1]`))
	assert.ErrorIs(t, err, ErrInvalidNotification)
}
