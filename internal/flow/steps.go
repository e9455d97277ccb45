package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/torosent/shopflow/internal/httpclient"
	"github.com/torosent/shopflow/internal/metrics"
	"github.com/torosent/shopflow/internal/runner"
)

// ensureAddress creates one default address for users that have none. A
// failed creation is counted but does not end the iteration.
func (it *iteration) ensureAddress(ctx context.Context) error {
	host := it.opt.Hosts.User
	resp, err := it.do(ctx, StepAddress, http.MethodGet, host, pathAddresses, nil, []int{http.StatusOK})
	if err != nil {
		return it.requestFailed(StepAddress, "list addresses failed", resp, err)
	}
	if list, ok := resp.Array(); ok && len(list) > 0 {
		return nil
	}

	resp, err = it.do(ctx, StepAddress, http.MethodPost, host, pathAddresses, defaultAddress(it.vu.Ordinal, it.vu.Iteration),
		[]int{http.StatusOK, http.StatusCreated})
	if err != nil {
		it.sink.Add(metrics.CounterAddressCreateFailures, 1)
		it.log.Debug("address create failed",
			zap.Int("vu", it.vu.Ordinal),
			zap.Int("iteration", it.vu.Iteration),
			zap.Error(err),
		)
	}
	return nil
}

func defaultAddress(vu, iter int) addressBody {
	suffix := vu*10000 + iter
	return addressBody{
		ZipCode:        fmt.Sprintf("%d", 10000+suffix%89999),
		Address:        fmt.Sprintf("Load Test Addr %d", vu),
		DetailAddress:  fmt.Sprintf("Iter %d", iter),
		Recipient:      fmt.Sprintf("User %d", vu),
		RecipientPhone: fmt.Sprintf("010-9%03d-%04d", vu, iter%10000),
		IsDefault:      true,
	}
}

func (it *iteration) resolveProduct(ctx context.Context) error {
	host := it.opt.Hosts.Product
	productID := it.opt.ProductID
	if productID == "" {
		resp, err := it.do(ctx, StepProduct, http.MethodGet, host, pathProducts+browsePageQuery, nil, nil)
		if err != nil {
			return it.requestFailed(StepProduct, "list products failed", resp, err)
		}
		first := resp.JSON("content.0.productId")
		if first.String() == "" {
			return it.fail(StepProduct, KindDataShape, "product listing has no productId", resp, nil)
		}
		productID = first.String()
	}

	resp, err := it.do(ctx, StepProduct, http.MethodGet, host, pathProducts+"/"+pathEscape(productID), nil, nil)
	if !it.sink.Check(CheckProductDetail, err == nil && resp.Status == http.StatusOK) {
		if err != nil {
			return it.requestFailed(StepProduct, "product detail failed", resp, err)
		}
		return it.fail(StepProduct, KindUnexpectedStatus, "product detail not 200", resp, nil)
	}

	price := resp.JSON("price")
	if !price.Exists() || price.Type == gjson.Null {
		price = resp.JSON("variants.0.price")
	}
	amount, ok := parsePrice(price)
	if !ok {
		se := it.fail(StepProduct, KindDataShape, "invalid price", resp, nil)
		se.Fields = map[string]any{"productId": productID, "price": price.Raw}
		return se
	}

	it.state = State{
		ProductID:  productID,
		VariantID:  jsonNull,
		Price:      amount,
		Title:      resp.JSON("title").String(),
		Thumbnail:  resp.JSON("thumbnailUrl").String(),
		OptionName: resp.JSON("variants.0.optionName").String(),
	}
	if v := resp.JSON("variants.0.variantId"); v.Exists() && v.Type != gjson.Null {
		it.state.VariantID = json.RawMessage(v.Raw)
	}
	return nil
}

// parsePrice accepts a non-zero number, or a string holding one.
func parsePrice(v gjson.Result) (json.Number, bool) {
	switch v.Type {
	case gjson.Number:
		return json.Number(v.Raw), v.Float() != 0
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil || f == 0 || math.IsInf(f, 0) || math.IsNaN(f) {
			return "", false
		}
		return json.Number(strconv.FormatFloat(f, 'f', -1, 64)), true
	}
	return "", false
}

func (it *iteration) addToCart(ctx context.Context) error {
	body := cartAddBody{ProductID: it.state.ProductID, VariantID: it.state.VariantID, Quantity: 1}
	resp, err := it.do(ctx, StepCartAdd, http.MethodPost, it.opt.Hosts.Cart, pathCart, body, nil)
	if !it.sink.Check(CheckCartAdd, err == nil && resp.Status == http.StatusCreated) {
		if err != nil {
			return it.requestFailed(StepCartAdd, "cart add failed", resp, err)
		}
		return it.fail(StepCartAdd, KindUnexpectedStatus, "cart add not 201", resp, nil)
	}
	return nil
}

func (it *iteration) readCart(ctx context.Context) error {
	resp, err := it.do(ctx, StepCartRead, http.MethodGet, it.opt.Hosts.Cart, pathCart, nil, nil)
	if !it.sink.Check(CheckCartGet, err == nil && resp.Status == http.StatusOK) {
		if err != nil {
			return it.requestFailed(StepCartRead, "cart read failed", resp, err)
		}
		return it.fail(StepCartRead, KindUnexpectedStatus, "cart read not 200", resp, nil)
	}
	items, ok := resp.Array()
	if !ok || len(items) == 0 {
		return it.fail(StepCartRead, KindDataShape, "cart is not a non-empty array", resp, nil)
	}
	it.state.Cart = make([]CartLine, 0, len(items))
	for _, item := range items {
		it.state.Cart = append(it.state.Cart, CartLine{
			ProductID: rawOrNull(item.Get("productId").Raw),
			VariantID: rawOrNull(item.Get("variantId").Raw),
		})
	}
	return nil
}

func (it *iteration) createOrder(ctx context.Context) error {
	st := &it.state
	body := orderBody{
		TotalAmount: st.Price,
		Items: []orderItem{{
			ProductID:        st.ProductID,
			VariantID:        st.VariantID,
			Quantity:         1,
			ProductTitle:     st.Title,
			ProductThumbnail: st.Thumbnail,
			OptionName:       st.OptionName,
			UnitPrice:        st.Price,
		}},
	}
	policy := it.opt.OrderRetry
	policy.OnFailure = func() { it.sink.Add(metrics.CounterOrderCreateRetryFailures, 1) }

	resp, ok, err := runner.Retry(ctx, policy, func(ctx context.Context, acceptable []int) (*httpclient.Response, error) {
		return it.do(ctx, StepOrder, http.MethodPost, it.opt.Hosts.Order, pathOrders, body, acceptable)
	})
	it.sink.Check(CheckOrderCreate, ok)

	debug := map[string]any{
		"productId": st.ProductID,
		"variantId": string(st.VariantID),
		"price":     st.Price.String(),
	}
	switch {
	case err != nil:
		se := it.requestFailed(StepOrder, "order create failed", resp, err)
		se.Fields = debug
		return se
	case !ok:
		se := it.fail(StepOrder, KindRetryExhausted, fmt.Sprintf("order create not 200 after %d attempts", policy.MaxAttempts), resp, nil)
		se.Fields = debug
		return se
	}

	orderID := resp.JSON("orderId")
	if orderID.Type == gjson.Null || orderID.String() == "" {
		return it.fail(StepOrder, KindDataShape, "orderId missing", resp, nil)
	}
	st.OrderID = orderID.String()
	return nil
}

func (it *iteration) initiatePayment(ctx context.Context) error {
	body := paymentReadyBody{OrderID: it.state.OrderID, Amount: it.state.Price}
	policy := it.opt.PaymentRetry
	policy.OnFailure = func() { it.sink.Add(metrics.CounterPaymentReadyRetryFailures, 1) }

	resp, ok, err := runner.Retry(ctx, policy, func(ctx context.Context, acceptable []int) (*httpclient.Response, error) {
		return it.do(ctx, StepPayment, http.MethodPost, it.opt.Hosts.Payment, pathPaymentReady, body, acceptable)
	})
	fields := map[string]any{"orderId": it.state.OrderID}
	switch {
	case err != nil:
		se := it.requestFailed(StepPayment, "payments/ready failed", resp, err)
		se.Fields = fields
		return se
	case !ok:
		se := it.fail(StepPayment, KindRetryExhausted, fmt.Sprintf("payments/ready not 200 after %d attempts", policy.MaxAttempts), resp, nil)
		se.Fields = fields
		return se
	}
	return nil
}
