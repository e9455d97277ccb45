package flow

import (
	"context"
	"fmt"
	"net/http"

	"github.com/torosent/shopflow/internal/config"
	"github.com/torosent/shopflow/internal/httpclient"
	"github.com/torosent/shopflow/internal/metrics"
	"github.com/torosent/shopflow/internal/runner"
)

func (it *iteration) settleCart(ctx context.Context) error {
	if it.opt.CartClearMode == config.CartClearManual {
		return it.clearCartManually(ctx)
	}
	return it.awaitEventChain(ctx)
}

func (it *iteration) clearCartManually(ctx context.Context) error {
	cart := it.opt.Hosts.Cart
	resp, err := it.do(ctx, StepSettle, http.MethodDelete, cart, pathCartBulk, it.state.Cart, nil)
	if !it.sink.Check(CheckCartClear, err == nil && resp.Status == http.StatusNoContent) {
		if err != nil {
			return it.requestFailed(StepSettle, "cart clear failed", resp, err)
		}
		return it.fail(StepSettle, KindUnexpectedStatus, "cart clear not 204", resp, nil)
	}

	resp, err = it.do(ctx, StepVerify, http.MethodGet, cart, pathCart, nil, nil)
	if !it.sink.Check(CheckCartEmpty, err == nil && resp.Status == http.StatusOK) {
		if err != nil {
			return it.requestFailed(StepVerify, "cart re-read failed", resp, err)
		}
		return it.fail(StepVerify, KindUnexpectedStatus, "cart re-read not 200", resp, nil)
	}
	if items, ok := resp.Array(); !ok || len(items) != 0 {
		return it.fail(StepVerify, KindDataShape, "cart not empty after clear", resp, nil)
	}
	return nil
}

// awaitEventChain waits for payment processing to confirm the order and then,
// independently, for the cart to be emptied. Both waits always run; a timeout
// in either ends the iteration without completing the transaction.
func (it *iteration) awaitEventChain(ctx context.Context) error {
	orderPath := pathOrders + "/" + pathEscape(it.state.OrderID)
	confirmed := runner.PollUntil(ctx, it.opt.EventWait,
		func(ctx context.Context) (*httpclient.Response, error) {
			return it.do(ctx, StepSettle, http.MethodGet, it.opt.Hosts.Order, orderPath, nil, []int{http.StatusOK})
		},
		func(r *httpclient.Response) bool {
			return r.Status == http.StatusOK && r.JSON("status").String() == "CONFIRMED"
		})
	if err := ctx.Err(); err != nil {
		return it.fail(StepSettle, KindConvergenceTimeout, "wait for order confirmation interrupted", nil, err)
	}
	if !confirmed {
		it.sink.Add(metrics.CounterOrderConfirmedWaitTimeouts, 1)
	}
	it.sink.Check(CheckOrderConfirmed, confirmed)

	emptied := runner.PollUntil(ctx, it.opt.EventWait,
		func(ctx context.Context) (*httpclient.Response, error) {
			return it.do(ctx, StepVerify, http.MethodGet, it.opt.Hosts.Cart, pathCart, nil, nil)
		},
		func(r *httpclient.Response) bool {
			items, ok := r.Array()
			return r.Status == http.StatusOK && ok && len(items) == 0
		})
	if err := ctx.Err(); err != nil {
		return it.fail(StepVerify, KindConvergenceTimeout, "wait for cart clear interrupted", nil, err)
	}
	if !emptied {
		it.sink.Add(metrics.CounterCartEventClearWaitTimeouts, 1)
	}
	it.sink.Check(CheckCartEmptyEvent, emptied)

	fields := map[string]any{
		"orderId":         it.state.OrderID,
		"order_confirmed": confirmed,
		"cart_emptied":    emptied,
	}
	switch {
	case !confirmed:
		se := it.fail(StepSettle, KindConvergenceTimeout,
			fmt.Sprintf("order not CONFIRMED within %s", it.opt.EventWait.Timeout), nil, nil)
		se.Fields = fields
		return se
	case !emptied:
		se := it.fail(StepVerify, KindConvergenceTimeout,
			fmt.Sprintf("cart not empty within %s after event chain", it.opt.EventWait.Timeout), nil, nil)
		se.Fields = fields
		return se
	}
	return nil
}
