package shopstub_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/torosent/shopflow/internal/shopstub"
)

func call(t *testing.T, srv *httptest.Server, method, host, path, token, body string) (int, gjson.Result) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Host = host
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, gjson.ParseBytes(data)
}

func TestRoutesByHostAndRequiresAuth(t *testing.T) {
	srv := httptest.NewServer(shopstub.New(shopstub.Options{}))
	defer srv.Close()

	if status, _ := call(t, srv, "GET", "cart-dev.example.com", "/api/v2/cart", "", ""); status != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", status)
	}
	if status, _ := call(t, srv, "GET", "nowhere.example.com", "/api/v2/cart", "t", ""); status != http.StatusMisdirectedRequest {
		t.Errorf("unknown host status = %d, want 421", status)
	}
	// The cart path does not exist on the product host.
	if status, _ := call(t, srv, "GET", "product-dev.example.com", "/api/v2/cart", "t", ""); status != http.StatusNotFound {
		t.Errorf("wrong host status = %d, want 404", status)
	}
	status, body := call(t, srv, "GET", "product-dev.example.com", "/api/v2/products?page=1&size=20", "t", "")
	if status != http.StatusOK || body.Get("content.0.productId").String() == "" {
		t.Errorf("listing = %d %s", status, body.Raw)
	}
}

func TestEventChainConfirmsAndClearsCart(t *testing.T) {
	stub := shopstub.New(shopstub.Options{ConfirmAfterReads: 1})
	srv := httptest.NewServer(stub)
	defer srv.Close()
	product := shopstub.DefaultProduct()

	status, _ := call(t, srv, "POST", "cart-dev.example.com", "/api/v2/cart", "u1",
		`{"productId":"`+product.ProductID+`","variantId":"V1","quantity":1}`)
	if status != http.StatusCreated {
		t.Fatalf("cart add status = %d", status)
	}
	status, created := call(t, srv, "POST", "order-dev.example.com", "/api/v2/orders", "u1",
		`{"addressId":null,"totalAmount":15000,"items":[{"productId":"`+product.ProductID+`","quantity":1}]}`)
	orderID := created.Get("orderId").String()
	if status != http.StatusOK || orderID == "" {
		t.Fatalf("order create = %d %s", status, created.Raw)
	}

	_, got := call(t, srv, "GET", "order-dev.example.com", "/api/v2/orders/"+orderID, "u1", "")
	if got.Get("status").String() != "PENDING" {
		t.Errorf("unpaid order status = %s", got.Get("status"))
	}
	if status, _ := call(t, srv, "POST", "payment-dev.example.com", "/api/v2/payments/ready", "u1",
		`{"orderId":"`+orderID+`","amount":15000}`); status != http.StatusOK {
		t.Fatalf("payment ready status = %d", status)
	}

	_, got = call(t, srv, "GET", "order-dev.example.com", "/api/v2/orders/"+orderID, "u1", "")
	if got.Get("status").String() == "CONFIRMED" {
		t.Error("order confirmed before ConfirmAfterReads reads")
	}
	_, got = call(t, srv, "GET", "order-dev.example.com", "/api/v2/orders/"+orderID, "u1", "")
	if got.Get("status").String() != "CONFIRMED" {
		t.Errorf("order status = %s, want CONFIRMED", got.Get("status"))
	}
	if stub.CartSize("u1") != 0 {
		t.Errorf("cart not emptied by confirmation")
	}

	if status, _ := call(t, srv, "GET", "order-dev.example.com", "/api/v2/orders/"+orderID, "someone-else", ""); status != http.StatusNotFound {
		t.Errorf("foreign order read status = %d, want 404", status)
	}
}

func TestScriptedOrderFailures(t *testing.T) {
	srv := httptest.NewServer(shopstub.New(shopstub.Options{OrderCreateStatuses: []int{503, 404}}))
	defer srv.Close()

	body := `{"totalAmount":1,"items":[{"productId":"p","quantity":1}]}`
	for _, want := range []int{503, 404, 200} {
		if status, _ := call(t, srv, "POST", "order-dev.example.com", "/api/v2/orders", "u", body); status != want {
			t.Errorf("order create status = %d, want %d", status, want)
		}
	}
}

func TestBulkDeleteRemovesMatchingLines(t *testing.T) {
	stub := shopstub.New(shopstub.Options{})
	srv := httptest.NewServer(stub)
	defer srv.Close()
	id := shopstub.DefaultProduct().ProductID

	call(t, srv, "POST", "cart-dev.example.com", "/api/v2/cart", "u", `{"productId":"`+id+`","variantId":"V1","quantity":1}`)
	call(t, srv, "POST", "cart-dev.example.com", "/api/v2/cart", "u", `{"productId":"`+id+`","variantId":null,"quantity":2}`)
	if stub.CartSize("u") != 2 {
		t.Fatalf("cart size = %d, want 2", stub.CartSize("u"))
	}

	status, _ := call(t, srv, "DELETE", "cart-dev.example.com", "/api/v2/cart/items/bulk", "u", `[{"productId":"`+id+`","variantId":"V1"}]`)
	if status != http.StatusNoContent {
		t.Fatalf("bulk delete status = %d", status)
	}
	if stub.CartSize("u") != 1 {
		t.Errorf("cart size = %d, want 1 (only the V1 line removed)", stub.CartSize("u"))
	}
}
