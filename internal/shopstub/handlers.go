package shopstub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const (
	statusPending   = "PENDING"
	statusPaid      = "PAYMENT_READY"
	statusConfirmed = "CONFIRMED"
)

type handlerFunc func(w http.ResponseWriter, r *http.Request, token string)

// handle registers fn and counts its hits under "METHOD path".
func (s *Server) handle(router chi.Router, method, path string, fn handlerFunc) {
	route := method + " " + path
	router.MethodFunc(method, path, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[route]++
		s.mu.Unlock()
		fn(w, r, bearer(r))
	})
}

func (s *Server) userRoutes() http.Handler {
	router := chi.NewRouter()
	s.handle(router, http.MethodGet, "/api/v2/users/me/addresses", func(w http.ResponseWriter, r *http.Request, token string) {
		s.mu.Lock()
		list := append([]address{}, s.shopperLocked(token).addresses...)
		s.mu.Unlock()
		respondJSON(w, http.StatusOK, list)
	})
	s.handle(router, http.MethodPost, "/api/v2/users/me/addresses", func(w http.ResponseWriter, r *http.Request, token string) {
		if status := s.opts.AddressCreateStatus; status != 0 && status != http.StatusCreated {
			respondJSON(w, status, map[string]any{"error": "address rejected"})
			return
		}
		body, ok := readJSON(w, r)
		if !ok {
			return
		}
		s.mu.Lock()
		s.seq++
		addr := address{
			AddressID:      idFor("addr", s.seq),
			ZipCode:        body.Get("zipCode").String(),
			Address:        body.Get("address").String(),
			DetailAddress:  body.Get("detailAddress").String(),
			Recipient:      body.Get("recipient").String(),
			RecipientPhone: body.Get("recipientPhone").String(),
			IsDefault:      body.Get("isDefault").Bool(),
		}
		sh := s.shopperLocked(token)
		sh.addresses = append(sh.addresses, addr)
		s.mu.Unlock()
		respondJSON(w, http.StatusCreated, addr)
	})
	return router
}

func (s *Server) productRoutes() http.Handler {
	router := chi.NewRouter()
	s.handle(router, http.MethodGet, "/api/v2/products", func(w http.ResponseWriter, r *http.Request, _ string) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("size"))
		if size <= 0 {
			size = 20
		}
		content := s.opts.Products
		switch {
		case page > 1:
			content = nil
		case len(content) > size:
			content = content[:size]
		}
		if content == nil {
			content = []Product{}
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"content":       content,
			"page":          max(page, 1),
			"size":          size,
			"totalElements": len(s.opts.Products),
		})
	})
	s.handle(router, http.MethodGet, "/api/v2/products/{id}", func(w http.ResponseWriter, r *http.Request, _ string) {
		if p, ok := s.product(chi.URLParam(r, "id")); ok {
			respondJSON(w, http.StatusOK, p)
			return
		}
		respondJSON(w, http.StatusNotFound, map[string]any{"error": "product not found"})
	})
	return router
}

func (s *Server) cartRoutes() http.Handler {
	router := chi.NewRouter()
	s.handle(router, http.MethodPost, "/api/v2/cart", func(w http.ResponseWriter, r *http.Request, token string) {
		body, ok := readJSON(w, r)
		if !ok {
			return
		}
		p, found := s.product(body.Get("productId").String())
		if !found {
			respondJSON(w, http.StatusNotFound, map[string]any{"error": "product not found"})
			return
		}
		var variantID *string
		unitPrice := p.Price
		if v := body.Get("variantId"); v.Exists() && v.Type != gjson.Null {
			id := v.String()
			variantID = &id
			for _, variant := range p.Variants {
				if variant.VariantID == id && variant.Price != 0 {
					unitPrice = variant.Price
				}
			}
		}
		quantity := int(body.Get("quantity").Int())
		if quantity <= 0 {
			respondJSON(w, http.StatusBadRequest, map[string]any{"error": "quantity must be positive"})
			return
		}

		s.mu.Lock()
		sh := s.shopperLocked(token)
		s.seq++
		line := cartLine{
			CartItemID:   idFor("ci", s.seq),
			ProductID:    p.ProductID,
			VariantID:    variantID,
			ProductTitle: p.Title,
			Quantity:     quantity,
			UnitPrice:    unitPrice,
		}
		sh.cart = append(sh.cart, line)
		s.mu.Unlock()
		respondJSON(w, http.StatusCreated, map[string]any{"cartItemId": line.CartItemID})
	})
	s.handle(router, http.MethodGet, "/api/v2/cart", func(w http.ResponseWriter, r *http.Request, token string) {
		s.mu.Lock()
		lines := append([]cartLine{}, s.shopperLocked(token).cart...)
		s.mu.Unlock()
		respondJSON(w, http.StatusOK, lines)
	})
	s.handle(router, http.MethodDelete, "/api/v2/cart/items/bulk", func(w http.ResponseWriter, r *http.Request, token string) {
		body, ok := readJSON(w, r)
		if !ok {
			return
		}
		if !body.IsArray() {
			respondJSON(w, http.StatusBadRequest, map[string]any{"error": "expected an array of items"})
			return
		}
		s.mu.Lock()
		sh := s.shopperLocked(token)
		for _, item := range body.Array() {
			sh.cart = removeLine(sh.cart, item.Get("productId").String(), item.Get("variantId"))
		}
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return router
}

func removeLine(cart []cartLine, productID string, variant gjson.Result) []cartLine {
	out := cart[:0]
	for _, line := range cart {
		sameVariant := (line.VariantID == nil && variant.Type == gjson.Null) ||
			(line.VariantID != nil && variant.String() == *line.VariantID)
		if line.ProductID == productID && (sameVariant || !variant.Exists()) {
			continue
		}
		out = append(out, line)
	}
	return out
}

func (s *Server) orderRoutes() http.Handler {
	router := chi.NewRouter()
	s.handle(router, http.MethodPost, "/api/v2/orders", func(w http.ResponseWriter, r *http.Request, token string) {
		s.mu.Lock()
		call := s.orderCreates
		s.orderCreates++
		s.mu.Unlock()
		if call < len(s.opts.OrderCreateStatuses) {
			status := s.opts.OrderCreateStatuses[call]
			respondJSON(w, status, map[string]any{"error": fmt.Sprintf("scripted failure %d", status)})
			return
		}

		body, ok := readJSON(w, r)
		if !ok {
			return
		}
		items := body.Get("items")
		if !items.IsArray() || len(items.Array()) == 0 {
			respondJSON(w, http.StatusBadRequest, map[string]any{"error": "items required"})
			return
		}
		o := &order{
			OrderID:     uuid.NewString(),
			Status:      statusPending,
			TotalAmount: body.Get("totalAmount").Raw,
			owner:       token,
		}
		s.mu.Lock()
		s.orders[o.OrderID] = o
		s.mu.Unlock()
		respondJSON(w, http.StatusOK, map[string]any{"orderId": o.OrderID})
	})
	s.handle(router, http.MethodGet, "/api/v2/orders/{id}", func(w http.ResponseWriter, r *http.Request, token string) {
		s.mu.Lock()
		o, ok := s.orders[chi.URLParam(r, "id")]
		if !ok || o.owner != token {
			s.mu.Unlock()
			respondJSON(w, http.StatusNotFound, map[string]any{"error": "order not found"})
			return
		}
		s.advanceLocked(o)
		view := *o
		s.mu.Unlock()
		respondJSON(w, http.StatusOK, view)
	})
	return router
}

// advanceLocked plays the asynchronous event chain: a paid order becomes
// CONFIRMED after ConfirmAfterReads reads and the buyer's cart is emptied.
func (s *Server) advanceLocked(o *order) {
	if !o.paid || o.Status == statusConfirmed || s.opts.NeverConfirm {
		return
	}
	o.reads++
	if o.reads <= s.opts.ConfirmAfterReads {
		return
	}
	o.Status = statusConfirmed
	if !s.opts.KeepCartOnConfirm {
		s.shopperLocked(o.owner).cart = nil
	}
}

func (s *Server) paymentRoutes() http.Handler {
	router := chi.NewRouter()
	s.handle(router, http.MethodPost, "/api/v2/payments/ready", func(w http.ResponseWriter, r *http.Request, token string) {
		s.mu.Lock()
		call := s.paymentCalls
		s.paymentCalls++
		s.mu.Unlock()
		if call < len(s.opts.PaymentReadyStatuses) {
			status := s.opts.PaymentReadyStatuses[call]
			respondJSON(w, status, map[string]any{"error": fmt.Sprintf("scripted failure %d", status)})
			return
		}

		body, ok := readJSON(w, r)
		if !ok {
			return
		}
		s.mu.Lock()
		o, found := s.orders[body.Get("orderId").String()]
		if !found || o.owner != token {
			s.mu.Unlock()
			respondJSON(w, http.StatusNotFound, map[string]any{"error": "order not found"})
			return
		}
		o.paid = true
		o.Status = statusPaid
		if s.opts.ClearCartOnPayment {
			s.shopperLocked(token).cart = nil
		}
		s.mu.Unlock()
		respondJSON(w, http.StatusOK, map[string]any{
			"orderId":    o.OrderID,
			"amount":     body.Get("amount").Value(),
			"paymentKey": uuid.NewString(),
		})
	})
	return router
}

func (s *Server) product(id string) (Product, bool) {
	for _, p := range s.opts.Products {
		if p.ProductID == id {
			return p, true
		}
	}
	return Product{}, false
}

func readJSON(w http.ResponseWriter, r *http.Request) (gjson.Result, bool) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || !gjson.ValidBytes(data) {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return gjson.Result{}, false
	}
	return gjson.ParseBytes(data), true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func idFor(prefix string, n int) string {
	return fmt.Sprintf("%s-%d", prefix, n)
}
