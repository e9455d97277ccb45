// Package shopstub is an in-memory stand-in for the product, cart, order,
// payment and user backends. It routes on the Host header the same way the
// gateway does and can be scripted to fail in the ways the checkout flow has
// to tolerate.
package shopstub

import (
	"net/http"
	"strings"
	"sync"

	"github.com/torosent/shopflow/internal/config"
)

// Variant is one purchasable option of a product.
type Variant struct {
	VariantID  string `json:"variantId"`
	OptionName string `json:"optionName"`
	Price      int64  `json:"price"`
}

// Product is a catalogue entry as served by the product detail endpoint.
type Product struct {
	ProductID    string    `json:"productId"`
	Title        string    `json:"title"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	Price        int64     `json:"price,omitempty"`
	Variants     []Variant `json:"variants"`
}

// DefaultProduct is the item the flow buys with default settings.
func DefaultProduct() Product {
	return Product{
		ProductID:    config.DefaultProductID,
		Title:        "Load Test Tee",
		ThumbnailURL: "https://cdn.example.com/p/1001.png",
		Price:        15000,
		Variants:     []Variant{{VariantID: "V1", OptionName: "Black / M", Price: 15000}},
	}
}

// Options script the stub. The zero value serves DefaultProduct and answers
// every call successfully.
type Options struct {
	Hosts    config.Hosts
	Products []Product

	// Statuses returned by successive order-create calls before they start
	// succeeding with 200.
	OrderCreateStatuses []int
	// Statuses returned by successive payment-ready calls before 200.
	PaymentReadyStatuses []int
	// AddressCreateStatus overrides the 201 of address creation.
	AddressCreateStatus int

	// A paid order is reported CONFIRMED after this many reads.
	ConfirmAfterReads int
	// NeverConfirm keeps every order short of CONFIRMED.
	NeverConfirm bool
	// Confirmation empties the buyer's cart unless KeepCartOnConfirm is set.
	KeepCartOnConfirm bool
	// ClearCartOnPayment empties the cart as soon as payment is ready.
	ClearCartOnPayment bool
}

type address struct {
	AddressID      string `json:"addressId"`
	ZipCode        string `json:"zipCode"`
	Address        string `json:"address"`
	DetailAddress  string `json:"detailAddress"`
	Recipient      string `json:"recipient"`
	RecipientPhone string `json:"recipientPhone"`
	IsDefault      bool   `json:"isDefault"`
}

type cartLine struct {
	CartItemID   string  `json:"cartItemId"`
	ProductID    string  `json:"productId"`
	VariantID    *string `json:"variantId"`
	ProductTitle string  `json:"productTitle"`
	Quantity     int     `json:"quantity"`
	UnitPrice    int64   `json:"unitPrice"`
}

type order struct {
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	TotalAmount string `json:"totalAmount"`
	owner       string
	paid        bool
	reads       int
}

type shopper struct {
	addresses []address
	cart      []cartLine
}

// Server implements http.Handler for all five backends.
type Server struct {
	opts   Options
	routes map[string]http.Handler

	mu           sync.Mutex
	shoppers     map[string]*shopper
	orders       map[string]*order
	hits         map[string]int
	orderCreates int
	paymentCalls int
	seq          int
}

// New returns a stub with empty per-user state.
func New(opts Options) *Server {
	if opts.Hosts == (config.Hosts{}) {
		opts.Hosts = config.Defaults().Hosts
	}
	if len(opts.Products) == 0 {
		opts.Products = []Product{DefaultProduct()}
	}
	s := &Server{
		opts:     opts,
		shoppers: make(map[string]*shopper),
		orders:   make(map[string]*order),
		hits:     make(map[string]int),
	}
	s.routes = map[string]http.Handler{
		opts.Hosts.Product: s.productRoutes(),
		opts.Hosts.Cart:    s.cartRoutes(),
		opts.Hosts.Order:   s.orderRoutes(),
		opts.Hosts.Payment: s.paymentRoutes(),
		opts.Hosts.User:    s.userRoutes(),
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	routes, ok := s.routes[host]
	if !ok {
		respondJSON(w, http.StatusMisdirectedRequest, map[string]any{"error": "unknown host " + host})
		return
	}
	if bearer(r) == "" {
		respondJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing bearer token"})
		return
	}
	routes.ServeHTTP(w, r)
}

// Hits reports how many requests matched a route pattern such as
// "POST /api/v2/orders".
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// Addresses returns how many addresses the holder of token has saved.
func (s *Server) Addresses(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh, ok := s.shoppers[token]; ok {
		return len(sh.addresses)
	}
	return 0
}

// CartSize returns the number of lines in the token holder's cart.
func (s *Server) CartSize(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh, ok := s.shoppers[token]; ok {
		return len(sh.cart)
	}
	return 0
}

// SeedAddress stores an address for token as if it had been created earlier.
func (s *Server) SeedAddress(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh := s.shopperLocked(token)
	s.seq++
	sh.addresses = append(sh.addresses, address{AddressID: idFor("addr", s.seq), IsDefault: true})
}

func (s *Server) shopperLocked(token string) *shopper {
	sh, ok := s.shoppers[token]
	if !ok {
		sh = &shopper{}
		s.shoppers[token] = sh
	}
	return sh
}

func bearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
