// Command shopstub serves the in-memory fake backends on one address so the
// driver can be smoke-tested locally:
//
//	go run ./scripts/testservers/shopstub --addr :8080 --confirm-after 2
//	shopflow --base-url http://localhost:8080 --token dev --vus 3
package main

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/torosent/shopflow/internal/logging"
	"github.com/torosent/shopflow/internal/shopstub"
)

func main() {
	fs := pflag.NewFlagSet("shopstub", pflag.ExitOnError)
	addr := fs.String("addr", ":8080", "Listen address")
	confirmAfter := fs.Int("confirm-after", 0, "Order reads answered before a paid order is CONFIRMED")
	neverConfirm := fs.Bool("never-confirm", false, "Never confirm orders")
	keepCart := fs.Bool("keep-cart", false, "Do not empty the cart when an order is confirmed")
	orderFailures := fs.IntSlice("order-failures", nil, "Statuses returned by the first order-create calls")
	paymentFailures := fs.IntSlice("payment-failures", nil, "Statuses returned by the first payment-ready calls")
	logLevel := fs.String("log-level", "info", "Log level")
	_ = fs.Parse(os.Args[1:])

	logger, err := logging.New(*logLevel, "console")
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	stub := shopstub.New(shopstub.Options{
		OrderCreateStatuses:  *orderFailures,
		PaymentReadyStatuses: *paymentFailures,
		ConfirmAfterReads:    *confirmAfter,
		NeverConfirm:         *neverConfirm,
		KeepCartOnConfirm:    *keepCart,
	})

	server := &http.Server{
		Addr:              *addr,
		Handler:           chi.Chain(middleware.Recoverer, logRequests(logger)).Handler(stub),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("shopstub listening", zap.String("addr", *addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("shopstub stopped", zap.Error(err))
	}
}

func logRequests(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("host", r.Host),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}
