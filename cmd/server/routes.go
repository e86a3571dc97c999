package main

import (
	"fmt"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"

	callbackHandler "github.com/kevin07696/payment-reconciler/internal/handlers/callback"
	checkoutHandler "github.com/kevin07696/payment-reconciler/internal/handlers/checkout"
	cronHandler "github.com/kevin07696/payment-reconciler/internal/handlers/cron"
	paymentHandler "github.com/kevin07696/payment-reconciler/internal/handlers/payment"
	"github.com/kevin07696/payment-reconciler/internal/middleware"
	pkgmiddleware "github.com/kevin07696/payment-reconciler/pkg/middleware"
	"github.com/kevin07696/payment-reconciler/pkg/observability"
	"github.com/kevin07696/payment-reconciler/pkg/shutdown"
)

// CallbackPath is the route registered as callback_url at the gateway
const CallbackPath = "/api/v1/callbacks/unzerdirect"

type routerDeps struct {
	callback    *callbackHandler.Handler
	payments    *paymentHandler.Handler
	checkout    *checkoutHandler.Handler
	cron        *cronHandler.SyncHandler
	adminAuth   *middleware.AdminAuth
	rateLimiter *pkgmiddleware.RateLimiter
	headers     *middleware.SecurityHeaders
	inflight    *shutdown.InFlightTracker
	logger      *zap.Logger
}

type route struct {
	method  string
	pattern string
	handler runtime.HandlerFunc
}

// newRouter mounts the REST surface on a grpc-gateway mux
func newRouter(d routerDeps) (http.Handler, error) {
	mux := runtime.NewServeMux()

	admin := d.adminAuth.RequireScope(middleware.ScopeAdmin)
	storefront := d.adminAuth.RequireScope(middleware.ScopeCheckout)

	routes := []route{
		{http.MethodPost, CallbackPath, wrap(plain(d.callback.HandleCallback), d.rateLimiter.Middleware)},

		{http.MethodPost, "/api/v1/payments/batch", wrap(d.payments.Batch, admin)},
		{http.MethodGet, "/api/v1/payments/{id}", wrap(d.payments.GetPayment, admin)},
		{http.MethodPost, "/api/v1/payments/{id}/capture", wrap(d.payments.Capture, admin)},
		{http.MethodPost, "/api/v1/payments/{id}/cancel", wrap(d.payments.Cancel, admin)},
		{http.MethodPost, "/api/v1/payments/{id}/refund", wrap(d.payments.Refund, admin)},
		{http.MethodPost, "/api/v1/payments/{id}/sync", wrap(d.payments.Sync, admin)},
		{http.MethodPost, "/api/v1/payments/{id}/import", wrap(d.payments.Import, admin)},

		{http.MethodPost, "/api/v1/checkout", wrap(d.checkout.StartCheckout, storefront)},
		{http.MethodPost, "/api/v1/checkout/{id}/order", wrap(d.checkout.AttachOrder, storefront)},
		{http.MethodGet, "/api/v1/checkout/{id}/basket", wrap(d.checkout.RestoreBasket, storefront)},

		{http.MethodPost, "/cron/sync-payments", plain(d.cron.SyncPayments)},
	}

	for _, rt := range routes {
		label := rt.method + " " + rt.pattern
		measured := wrap(rt.handler, func(next http.Handler) http.Handler {
			return observability.HTTPMiddleware(label, next)
		})
		if err := mux.HandlePath(rt.method, rt.pattern, measured); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
		d.logger.Debug("Route registered",
			zap.String("method", rt.method),
			zap.String("pattern", rt.pattern))
	}

	var handler http.Handler = mux
	handler = d.inflight.Middleware(handler)
	handler = d.headers.Middleware(handler)
	handler = middleware.RequestID(handler)
	return handler, nil
}

// plain adapts a handler that takes no path parameters
func plain(h http.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		h(w, r)
	}
}

// wrap applies middleware to a path handler. The first middleware runs first.
func wrap(h runtime.HandlerFunc, mw ...func(http.Handler) http.Handler) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
		var next http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h(w, r, pathParams)
		})
		for i := len(mw) - 1; i >= 0; i-- {
			next = mw[i](next)
		}
		next.ServeHTTP(w, r)
	}
}
