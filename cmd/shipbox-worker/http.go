package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/label"
	"github.com/BearBump/ShipBox/internal/services/fulfillment"
	"github.com/BearBump/ShipBox/internal/services/reconciler"
	"github.com/BearBump/ShipBox/internal/storage/pgorders"
)

type workerHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	c *components
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}
	if opts.swaggerPath == "" {
		return errors.New("worker swagger path is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return errors.Errorf("worker swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newRouter(opts.c, opts.swaggerPath)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newRouter(c *components, swaggerPath string) http.Handler {
	h := &handlers{c: c}
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", h.readyz)
	r.Get("/stats", h.stats)
	r.Post("/trigger", h.trigger)
	r.Post("/orders/{id}/force-update", h.forceUpdate)
	r.Post("/orders/{id}/label", h.createLabel)
	r.Get("/rates", h.rates)
	r.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	if swaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, swaggerPath)
		})
		swaggerURL := "/swagger.json"
		if fi, err := os.Stat(swaggerPath); err == nil {
			swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
		}
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
	}
	return r
}

type handlers struct {
	c *components
}

type errorBody struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if h.c.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "storage not wired"})
		return
	}
	if err := h.c.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	if h.c.reconciler == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "reconciler not wired"})
		return
	}
	writeJSON(w, http.StatusOK, h.c.reconciler.Status())
}

func (h *handlers) trigger(w http.ResponseWriter, r *http.Request) {
	if h.c.reconciler == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "reconciler not wired"})
		return
	}
	h.c.reconciler.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]bool{"triggered": true})
}

func (h *handlers) forceUpdate(w http.ResponseWriter, r *http.Request) {
	if h.c.reconciler == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "reconciler not wired"})
		return
	}
	orderID := chi.URLParam(r, "id")
	res, err := h.c.reconciler.ForceUpdate(r.Context(), orderID)
	if err != nil {
		h.c.log.Warn("force update failed", zap.String("order_id", orderID), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) createLabel(w http.ResponseWriter, r *http.Request) {
	if h.c.fulfillment == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "fulfillment not wired"})
		return
	}
	orderID := chi.URLParam(r, "id")
	res, err := h.c.fulfillment.CreateLabel(r.Context(), orderID)
	if err != nil {
		var verrs label.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "label payload invalid", Fields: verrs.Fields()})
			return
		}
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pgorders.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, reconciler.ErrNoTrackingCode),
		errors.Is(err, fulfillment.ErrLabelAlreadyCreated),
		errors.Is(err, fulfillment.ErrOrderCanceled),
		errors.Is(err, pgorders.ErrTrackingCodeSet):
		return http.StatusConflict
	}
	var cerr *carrier.Error
	if errors.As(err, &cerr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *handlers) rates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "from and to are required"})
		return
	}
	weight, err := strconv.ParseFloat(q.Get("weight"), 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "weight must be a number in kg"})
		return
	}
	value := decimal.Zero
	if s := q.Get("value"); s != "" {
		if value, err = decimal.NewFromString(s); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "value must be a decimal"})
			return
		}
	}
	writeJSON(w, http.StatusOK, h.c.rates.Estimate(r.Context(), from, to, weight, value))
}
