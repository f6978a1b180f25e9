package app

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/workledger/workledger/pkg/backend"
	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
	"github.com/workledger/workledger/pkg/metrics"
)

const (
	headerRequestID = "X-Request-ID"
	// headerDegraded is set on entity responses served by the stub store.
	headerDegraded = "X-Data-Degraded"
	headerServedBy = "X-Served-By"
)

// Router builds the HTTP routes.
func (a *App) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(a.requestID)
	r.Use(a.httpMetrics.Middleware)

	r.Handle("/metrics", metrics.Handler(a.gatherer)).Methods(http.MethodGet)
	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/status", a.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/status/watch", a.handleWatch).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/switch", a.handleSwitch).Methods(http.MethodPost)
	admin.HandleFunc("/strategy", a.handleStrategy).Methods(http.MethodPost)
	admin.HandleFunc("/readonly", a.handleReadOnly).Methods(http.MethodPost)
	admin.HandleFunc("/stores/{id}/probe", a.handleProbe).Methods(http.MethodPost)
	admin.HandleFunc("/stores/{id}/{action:enable|disable}", a.handleSetEnabled).Methods(http.MethodPost)

	api.HandleFunc("/employees/{id:[0-9]+}/transfer", a.handleTransfer).Methods(http.MethodPost)
	api.HandleFunc("/{kind}", a.handleList).Methods(http.MethodGet)
	api.HandleFunc("/{kind}", a.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/{kind}/{id:[0-9]+}", a.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/{kind}/{id:[0-9]+}", a.handleUpdate).Methods(http.MethodPut)
	api.HandleFunc("/{kind}/{id:[0-9]+}", a.handleDelete).Methods(http.MethodDelete)

	return r
}

func (a *App) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		a.log.Debug("http request", "method", r.Method, "path", r.URL.Path, "requestId", id)
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps a registry or store error to an HTTP status.
func statusFor(err error) int {
	switch {
	case backend.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, constants.ErrNotFound), errors.Is(err, constants.ErrStoreNotFound):
		return http.StatusNotFound
	case errors.Is(err, constants.ErrUnknownKind),
		errors.Is(err, constants.ErrInvalidEntity),
		errors.Is(err, constants.ErrUnknownStrategy):
		return http.StatusBadRequest
	case errors.Is(err, constants.ErrReadOnly), errors.Is(err, constants.ErrStoreDisabled):
		return http.StatusConflict
	}
	var be *backend.Error
	if errors.As(err, &be) && be.Class == driver.ClassPermanent {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (a *App) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Warn("request failed", "method", r.Method, "path", r.URL.Path,
			"status", status, "requestId", w.Header().Get(headerRequestID), "error", err)
	}
	respondError(w, status, err.Error())
}

func markServed(w http.ResponseWriter, res backend.Result) {
	if res.StoreID != "" {
		w.Header().Set(headerServedBy, res.StoreID)
	}
	if res.Degraded {
		w.Header().Set(headerDegraded, "true")
	}
}
