package gateway

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"

	"github.com/alovak/cardflow-bridge/internal/iso8583"
)

// API is a HTTP API for the gateway service
type API struct {
	gateway     *Service
	defaultWait time.Duration
	maxWait     time.Duration
	submitMW    []func(http.Handler) http.Handler
}

func NewAPI(gateway *Service, defaultWait, maxWait time.Duration) *API {
	return &API{
		gateway:     gateway,
		defaultWait: defaultWait,
		maxWait:     maxWait,
	}
}

// UseOnSubmit adds middleware that only wraps the submit route.
func (a *API) UseOnSubmit(mw ...func(http.Handler) http.Handler) {
	a.submitMW = append(a.submitMW, mw...)
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Route("/api/authorization", func(r chi.Router) {
		r.With(a.submitMW...).Post("/", a.submit)
		r.Get("/{correlationID}", a.status)
	})
}

func (a *API) submit(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := sonic.ConfigStd.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "malformed json: "+err.Error(), http.StatusBadRequest)
		return
	}

	req, err := in.Request()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, err)
		return
	}

	wait := a.defaultWait
	if v := r.URL.Query().Get("wait"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			http.Error(w, "wait must be a non-negative duration", http.StatusBadRequest)
			return
		}
		wait = d
	}
	if a.maxWait > 0 && wait > a.maxWait {
		wait = a.maxWait
	}

	result, err := a.gateway.Submit(r.Context(), req, wait)
	switch {
	case err == nil:
	case errors.Is(err, iso8583.ErrCodec), errors.Is(err, iso8583.ErrMissingField):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case errors.Is(err, ErrPublish):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeResult(w, result)
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "correlationID")
	// chi matches on RawPath when the path carries escapes such as %2F
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(id)
		if err != nil {
			http.Error(w, "malformed correlation id", http.StatusBadRequest)
			return
		}
		id = unescaped
	}

	result, err := a.gateway.Status(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeResult(w, result)
}

func writeResult(w http.ResponseWriter, result *Result) {
	code := http.StatusOK
	if result.Pending() {
		code = http.StatusAccepted
	}
	writeJSON(w, code, result)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	if verr, ok := v.(*ValidationError); ok {
		v = struct {
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		}{"invalid input", verr.Fields}
	} else if err, ok := v.(error); ok {
		v = struct {
			Error string `json:"error"`
		}{err.Error()}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	sonic.ConfigStd.NewEncoder(w).Encode(v)
}
