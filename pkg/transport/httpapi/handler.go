// Package httpapi adapts broker operations to HTTP.
//
// Routes:
//
//	GET    /{channel}/{key}           get
//	POST   /{channel}/{key}           create
//	PUT    /{channel}/{key}           update
//	DELETE /{channel}/{key}           delete (Source-Version required)
//	POST   /{channel}?type=..&url=..  subscribe
//	DELETE /{channel}                 unsubscribe
//	GET    /{channel}                 list subscriptions
//
// Callers identify with the Node-Token and Node-Secret headers. Request
// headers starting with X- are stored with the message.
package httpapi

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/eblade/dbmq/pkg/broker"
	"github.com/eblade/dbmq/pkg/delivery"
	"github.com/eblade/dbmq/pkg/message"
	"github.com/eblade/dbmq/pkg/node"
)

// Request headers.
const (
	HeaderNodeToken   = "Node-Token"
	HeaderNodeSecret  = "Node-Secret"
	HeaderClientToken = "Client-Token" // alias of Node-Token
)

// PassthroughPrefix marks request headers stored with the message.
const PassthroughPrefix = "X-"

// Config configures the HTTP handler.
type Config struct {
	// Logger for logging. If nil, uses slog.Default().
	Logger *slog.Logger

	// MaxBodyBytes limits message payloads (default: 16 MiB).
	MaxBodyBytes int64

	// Metrics, if set, is served at /metrics.
	Metrics http.Handler
}

type handler struct {
	broker  *broker.Broker
	log     *slog.Logger
	maxBody int64
}

// NewHandler returns the HTTP API for b.
func NewHandler(b *broker.Broker, cfg *Config) http.Handler {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 16 << 20
	}

	h := &handler{
		broker:  b,
		log:     cfg.Logger,
		maxBody: cfg.MaxBodyBytes,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.handleHealth)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/{channel}", func(r chi.Router) {
		r.Get("/", h.handleListSubscriptions)
		r.Post("/", h.handleSubscribe)
		r.Delete("/", h.handleUnsubscribe)

		r.Get("/{key}", h.handleGet)
		r.Post("/{key}", h.handleCreate)
		r.Put("/{key}", h.handleUpdate)
		r.Delete("/{key}", h.handleDelete)
	})

	return r
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"node", credentials(r).Token,
		)
	}
	return http.HandlerFunc(fn)
}

func credentials(r *http.Request) node.Credentials {
	token := r.Header.Get(HeaderNodeToken)
	if token == "" {
		token = r.Header.Get(HeaderClientToken)
	}
	return node.Credentials{
		Token:  token,
		Secret: r.Header.Get(HeaderNodeSecret),
	}
}

// passthrough collects the X- headers of r.
func passthrough(r *http.Request) message.Headers {
	out := make(message.Headers)
	for k, vs := range r.Header {
		if strings.HasPrefix(k, PassthroughPrefix) && len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

func (h *handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
}

func setVersionHeaders(w http.ResponseWriter, m *message.Message) {
	w.Header().Set(delivery.HeaderVersion, strconv.FormatUint(m.Version, 10))
	w.Header().Set(delivery.HeaderStatus, m.Status.String())
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok\n")
}

// handleGet is the HTTP handler for the GET /{channel}/{key} route.
func (h *handler) handleGet(w http.ResponseWriter, r *http.Request) {
	m, err := h.broker.Get(r.Context(), credentials(r), chi.URLParam(r, "channel"), chi.URLParam(r, "key"))
	if err != nil {
		h.err(w, r, err)
		return
	}

	for k, v := range m.Headers {
		w.Header().Set(k, v)
	}
	setVersionHeaders(w, m)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(m.Data)
}

// handleCreate is the HTTP handler for the POST /{channel}/{key} route.
func (h *handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	data, err := h.readBody(w, r)
	if err != nil {
		h.err(w, r, err)
		return
	}

	m, err := h.broker.Create(r.Context(), credentials(r),
		chi.URLParam(r, "channel"), chi.URLParam(r, "key"), passthrough(r), data)
	if err != nil {
		h.err(w, r, err)
		return
	}

	setVersionHeaders(w, m)
	w.WriteHeader(http.StatusCreated)
}

// handleUpdate is the HTTP handler for the PUT /{channel}/{key} route.
// Responds 202 when the new version is held pending replication.
func (h *handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	data, err := h.readBody(w, r)
	if err != nil {
		h.err(w, r, err)
		return
	}

	headers := passthrough(r)
	if v := r.Header.Get(message.HeaderSourceVersion); v != "" {
		headers[message.HeaderSourceVersion] = v
	}

	m, err := h.broker.Update(r.Context(), credentials(r),
		chi.URLParam(r, "channel"), chi.URLParam(r, "key"), headers, data)
	if err != nil {
		h.err(w, r, err)
		return
	}

	setVersionHeaders(w, m)
	if m.Status == message.StatusPending {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleDelete is the HTTP handler for the DELETE /{channel}/{key} route.
func (h *handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	raw := r.Header.Get(message.HeaderSourceVersion)
	version, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		h.err(w, r, fmt.Errorf("%w: %s header must be a version number, got %q",
			errBadRequest, message.HeaderSourceVersion, raw))
		return
	}

	_, err = h.broker.Delete(r.Context(), credentials(r),
		chi.URLParam(r, "channel"), chi.URLParam(r, "key"), version, passthrough(r))
	if err != nil {
		h.err(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleSubscribe is the HTTP handler for the POST /{channel} route.
func (h *handler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	_, err := h.broker.Subscribe(r.Context(), credentials(r),
		chi.URLParam(r, "channel"), q.Get("type"), q.Get("url"))
	if err != nil {
		h.err(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleUnsubscribe is the HTTP handler for the DELETE /{channel} route.
func (h *handler) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := h.broker.Unsubscribe(r.Context(), credentials(r), chi.URLParam(r, "channel")); err != nil {
		h.err(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListSubscriptions is the HTTP handler for the GET /{channel} route.
func (h *handler) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.broker.Subscriptions(r.Context(), credentials(r), chi.URLParam(r, "channel"))
	if err != nil {
		h.err(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, subs)
}
