package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/suiperp/pkg/coins"
	"github.com/uhyunpark/suiperp/pkg/contracts"
	"github.com/uhyunpark/suiperp/pkg/crypto"
	"github.com/uhyunpark/suiperp/pkg/lifecycle"
	"github.com/uhyunpark/suiperp/pkg/metrics"
	"github.com/uhyunpark/suiperp/pkg/order"
	"github.com/uhyunpark/suiperp/pkg/rfq"
	"github.com/uhyunpark/suiperp/pkg/storage"
	"github.com/uhyunpark/suiperp/pkg/sui"
)

const (
	// maxBodyBytes bounds every request body
	maxBodyBytes = 1 << 20

	defaultJournalLimit = 100
	maxJournalLimit     = 1000
)

// Signer is the lifecycle surface exposed over HTTP. *lifecycle.Client satisfies it.
type Signer interface {
	CreateSignedOrder(req order.Request) (*lifecycle.SignedOrder, error)
	CreateSignedCancelOrder(req order.Request, parentAddress string) (*lifecycle.CancellationRequest, error)
	CreateSignedCancelOrders(symbol string, hashes []string, parentAddress string) (*lifecycle.CancellationRequest, error)
	OnboardingSignature(url string) (string, error)
	AdjustLeverage(ctx context.Context, symbol string, leverage decimal.Decimal, parentAddress string) (*lifecycle.LeverageResult, error)
	AdjustMargin(ctx context.Context, symbol string, op lifecycle.MarginOperation, amount decimal.Decimal, parentAddress string) (*sui.TransactionResult, error)
}

// QuoteSigner signs RFQ quotes. *rfq.Client satisfies it.
type QuoteSigner interface {
	CreateAndSignQuote(p rfq.QuoteParams) (*rfq.Quote, string, error)
}

type Options struct {
	Keys          *crypto.KeyMaterial
	Signer        Signer
	Quotes        QuoteSigner     // nil disables /quotes
	Journal       storage.Journal // nil disables /journal
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer // served on /metrics when set
	OnboardingURL string
	CORSOrigins   []string
	Logger        *zap.Logger
}

// Server exposes the key's signing operations over REST
type Server struct {
	keys          *crypto.KeyMaterial
	signer        Signer
	quotes        QuoteSigner
	journal       storage.Journal
	metrics       *metrics.Metrics
	onboardingURL string
	corsOrigins   []string
	log           *zap.Logger

	router *mux.Router
	mu     sync.Mutex
	http   *http.Server
}

// NewServer creates a new API server
func NewServer(opts Options) (*Server, error) {
	if opts.Keys == nil || opts.Signer == nil {
		return nil, errors.New("api server needs keys and a signer")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		keys:          opts.Keys,
		signer:        opts.Signer,
		quotes:        opts.Quotes,
		journal:       opts.Journal,
		metrics:       opts.Metrics,
		onboardingURL: opts.OnboardingURL,
		corsOrigins:   origins,
		log:           log,
		router:        mux.NewRouter(),
	}
	s.setupRoutes(opts.Gatherer)
	return s, nil
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.instrument)

	api.HandleFunc("/account", s.handleGetAccount).Methods("GET")

	// Off-chain signatures
	api.HandleFunc("/orders/sign", s.handleSignOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/onboarding", s.handleOnboarding).Methods("POST")
	api.HandleFunc("/messages/sign", s.handleSignMessage).Methods("POST")
	api.HandleFunc("/messages/verify", s.handleVerifyMessage).Methods("POST")
	api.HandleFunc("/quotes", s.handleSignQuote).Methods("POST")

	// On-chain position updates
	api.HandleFunc("/leverage", s.handleAdjustLeverage).Methods("POST")
	api.HandleFunc("/margin", s.handleAdjustMargin).Methods("POST")

	// Journal of signed payloads and executed transactions
	api.HandleFunc("/journal/{kind}", s.handleListJournal).Methods("GET")
	api.HandleFunc("/journal/{kind}/{key}", s.handleGetJournalEntry).Methods("GET")

	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped router
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	s.log.Info("api_server_starting", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ==============================
// Handlers
// ==============================

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, AccountInfo{
		Address:   s.keys.Address(),
		PublicKey: s.keys.PublicKeyBase64(),
		Scheme:    s.keys.Scheme().String(),
	})
}

func (s *Server) handleSignOrder(w http.ResponseWriter, r *http.Request) {
	var body OrderBody
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.ToRequest()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	signed, err := s.signer.CreateSignedOrder(req)
	if err != nil {
		s.fail(w, "order signing failed", err)
		return
	}
	respondJSON(w, signed)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var body CancelBody
	if !decodeBody(w, r, &body) {
		return
	}

	var (
		cancel *lifecycle.CancellationRequest
		err    error
	)
	switch {
	case body.Order != nil:
		req, perr := body.Order.ToRequest()
		if perr != nil {
			respondError(w, http.StatusBadRequest, "invalid order", perr.Error())
			return
		}
		if req.Symbol == "" {
			req.Symbol = body.Symbol
		}
		cancel, err = s.signer.CreateSignedCancelOrder(req, body.ParentAddress)
	case len(body.OrderHashes) > 0:
		cancel, err = s.signer.CreateSignedCancelOrders(body.Symbol, body.OrderHashes, body.ParentAddress)
	default:
		respondError(w, http.StatusBadRequest, "missing orderHashes", "")
		return
	}
	if err != nil {
		s.fail(w, "cancel signing failed", err)
		return
	}
	respondJSON(w, cancel)
}

func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	var body OnboardingBody
	if r.ContentLength != 0 && !decodeBody(w, r, &body) {
		return
	}
	url := body.URL
	if url == "" {
		url = s.onboardingURL
	}
	if url == "" {
		respondError(w, http.StatusBadRequest, "missing onboardingUrl", "")
		return
	}
	sig, err := s.signer.OnboardingSignature(url)
	if err != nil {
		s.fail(w, "onboarding signing failed", err)
		return
	}
	respondJSON(w, SignatureResponse{Signature: sig})
}

func (s *Server) handleSignMessage(w http.ResponseWriter, r *http.Request) {
	var body MessageBody
	if !decodeBody(w, r, &body) {
		return
	}
	sig, err := s.keys.SignPersonalMessage([]byte(body.Message))
	if err != nil {
		s.fail(w, "message signing failed", err)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveSignature("personal_message")
	}
	respondJSON(w, SignatureResponse{Signature: sig})
}

func (s *Server) handleVerifyMessage(w http.ResponseWriter, r *http.Request) {
	var body VerifyBody
	if !decodeBody(w, r, &body) {
		return
	}
	if _, err := base64.StdEncoding.DecodeString(body.Signature); err != nil {
		respondError(w, http.StatusBadRequest, "invalid signature encoding", err.Error())
		return
	}
	address := body.Address
	if address == "" {
		address = s.keys.Address()
	}
	respondJSON(w, VerifyResponse{
		Valid: crypto.VerifyPersonalMessage([]byte(body.Message), body.Signature, address),
	})
}

func (s *Server) handleSignQuote(w http.ResponseWriter, r *http.Request) {
	if s.quotes == nil {
		respondError(w, http.StatusNotFound, "rfq not configured", "")
		return
	}
	var body QuoteBody
	if !decodeBody(w, r, &body) {
		return
	}
	q, sig, err := s.quotes.CreateAndSignQuote(rfq.QuoteParams{
		Vault:          body.Vault,
		ID:             body.ID,
		Taker:          body.Taker,
		TokenInAmount:  body.TokenInAmount,
		TokenOutAmount: body.TokenOutAmount,
		TokenInType:    body.TokenInType,
		TokenOutType:   body.TokenOutType,
		CreatedAt:      body.CreatedAt,
		ExpiresAt:      body.ExpiresAt,
	})
	if err != nil {
		s.fail(w, "quote signing failed", err)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveSignature("quote")
	}
	respondJSON(w, SignedQuoteResponse{Quote: q, Signature: sig})
}

func (s *Server) handleAdjustLeverage(w http.ResponseWriter, r *http.Request) {
	var body LeverageBody
	if !decodeBody(w, r, &body) {
		return
	}
	lev, err := parseDecimal("leverage", body.Leverage, false)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid leverage", err.Error())
		return
	}
	res, err := s.signer.AdjustLeverage(r.Context(), body.Symbol, lev, body.ParentAddress)
	if err != nil {
		s.fail(w, "leverage update failed", err)
		return
	}
	respondJSON(w, res)
}

func (s *Server) handleAdjustMargin(w http.ResponseWriter, r *http.Request) {
	var body MarginBody
	if !decodeBody(w, r, &body) {
		return
	}
	var op lifecycle.MarginOperation
	switch strings.ToUpper(body.Operation) {
	case lifecycle.MarginAdd.String():
		op = lifecycle.MarginAdd
	case lifecycle.MarginRemove.String():
		op = lifecycle.MarginRemove
	default:
		respondError(w, http.StatusBadRequest, "invalid operation", "expected ADD or REMOVE")
		return
	}
	amount, err := parseDecimal("amount", body.Amount, false)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	res, err := s.signer.AdjustMargin(r.Context(), body.Symbol, op, amount, body.ParentAddress)
	if err != nil {
		s.fail(w, "margin update failed", err)
		return
	}
	respondJSON(w, res)
}

func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.journalKind(w, r)
	if !ok {
		return
	}
	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid limit", "expected a positive integer")
			return
		}
		limit = min(n, maxJournalLimit)
	}
	entries, err := s.journal.List(kind, limit)
	if err != nil {
		s.fail(w, "journal read failed", err)
		return
	}
	if entries == nil {
		entries = []storage.Entry{}
	}
	respondJSON(w, entries)
}

func (s *Server) handleGetJournalEntry(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.journalKind(w, r)
	if !ok {
		return
	}
	entry, err := s.journal.Get(kind, mux.Vars(r)["key"])
	if err != nil {
		s.fail(w, "journal read failed", err)
		return
	}
	respondJSON(w, entry)
}

func (s *Server) journalKind(w http.ResponseWriter, r *http.Request) (storage.Kind, bool) {
	if s.journal == nil {
		respondError(w, http.StatusNotFound, "journal not configured", "")
		return "", false
	}
	kind, err := storage.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid journal kind", err.Error())
		return "", false
	}
	return kind, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

// instrument counts requests by route template and status code
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.metrics == nil {
			return
		}
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.ObserveHTTP(route, strconv.Itoa(rec.status))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// fail maps domain errors onto HTTP status codes
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("api_request_failed", zap.String("reason", msg), zap.Error(err))
	}
	respondError(w, status, msg, err.Error())
}

func statusFor(err error) int {
	var execErr *sui.ExecutionError
	switch {
	case errors.Is(err, order.ErrInvalidRequest),
		errors.Is(err, order.ErrExpired),
		errors.Is(err, order.ErrEncoding),
		errors.Is(err, order.ErrEmptyCancellation),
		errors.Is(err, contracts.ErrUnknownMarket),
		errors.Is(err, rfq.ErrInvalidQuote):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrNoOpenPosition),
		errors.Is(err, coins.ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrNoPositionSource),
		errors.Is(err, lifecycle.ErrNoCoordinator):
		return http.StatusNotImplemented
	case errors.Is(err, sui.ErrLockContention):
		return http.StatusServiceUnavailable
	case errors.As(err, &execErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, fmt.Sprintf("encode response: %v", err), http.StatusInternalServerError)
	}
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
