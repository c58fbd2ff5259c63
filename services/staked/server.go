package staked

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stakeledger/crypto"
	"stakeledger/native/staking"
	"stakeledger/observability"
)

const (
	maxBodyBytes    = 1 << 16
	requestIDHeader = "X-Request-ID"
)

// Server exposes the processor over HTTP.
type Server struct {
	processor *Processor
	indexer   *Indexer
	hub       *Hub
	auth      *Authenticator
	limiter   *RateLimiter
	logger    *slog.Logger
}

// NewServer wires the HTTP API. indexer and hub may be nil, in which case
// the history and stream routes answer 503.
func NewServer(processor *Processor, indexer *Indexer, hub *Hub, auth *Authenticator, limiter *RateLimiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{processor: processor, indexer: indexer, hub: hub, auth: auth, limiter: limiter, logger: logger}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware("read"))
			r.Get("/status", s.handleStatus)
			r.Get("/pools", s.handlePools)
			r.Get("/pools/{id}", s.handlePool)
			r.Get("/pools/{id}/positions/{addr}", s.handlePosition)
			r.Get("/pools/{id}/pending/{addr}", s.handlePending)
			r.Get("/pools/{id}/unstakes/{addr}", s.handleUnstakes)
			r.Get("/accounts/{addr}/balance", s.handleBalance)
			r.Get("/events", s.handleEvents)
			r.Get("/events/ws", s.handleEventStream)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Use(s.limiter.Middleware("write"))
			r.Post("/pools/{id}/stake", s.handleStake)
			r.Post("/pools/{id}/unstake", s.handleRequestUnstake)
			r.Post("/pools/{id}/unstakes/{index}/claim", s.handleClaimUnstake)
			r.Post("/pools/{id}/rewards/claim", s.handleClaimReward)

			r.Post("/admin/pools", s.handleAddPool)
			r.Post("/admin/reward-rate", s.handleRewardRate)
			r.Post("/admin/pause", s.handlePause(true))
			r.Post("/admin/unpause", s.handlePause(false))
			r.Post("/admin/owner", s.handleTransferOwnership)
			r.Post("/admin/operator", s.handleSetOperator)
		})
	})

	return otelhttp.NewHandler(r, "staked")
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
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

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/events/ws") {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observability.HTTP().Observe(route, r.Method, rec.status, time.Since(start))
		if rec.status >= http.StatusInternalServerError {
			s.logger.Warn("request failed", "route", route, "status", rec.status, "requestId", w.Header().Get(requestIDHeader))
		}
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	globals, err := s.processor.Globals()
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusView{
		Tick:          s.processor.Height(),
		Owner:         globals.Owner.String(),
		Operator:      globals.Operator.String(),
		RewardAsset:   globals.RewardAsset,
		RewardPerTick: amountString(globals.RewardPerTick),
		TotalWeight:   globals.TotalWeight,
		PoolCount:     globals.PoolCount,
		Paused:        globals.Paused,
		ModuleAddress: s.processor.ModuleAddress().String(),
	})
}

func (s *Server) handlePools(w http.ResponseWriter, _ *http.Request) {
	pools, err := s.processor.Pools()
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	out := make([]poolView, 0, len(pools))
	for _, pool := range pools {
		out = append(out, newPoolView(pool))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	id, ok := poolParam(w, r)
	if !ok {
		return
	}
	pool, err := s.processor.Pool(id)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPoolView(pool))
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	id, addr, ok := poolAndAddress(w, r)
	if !ok {
		return
	}
	pos, err := s.processor.Position(id, addr)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionView{Amount: amountString(pos.Amount), RewardDebt: amountString(pos.RewardDebt), Owed: amountString(pos.Owed)})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	id, addr, ok := poolAndAddress(w, r)
	if !ok {
		return
	}
	reward, err := s.processor.PendingReward(id, addr)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tick": s.processor.Height(), "pending": amountString(reward)})
}

func (s *Server) handleUnstakes(w http.ResponseWriter, r *http.Request) {
	id, addr, ok := poolAndAddress(w, r)
	if !ok {
		return
	}
	reqs, err := s.processor.UnstakeRequests(id, addr)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	out := make([]unstakeView, 0, len(reqs))
	for i, req := range reqs {
		out = append(out, unstakeView{Index: uint64(i), Amount: amountString(req.Amount), UnlockTick: req.UnlockTick, Claimed: req.Claimed})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.DecodeAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	asset := r.URL.Query().Get("asset")
	balance, err := s.processor.Balance(asset, addr)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"asset": asset, "balance": amountString(balance)})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		writeError(w, http.StatusServiceUnavailable, "event history disabled")
		return
	}
	q := r.URL.Query()
	filter := EventFilter{Account: strings.TrimSpace(q.Get("account")), Type: strings.TrimSpace(q.Get("type"))}
	if raw := q.Get("pool"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid pool")
			return
		}
		filter.PoolID = &id
	}
	if raw := q.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after")
			return
		}
		filter.After = after
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	records, err := s.indexer.Query(filter)
	if err != nil {
		s.logger.Error("event query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "event query failed")
		return
	}
	out := make([]eventView, 0, len(records))
	for _, rec := range records {
		out = append(out, eventView{ID: rec.ID.String(), Seq: rec.Seq, Type: rec.Type, Tick: rec.Tick, Attributes: rec.DecodedAttributes()})
	}
	writeJSON(w, http.StatusOK, out)
}

type stakeRequest struct {
	Amount string `json:"amount"`
	Value  string `json:"value"`
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := callerAndPool(w, r)
	if !ok {
		return
	}
	var body stakeRequest
	if !decodeBody(w, r, &body) {
		return
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	value, err := parseAmount(body.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid value")
		return
	}
	if err := s.processor.Stake(r.Context(), caller, id, amount, value); err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tick": s.processor.Height()})
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleRequestUnstake(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := callerAndPool(w, r)
	if !ok {
		return
	}
	var body amountRequest
	if !decodeBody(w, r, &body) {
		return
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	index, err := s.processor.RequestUnstake(r.Context(), caller, id, amount)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"index": index})
}

func (s *Server) handleClaimUnstake(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := callerAndPool(w, r)
	if !ok {
		return
	}
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}
	released, err := s.processor.ClaimUnstake(r.Context(), caller, id, index)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amountString(released)})
}

func (s *Server) handleClaimReward(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := callerAndPool(w, r)
	if !ok {
		return
	}
	paid, err := s.processor.ClaimReward(r.Context(), caller, id)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amountString(paid)})
}

type addPoolRequest struct {
	Asset            string `json:"asset"`
	Weight           uint64 `json:"weight"`
	MinDeposit       string `json:"minDeposit"`
	UnstakeLockTicks uint64 `json:"unstakeLockTicks"`
}

func (s *Server) handleAddPool(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOnly(w, r)
	if !ok {
		return
	}
	var body addPoolRequest
	if !decodeBody(w, r, &body) {
		return
	}
	minDeposit, err := parseAmount(body.MinDeposit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid minDeposit")
		return
	}
	id, err := s.processor.AddPool(r.Context(), caller, body.Asset, body.Weight, minDeposit, body.UnstakeLockTicks)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"id": id})
}

type rateRequest struct {
	RewardPerTick string `json:"rewardPerTick"`
}

func (s *Server) handleRewardRate(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOnly(w, r)
	if !ok {
		return
	}
	var body rateRequest
	if !decodeBody(w, r, &body) {
		return
	}
	rate, err := parseAmount(body.RewardPerTick)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rewardPerTick")
		return
	}
	if err := s.processor.UpdateRewardPerTick(r.Context(), caller, rate); err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"rewardPerTick": rate.String()})
}

func (s *Server) handlePause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOnly(w, r)
		if !ok {
			return
		}
		if err := s.processor.SetPaused(r.Context(), caller, paused); err != nil {
			s.writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
	}
}

type addressRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	s.handleRoleChange(w, r, s.processor.TransferOwnership)
}

func (s *Server) handleSetOperator(w http.ResponseWriter, r *http.Request) {
	s.handleRoleChange(w, r, s.processor.SetOperator)
}

func (s *Server) handleRoleChange(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, caller, target crypto.Address) error) {
	caller, ok := callerOnly(w, r)
	if !ok {
		return
	}
	var body addressRequest
	if !decodeBody(w, r, &body) {
		return
	}
	target, err := crypto.DecodeAddress(body.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	if err := apply(r.Context(), caller, target); err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": target.String()})
}

// statusFor maps ledger errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, staking.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, staking.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, staking.ErrPaused), errors.Is(err, staking.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, staking.ErrAlreadyClaimed), errors.Is(err, staking.ErrStillLocked),
		errors.Is(err, staking.ErrNotPaused), errors.Is(err, staking.ErrAlreadyInitialized):
		return http.StatusConflict
	case errors.Is(err, staking.ErrBelowMinimum), errors.Is(err, staking.ErrInsufficientBalance),
		errors.Is(err, staking.ErrInvalidAmount), errors.Is(err, staking.ErrValueMismatch),
		errors.Is(err, staking.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, staking.ErrAssetTransferFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("ledger call failed", "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func callerOnly(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errMissingToken.Error())
	}
	return caller, ok
}

func callerAndPool(w http.ResponseWriter, r *http.Request) (crypto.Address, uint64, bool) {
	caller, ok := callerOnly(w, r)
	if !ok {
		return crypto.Address{}, 0, false
	}
	id, ok := poolParam(w, r)
	return caller, id, ok
}

func poolParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pool id")
		return 0, false
	}
	return id, true
}

func poolAndAddress(w http.ResponseWriter, r *http.Request) (uint64, crypto.Address, bool) {
	id, ok := poolParam(w, r)
	if !ok {
		return 0, crypto.Address{}, false
	}
	addr, err := crypto.DecodeAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return 0, crypto.Address{}, false
	}
	return id, addr, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// parseAmount accepts base-10 integers. The empty string is zero.
func parseAmount(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
