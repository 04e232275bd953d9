package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sulimcode/drove/internal/config"
	"github.com/sulimcode/drove/internal/economy"
)

type Server struct {
	cfg  config.Config
	log  *slog.Logger
	econ *economy.Service
	mux  *chi.Mux
}

func New(cfg config.Config, logger *slog.Logger, econ *economy.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		log:  logger,
		econ: econ,
		mux:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/accounts", s.handleRegister)
		r.Get("/accounts/{id}", s.handleAccount)
		r.Get("/accounts/{id}/prisoners", s.handlePrisoners)
		r.Get("/accounts/{id}/history", s.handleHistory)
		r.Get("/accounts/{id}/value", s.handleEmpireValue)
		r.Post("/accounts/{id}/shield", s.handleActivateShield)
		r.Delete("/accounts/{id}/shield", s.handleDeactivateShield)
		r.Post("/accounts/{id}/release", s.handleBuyFreedom)

		r.Post("/purchases", s.handlePurchase)
		r.Post("/transfers", s.handleTransfer)

		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/stats", s.handleStats)
	})
}

// authMiddleware checks the static service token presented by the transport
// layer (a bot process, typically). An empty configured token disables the
// check for local development.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.ServiceToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.ServiceToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ID           int64  `json:"id"`
		Username     string `json:"username"`
		DisplayName  string `json:"display_name"`
		ReferralCode string `json:"referral_code"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.ID <= 0 {
		writeError(w, http.StatusBadRequest, "id must be > 0")
		return
	}
	acct, err := s.econ.Register(r.Context(), economy.RegisterInput{
		ID:           in.ID,
		Username:     in.Username,
		DisplayName:  in.DisplayName,
		ReferralCode: in.ReferralCode,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	acct, err := s.econ.Account(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handlePrisoners(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	prisoners, err := s.econ.Prisoners(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prisoners": prisoners})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	history, err := s.econ.History(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (s *Server) handleEmpireValue(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	value, err := s.econ.EmpireValue(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account_id": id, "value": value})
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var in struct {
		BuyerID  int64 `json:"buyer_id"`
		TargetID int64 `json:"target_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	receipt, err := s.econ.Purchase(r.Context(), in.BuyerID, in.TargetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FromID int64 `json:"from_id"`
		ToID   int64 `json:"to_id"`
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be > 0")
		return
	}
	if err := s.econ.Transfer(r.Context(), in.FromID, in.ToID, in.Amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleActivateShield(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	// Body is optional; an absent or empty duration means the configured
	// default.
	var in struct {
		Duration string `json:"duration"`
	}
	if err := decodeJSON(r, &in); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var duration time.Duration
	if in.Duration != "" {
		duration, err = time.ParseDuration(in.Duration)
		if err != nil || duration <= 0 {
			writeError(w, http.StatusBadRequest, "invalid duration")
			return
		}
	}
	if err := s.econ.ActivateShield(r.Context(), id, duration); err != nil {
		writeDomainError(w, err)
		return
	}
	acct, err := s.econ.Account(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleDeactivateShield(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	if err := s.econ.DeactivateShield(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleBuyFreedom(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	if err := s.econ.BuyFreedom(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	rows, err := s.econ.Leaderboard(r.Context(), r.URL.Query().Get("by"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	out, err := s.econ.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, economy.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, economy.ErrAlreadyExists),
		errors.Is(err, economy.ErrAlreadyOwned),
		errors.Is(err, economy.ErrTargetProtected),
		errors.Is(err, economy.ErrAlreadyProtected),
		errors.Is(err, economy.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, economy.ErrInsufficientFunds),
		errors.Is(err, economy.ErrInvalidTarget),
		errors.Is(err, economy.ErrInvalidOwnership),
		errors.Is(err, economy.ErrNotOwned):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
