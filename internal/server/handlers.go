package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"usdc-vault-custody/internal/listener"
	"usdc-vault-custody/internal/middleware"
	"usdc-vault-custody/internal/processor"
	"usdc-vault-custody/internal/store"
	"usdc-vault-custody/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type webhookResponse struct {
	Ok         bool   `json:"ok"`
	Confirmed  int    `json:"confirmed"`
	Unmatched  int    `json:"unmatched"`
	Duplicates int    `json:"duplicates"`
	Ignored    int    `json:"ignored"`
	Errors     int    `json:"errors"`
	Message    string `json:"message,omitempty"`
}

func (s *Server) AlchemyWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	result, err := s.reconciler.HandleNotification(r.Context(), body, r.Header.Get(signatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, listener.ErrUnauthorized):
			respondError(w, http.StatusUnauthorized, listener.ErrUnauthorized.Error())
		case errors.Is(err, listener.ErrInvalidPayload):
			respondError(w, http.StatusBadRequest, listener.ErrInvalidPayload.Error())
		default:
			respondError(w, http.StatusInternalServerError, listener.ErrMissingConfig.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, webhookResponse{
		Ok:         true,
		Confirmed:  result.Confirmed,
		Unmatched:  result.Unmatched,
		Duplicates: result.Duplicates,
		Ignored:    result.Ignored,
		Errors:     result.Errors,
		Message:    result.Message,
	})
}

// ProcessWithdrawals is the cron entry point. The run is detached from the
// request so a dropped caller cannot abandon withdrawals mid-flight.
func (s *Server) ProcessWithdrawals(w http.ResponseWriter, r *http.Request) {
	if !middleware.SecretMatches(s.cronSecret, r) {
		respondError(w, http.StatusUnauthorized, ErrBadCronSecret.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.runTimeout)
	defer cancel()

	report, err := s.processor.Run(ctx)
	if err != nil {
		switch {
		case errors.Is(err, processor.ErrRunInProgress):
			respondError(w, http.StatusConflict, "Withdrawal run already in progress")
		case errors.Is(err, processor.ErrHotWalletUnavailable):
			respondError(w, http.StatusInternalServerError, "Cannot reach hot wallet")
		default:
			zap.L().Error("Withdrawal run failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "Withdrawal run failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	balances, err := s.ledger.GetBalances(r.Context(), userID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, balances)
}

type createDepositRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	SenderAddress string          `json:"senderAddress"`
}

func (s *Server) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	var req createDepositRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	result, err := s.ledger.RegisterDeposit(r.Context(), userID, req.Amount, req.SenderAddress)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if !result.Success {
		respondJSON(w, http.StatusBadRequest, result)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (s *Server) ListDeposits(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	deposits, err := s.ledger.ListDeposits(r.Context(), userID, queryInt(r, "limit", 0))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, deposits)
}

type requestWithdrawalRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	WalletAddress string          `json:"walletAddress"`
}

func (s *Server) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	var req requestWithdrawalRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	result, err := s.ledger.RequestWithdrawal(r.Context(), userID, req.Amount, req.WalletAddress)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if !result.Success {
		respondJSON(w, http.StatusBadRequest, result)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (s *Server) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	withdrawals, err := s.ledger.ListWithdrawals(r.Context(), userID, queryInt(r, "limit", 0))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, withdrawals)
}

func (s *Server) ListPositions(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	positions, err := s.ledger.ListPositions(r.Context(), userID, r.URL.Query().Get("status"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, positions)
}

func (s *Server) ListLedgerEntries(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	entries, err := s.ledger.GetLedgerEntries(r.Context(), userID, queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

type openPositionRequest struct {
	UserId     string          `json:"userId"`
	MarketName string          `json:"marketName"`
	Side       string          `json:"side"`
	EntryPrice decimal.Decimal `json:"entryPrice"`
	Amount     decimal.Decimal `json:"amount"`
}

func (s *Server) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	position, err := s.ledger.OpenPosition(r.Context(), store.OpenPositionParams{
		UserId:     req.UserId,
		MarketName: req.MarketName,
		Side:       req.Side,
		EntryPrice: req.EntryPrice,
		Amount:     req.Amount,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, position)
}

type closePositionRequest struct {
	ExitPrice  decimal.Decimal `json:"exitPrice"`
	ProfitLoss decimal.Decimal `json:"profitLoss"`
}

func (s *Server) ClosePosition(w http.ResponseWriter, r *http.Request) {
	var req closePositionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	position, err := s.ledger.ClosePosition(r.Context(), store.ClosePositionParams{
		PositionId: chi.URLParam(r, "id"),
		ExitPrice:  req.ExitPrice,
		ProfitLoss: req.ProfitLoss,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, position)
}

type updatePriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

func (s *Server) UpdatePositionPrice(w http.ResponseWriter, r *http.Request) {
	var req updatePriceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.ledger.UpdatePositionPrice(r.Context(), chi.URLParam(r, "id"), req.Price); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r)
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := middleware.ParseToken(s.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, s.hub, claims.Subject)
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
