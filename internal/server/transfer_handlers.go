package server

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/skydeed/skydeed/internal/crosschain"
	"github.com/skydeed/skydeed/internal/domain"
)

type transferSendRequest struct {
	DestChain     string              `json:"destChain"`
	Payload       domain.TokenPayload `json:"payload"`
	PaymentToken  string              `json:"paymentToken,omitempty"`
	PaymentAmount decimal.Decimal     `json:"paymentAmount"`
}

func (s *Server) handleTransferSend(w http.ResponseWriter, r *http.Request) {
	var req transferSendRequest
	if err := readJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.DestChain == "" {
		httpError(w, http.StatusBadRequest, "destChain is required")
		return
	}

	id, err := s.cfg.Transfers.SendPayload(r.Context(), req.DestChain, &req.Payload, crosschain.SendOptions{
		PaymentToken:  req.PaymentToken,
		PaymentAmount: req.PaymentAmount,
	})
	if err != nil {
		status, msg := transferErrorStatus(err)
		// A failed send may still have produced a record the caller can inspect.
		writeJSON(w, status, map[string]any{"error": msg, "transferId": id})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transferId": id})
}

type transferFeeRequest struct {
	DestChain string              `json:"destChain"`
	Payload   domain.TokenPayload `json:"payload"`
}

func (s *Server) handleTransferFee(w http.ResponseWriter, r *http.Request) {
	var req transferFeeRequest
	if err := readJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	fee, err := s.cfg.Transfers.EstimateFee(r.Context(), req.DestChain, &req.Payload)
	if err != nil {
		status, msg := transferErrorStatus(err)
		httpError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fee": fee, "currency": "native"})
}

func (s *Server) handleTransfersList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"transfers": s.cfg.Transfers.History()})
}

func (s *Server) handleTransfersClear(w http.ResponseWriter, _ *http.Request) {
	if err := s.cfg.Transfers.ClearHistory(); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleTransferGet(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "transferID")
	rec, ok := s.cfg.Transfers.Record(id)
	if !ok {
		httpError(w, http.StatusNotFound, "transfer not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfer": rec})
}

func (s *Server) handleTransferCheckStatus(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "transferID")
	status, err := s.cfg.Transfers.CheckStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, crosschain.ErrTransferNotFound) {
			httpError(w, http.StatusNotFound, "transfer not found")
			return
		}
		// Relayer outages are not fatal; report the status we still hold.
		writeJSON(w, http.StatusOK, map[string]any{"status": status, "warning": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func transferErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, crosschain.ErrSameChain):
		return http.StatusBadRequest, "source and destination chain are identical"
	case errors.Is(err, crosschain.ErrUnknownChain):
		return http.StatusBadRequest, "unknown destination chain"
	case errors.Is(err, crosschain.ErrContractsNotDeployed):
		return http.StatusConflict, "bridge contracts are not deployed for this chain pair"
	case errors.Is(err, crosschain.ErrNoProvider):
		return http.StatusServiceUnavailable, "transfer sending is not configured"
	default:
		return http.StatusBadGateway, err.Error()
	}
}
