package server

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/skydeed/skydeed/internal/domain"
	"github.com/skydeed/skydeed/internal/listingcache"
	"github.com/skydeed/skydeed/internal/minting"
)

type mintRequest struct {
	Listing   domain.ListingDescriptor `json:"listing"`
	Recipient string                   `json:"recipient"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Minter == nil {
		httpError(w, http.StatusServiceUnavailable, "minting is not configured")
		return
	}

	var req mintRequest
	if err := readJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if !req.Listing.IsValid() {
		httpError(w, http.StatusBadRequest, "listing must have an address, floors and a positive price")
		return
	}
	if !common.IsHexAddress(req.Recipient) {
		httpError(w, http.StatusBadRequest, "recipient must be a hex address")
		return
	}

	receipt, err := s.cfg.Minter.Mint(r.Context(), &req.Listing, common.HexToAddress(req.Recipient))
	if err != nil {
		status, msg := mintErrorStatus(err)
		httpError(w, status, msg)
		return
	}

	if s.cfg.Listings != nil && req.Listing.TokenID != "" {
		if err := s.cfg.Listings.Advance(r.Context(), req.Listing.TokenID, listingcache.StageMinted); err != nil {
			s.log.WithError(err).WithField("tokenId", req.Listing.TokenID).Debug("listing cache not advanced")
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"receipt": receipt})
}

// mintErrorStatus maps the typed mint failures onto HTTP statuses the UI can act on.
func mintErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, minting.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, "wallet provider is not reachable"
	case errors.Is(err, minting.ErrNetworkSwitchFailed):
		return http.StatusConflict, "could not switch to the target network"
	case errors.Is(err, minting.ErrNotAuthorized):
		return http.StatusForbidden, "recipient is not an authorized minter"
	case errors.Is(err, minting.ErrDuplicateListing):
		return http.StatusConflict, "property is already minted"
	case errors.Is(err, minting.ErrUserRejected):
		return http.StatusBadRequest, "transaction was rejected in the wallet"
	case errors.Is(err, minting.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient funds for gas"
	default:
		return http.StatusBadGateway, err.Error()
	}
}
