package server

import (
	"errors"
	"net/http"

	"github.com/skydeed/skydeed/internal/domain"
	"github.com/skydeed/skydeed/internal/listingcache"
)

type listingPutRequest struct {
	Listing domain.ListingDescriptor `json:"listing"`
	Stage   listingcache.Stage       `json:"stage,omitempty"`
}

func (s *Server) handleListingPut(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Listings == nil {
		httpError(w, http.StatusServiceUnavailable, "listing cache is not configured")
		return
	}

	var req listingPutRequest
	if err := readJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if !req.Listing.IsValid() || req.Listing.TokenID == "" {
		httpError(w, http.StatusBadRequest, "listing must have a token id, address, floors and a positive price")
		return
	}
	stage := req.Stage
	if stage == "" {
		stage = listingcache.StageDraft
	}

	if err := s.cfg.Listings.Put(r.Context(), &req.Listing, stage); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (s *Server) handleListingsList(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Listings == nil {
		httpError(w, http.StatusServiceUnavailable, "listing cache is not configured")
		return
	}
	entries, err := s.cfg.Listings.List(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": entries})
}

func (s *Server) handleListingGet(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Listings == nil {
		httpError(w, http.StatusServiceUnavailable, "listing cache is not configured")
		return
	}
	entry, err := s.cfg.Listings.Get(r.Context(), pathParam(r, "tokenID"))
	if err != nil {
		if errors.Is(err, listingcache.ErrNotFound) {
			httpError(w, http.StatusNotFound, "listing not found")
			return
		}
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listing": entry})
}
