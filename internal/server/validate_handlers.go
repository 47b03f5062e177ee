package server

import (
	"net/http"

	"github.com/skydeed/skydeed/internal/domain"
)

type validateRequest struct {
	Listing domain.ListingDescriptor `json:"listing"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := readJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if !req.Listing.IsValid() {
		httpError(w, http.StatusBadRequest, "listing must have an address, floors and a positive price")
		return
	}

	// Validation never fails from the caller's point of view; degraded
	// results simply carry no attestation signature.
	result := s.cfg.Validator.ValidatePrice(r.Context(), &req.Listing)
	writeJSON(w, http.StatusOK, map[string]any{
		"result": result,
		"mode":   s.cfg.Validator.Mode(),
	})
}

type validateBatchRequest struct {
	Listings []*domain.ListingDescriptor `json:"listings"`
}

func (s *Server) handleValidateBatch(w http.ResponseWriter, r *http.Request) {
	var req validateBatchRequest
	if err := readJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if len(req.Listings) == 0 {
		httpError(w, http.StatusBadRequest, "listings are required")
		return
	}
	for _, l := range req.Listings {
		if l == nil || !l.IsValid() {
			httpError(w, http.StatusBadRequest, "every listing must have an address, floors and a positive price")
			return
		}
	}

	results := s.cfg.Validator.BatchValidate(r.Context(), req.Listings)
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"mode":    s.cfg.Validator.Mode(),
	})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	region := pathParam(r, "region")
	if region == "" {
		httpError(w, http.StatusBadRequest, "region is required")
		return
	}
	insights := s.cfg.Validator.GetMarketInsights(r.Context(), region)
	writeJSON(w, http.StatusOK, map[string]any{
		"region":   region,
		"insights": insights,
	})
}
