package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/skydeed/skydeed/internal/crosschain"
	"github.com/skydeed/skydeed/internal/listingcache"
	"github.com/skydeed/skydeed/internal/minting"
	"github.com/skydeed/skydeed/internal/validator"
)

// Config wires the purchase-flow services into the HTTP API.
type Config struct {
	Validator *validator.Service
	Minter    *minting.Client
	Transfers *crosschain.Manager
	Listings  *listingcache.Cache
}

type Server struct {
	cfg Config
	log *logrus.Entry
}

func New(cfg Config) (*Server, error) {
	if cfg.Validator == nil {
		return nil, errors.New("server: validator is required")
	}
	if cfg.Transfers == nil {
		return nil, errors.New("server: transfer manager is required")
	}
	return &Server{
		cfg: cfg,
		log: logrus.WithField("service", "api"),
	}, nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.wrap(s.handleHealth))

	api := r.Group("/api")

	validate := api.Group("/validate")
	validate.POST("/", s.wrap(s.handleValidate))
	validate.POST("/batch", s.wrap(s.handleValidateBatch))
	api.GET("/insights/:region", s.wrap(s.handleInsights))

	api.POST("/mint", s.wrap(s.handleMint))

	transfers := api.Group("/transfers")
	transfers.GET("/", s.wrap(s.handleTransfersList))
	transfers.POST("/", s.wrap(s.handleTransferSend))
	transfers.DELETE("/", s.wrap(s.handleTransfersClear))
	transfers.POST("/fee", s.wrap(s.handleTransferFee))
	transfersID := transfers.Group("/:transferID")
	transfersID.GET("/", s.wrap(s.handleTransferGet))
	transfersID.POST("/status", s.wrap(s.handleTransferCheckStatus))

	listings := api.Group("/listings")
	listings.GET("/", s.wrap(s.handleListingsList))
	listings.POST("/", s.wrap(s.handleListingPut))
	listings.GET("/:tokenID", s.wrap(s.handleListingGet))

	return r
}

type paramsKeyType string

const paramsKey paramsKeyType = "skydeed_path_params"

// wrap adapts existing net/http handlers to gin, injecting path params into request context.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}

func pathParam(r *http.Request, key string) string {
	m, _ := r.Context().Value(paramsKey).(map[string]string)
	return m[key]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"validator_mode": s.cfg.Validator.Mode(),
	})
}
