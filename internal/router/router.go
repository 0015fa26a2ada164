// Package router wires the HTTP surface of the service: registration,
// shortening, history, health check and the redirect itself.
package router

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tierlink/tierlink/internal/gzippedhttp"
	"github.com/tierlink/tierlink/internal/logger"
	"github.com/tierlink/tierlink/internal/models"
	"github.com/tierlink/tierlink/internal/ratelimit"
	"github.com/tierlink/tierlink/internal/service"
)

// Router holds the HTTP handlers of the service.
type Router struct {
	service *service.Service
}

// New builds the chi mux with all routes and middleware attached.
func New(svc *service.Service, limiter *ratelimit.Store) http.Handler {
	r := &Router{service: svc}

	mux := chi.NewRouter()
	mux.Use(
		logger.WithLoggingHTTPMiddleware,
		ratelimit.Middleware(limiter),
		gzippedhttp.UngzipRequest,
		gzippedhttp.GzipResponse,
	)

	mux.Post(`/register`, r.PostRegister)
	mux.Post(`/shorten`, r.PostShorten)
	mux.Get(`/history/{userID}`, r.GetHistory)
	mux.Get(`/ping`, r.GetPing)
	mux.Get(`/{shortKey}`, r.GetRedirectToFullURL)

	return mux
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.Debugln("writing the response:", err)
	}
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, models.ErrorResponse{Message: message})
}

// PostRegister handles POST /register. An empty body registers a user with
// the default tier.
func (r *Router) PostRegister(res http.ResponseWriter, req *http.Request) {
	registerRequest := models.RegisterRequest{}
	if err := json.NewDecoder(req.Body).Decode(&registerRequest); err != nil && !errors.Is(err, io.EOF) {
		writeMessage(res, http.StatusBadRequest, err.Error())
		return
	}

	usr, err := r.service.Register(req.Context(), registerRequest.Tier)
	if err != nil {
		writeMessage(res, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(res, http.StatusOK, usr)
}

// PostShorten handles POST /shorten. Every domain failure surfaces as 400
// with the error text in the message field, matching the legacy contract.
func (r *Router) PostShorten(res http.ResponseWriter, req *http.Request) {
	shortenRequest := models.ShortenRequest{}
	if err := json.NewDecoder(req.Body).Decode(&shortenRequest); err != nil {
		writeMessage(res, http.StatusBadRequest, err.Error())
		return
	}

	record, err := r.service.Shorten(
		req.Context(),
		shortenRequest.UserID,
		shortenRequest.URL,
		int(shortenRequest.URLLength),
	)
	if err != nil {
		writeMessage(res, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(res, http.StatusOK, models.ShortenResponse{
		Message:  "Success",
		UserID:   record.OwnerUserID,
		ShortKey: record.ShortKey,
		ShortURL: r.service.ShortURL(record.ShortKey),
	})
}

// GetHistory handles GET /history/{userID}.
func (r *Router) GetHistory(res http.ResponseWriter, req *http.Request) {
	userID := chi.URLParam(req, "userID")

	urls, err := r.service.History(req.Context(), userID)
	if err != nil {
		writeMessage(res, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(res, http.StatusOK, models.HistoryResponse{
		Message: "Success",
		UserID:  userID,
		Urls:    urls,
	})
}

// GetRedirectToFullURL handles GET /{shortKey} with a permanent redirect.
// This is the only path where a storage failure surfaces as 500.
func (r *Router) GetRedirectToFullURL(res http.ResponseWriter, req *http.Request) {
	shortKey := chi.URLParam(req, "shortKey")

	full, found, err := r.service.Resolve(req.Context(), shortKey)
	if err != nil {
		writeMessage(res, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeJSON(res, http.StatusNotFound, models.NotFoundResponse{Error: "Url Not Found."})
		return
	}

	http.Redirect(res, req, full, http.StatusMovedPermanently)
}

// GetPing handles GET /ping, the storage health check.
func (r *Router) GetPing(res http.ResponseWriter, req *http.Request) {
	if err := r.service.Ping(req.Context()); err != nil {
		writeMessage(res, http.StatusInternalServerError, err.Error())
		return
	}

	res.WriteHeader(http.StatusOK)
}
