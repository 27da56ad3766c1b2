package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/lucasrenata/order-up-point-sub000/internal/apierror"
	"github.com/lucasrenata/order-up-point-sub000/internal/audit"
	"github.com/lucasrenata/order-up-point-sub000/internal/register"
	"github.com/lucasrenata/order-up-point-sub000/internal/report"
	"github.com/lucasrenata/order-up-point-sub000/internal/retention"
	"github.com/lucasrenata/order-up-point-sub000/internal/service"
)

const maxBodyBytes = 1 << 20

// Services groups the use cases exposed over HTTP.
type Services struct {
	Orders    *service.Service
	Registers *register.Ledger
	Reports   *report.Service
	Retention *retention.Sweeper
}

type API struct {
	services      Services
	auth          *AuthManager
	allowedOrigin string
}

func New(services Services, auth *AuthManager, allowedOrigin string) *API {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return &API{services: services, auth: auth, allowedOrigin: allowedOrigin}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(a.securityHeaders)
	r.Use(logRequests)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(RoleCashier, RoleAdmin))

			r.Get("/orders/{orderID}", a.handleGetOrder)
			r.Post("/orders/{orderID}/settle", a.handleSettleOrder)

			r.Get("/registers/open", a.handleListOpenRegisters)
			r.Post("/registers", a.handleOpenRegister)
			r.Post("/registers/{registerID}/close", a.handleCloseRegister)
			r.Get("/registers/{registerID}/balance", a.handleRegisterBalance)
			r.Get("/registers/{registerID}/sales-by-tender", a.handleSalesByTender)
			r.Post("/registers/{registerID}/withdrawals", a.handleWithdrawal)
			r.Post("/registers/{registerID}/deposits", a.handleDeposit)
			r.Post("/registers/{registerID}/reservation-payments", a.handleReservationPayment)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(RoleAdmin))

			r.Get("/reports/daily", a.handleDailyReport)
			r.Get("/retention", a.handleRetentionPreview)
			r.Post("/retention/sweep", a.handleRetentionSweep)
		})
	})

	return r
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				writeJSON(w, http.StatusUnauthorized, apierror.New("missing bearer token"))
				return
			}

			token := strings.TrimSpace(authorization[len("Bearer "):])
			actor, err := a.auth.ParseToken(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, apierror.New(err.Error()))
				return
			}

			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				writeJSON(w, http.StatusForbidden, apierror.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(audit.WithActor(r.Context(), actor)))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(startedAt)).
			Msg("request")
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// writeError logs server-side failures and writes the mapped envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := apierror.FromError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, body)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, apierror.New("request body too large"))
		return
	}
	writeJSON(w, http.StatusBadRequest, apierror.New("invalid JSON: "+err.Error()))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
