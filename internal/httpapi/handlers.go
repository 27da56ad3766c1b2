package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lucasrenata/order-up-point-sub000/internal/calendar"
	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
	"github.com/lucasrenata/order-up-point-sub000/internal/service"
)

type settleResponse struct {
	service.SettleResult
	LowStock []domain.StockUpdate `json:"low_stock"`
}

type closeRegisterResponse struct {
	Register domain.CashRegister    `json:"register"`
	Balance  domain.RegisterBalance `json:"balance"`
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.services.Orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleSettleOrder(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if !bindAndValidate(w, r, &req) {
		return
	}
	settleReq, err := req.toSettlement()
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := a.services.Orders.SettleOrder(r.Context(), chi.URLParam(r, "orderID"), settleReq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settleResponse{SettleResult: result, LowStock: result.Stock.LowStockAlerts()})
}

func (a *API) handleListOpenRegisters(w http.ResponseWriter, r *http.Request) {
	registers, err := a.services.Registers.ListOpen(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"registers": registers})
}

func (a *API) handleOpenRegister(w http.ResponseWriter, r *http.Request) {
	var req openRegisterRequest
	if !bindAndValidate(w, r, &req) {
		return
	}
	reg, err := a.services.Registers.Open(r.Context(), req.toOpen())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (a *API) handleCloseRegister(w http.ResponseWriter, r *http.Request) {
	reg, balance, err := a.services.Registers.Close(r.Context(), chi.URLParam(r, "registerID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, closeRegisterResponse{Register: reg, Balance: balance})
}

func (a *API) handleRegisterBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := a.services.Registers.ComputeBalance(r.Context(), chi.URLParam(r, "registerID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (a *API) handleSalesByTender(w http.ResponseWriter, r *http.Request) {
	totals, err := a.services.Registers.SalesByTender(r.Context(), chi.URLParam(r, "registerID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"register_id": chi.URLParam(r, "registerID"),
		"by_tender":   totals,
		"total":       totals.Total(),
	})
}

func (a *API) handleWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !bindAndValidate(w, r, &req) {
		return
	}
	movement, err := a.services.Registers.RecordWithdrawal(r.Context(), chi.URLParam(r, "registerID"), req.Amount, req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, movement)
}

func (a *API) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !bindAndValidate(w, r, &req) {
		return
	}
	movement, err := a.services.Registers.RecordDeposit(r.Context(), chi.URLParam(r, "registerID"), req.Amount, req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, movement)
}

func (a *API) handleReservationPayment(w http.ResponseWriter, r *http.Request) {
	var req reservationPaymentRequest
	if !bindAndValidate(w, r, &req) {
		return
	}
	payment, err := req.toPayment(chi.URLParam(r, "registerID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	movement, err := a.services.Registers.RecordReservationPayment(r.Context(), payment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, movement)
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	var date calendar.LocalDate
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := calendar.ParseLocalDate(raw)
		if err != nil {
			writeError(w, r, domain.NewValidationError("date", "expected YYYY-MM-DD"))
			return
		}
		date = parsed
	}

	daily, err := a.services.Reports.Daily(r.Context(), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, daily)
}

func (a *API) handleRetentionPreview(w http.ResponseWriter, r *http.Request) {
	plan, err := a.services.Retention.Preview(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (a *API) handleRetentionSweep(w http.ResponseWriter, r *http.Request) {
	result, err := a.services.Retention.Run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
