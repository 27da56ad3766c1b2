package httpapi

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/lucasrenata/order-up-point-sub000/internal/apierror"
	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
	"github.com/lucasrenata/order-up-point-sub000/internal/register"
	"github.com/lucasrenata/order-up-point-sub000/internal/settlement"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Numeric tags (gt, min) on decimal.Decimal compare the float value.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bindAndValidate decodes the body into req and runs its validate tags. It
// writes the response and returns false when the request is rejected.
func bindAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := decodeJSON(r, req); err != nil {
		writeBadRequest(w, err)
		return false
	}
	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			writeJSON(w, http.StatusBadRequest, apierror.New(err.Error()))
			return false
		}
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

type tenderRequest struct {
	Type     string                `json:"type" validate:"required"`
	Received *decimal.Decimal      `json:"received,omitempty"`
	Splits   []domain.PaymentSplit `json:"splits,omitempty" validate:"omitempty,dive"`
}

type settleRequest struct {
	RegisterID string           `json:"register_id,omitempty" validate:"max=64"`
	Discount   *domain.Discount `json:"discount,omitempty"`
	Tender     tenderRequest    `json:"tender"`
}

func (req settleRequest) toSettlement() (settlement.Request, error) {
	discount := domain.NoDiscount()
	if req.Discount != nil {
		discount = *req.Discount
	}

	tender := settlement.TenderInput{}
	if strings.EqualFold(strings.TrimSpace(req.Tender.Type), domain.SplitTenderName) {
		tender.Split = true
		tender.Splits = req.Tender.Splits
	} else {
		t, err := domain.ParseTenderType(req.Tender.Type)
		if err != nil {
			return settlement.Request{}, domain.NewValidationError("tender.type", err.Error())
		}
		tender.Type = t
		tender.Received = req.Tender.Received
	}

	return settlement.Request{
		Discount:   discount,
		Tender:     tender,
		RegisterID: strings.TrimSpace(req.RegisterID),
	}, nil
}

type openRegisterRequest struct {
	Number       int             `json:"number" validate:"required"`
	OperatorName string          `json:"operator_name" validate:"required,max=120"`
	OpeningFloat decimal.Decimal `json:"opening_float" validate:"min=0"`
}

func (req openRegisterRequest) toOpen() register.OpenRequest {
	return register.OpenRequest{
		Number:       req.Number,
		OperatorName: req.OperatorName,
		OpeningFloat: req.OpeningFloat,
	}
}

type movementRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Note   string          `json:"note,omitempty" validate:"max=500"`
}

type reservationPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
	Tender    string          `json:"tender" validate:"required"`
	PayerName string          `json:"payer_name" validate:"required,max=120"`
	Note      string          `json:"note,omitempty" validate:"max=500"`
}

func (req reservationPaymentRequest) toPayment(registerID string) (register.ReservationPayment, error) {
	t, err := domain.ParseTenderType(req.Tender)
	if err != nil {
		return register.ReservationPayment{}, domain.NewValidationError("tender", err.Error())
	}
	return register.ReservationPayment{
		RegisterID: registerID,
		Amount:     req.Amount,
		Tender:     t,
		PayerName:  req.PayerName,
		Note:       req.Note,
	}, nil
}
