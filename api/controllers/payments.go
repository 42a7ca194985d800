package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/atelierworks/atelier-backend/api/middleware"
	"github.com/atelierworks/atelier-backend/api/responses"
	"github.com/atelierworks/atelier-backend/api/validators"
	paymentssvc "github.com/atelierworks/atelier-backend/internal/payments"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/logger"
)

type paymentResponse struct {
	ID               uuid.UUID `json:"id"`
	OrderID          uuid.UUID `json:"order_id"`
	Status           string    `json:"status"`
	GatewayOrderID   string    `json:"gateway_order_id"`
	GatewayPaymentID *string   `json:"gateway_payment_id,omitempty"`
	AmountCents      int       `json:"amount_cents"`
	Currency         string    `json:"currency"`
	CreatedAt        time.Time `json:"created_at"`
}

type paymentIntentResponse struct {
	Payment      paymentResponse `json:"payment"`
	GatewayKeyID string          `json:"gateway_key_id"`
}

func newPaymentResponse(payment *models.Payment) paymentResponse {
	return paymentResponse{
		ID:               payment.ID,
		OrderID:          payment.OrderID,
		Status:           string(payment.Status),
		GatewayOrderID:   payment.GatewayOrderID,
		GatewayPaymentID: payment.GatewayPaymentID,
		AmountCents:      payment.AmountCents,
		Currency:         payment.Currency,
		CreatedAt:        payment.CreatedAt,
	}
}

// PaymentCreateIntent opens (or returns the open) gateway intent for an
// order awaiting payment.
func PaymentCreateIntent(svc paymentssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		userID := middleware.UserUUIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		orderID, err := validators.UUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.CreateIntent(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, paymentIntentResponse{
			Payment:      newPaymentResponse(intent.Payment),
			GatewayKeyID: intent.GatewayKeyID,
		})
	}
}

type confirmPaymentRequest struct {
	GatewayOrderID   string `json:"gateway_order_id" validate:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" validate:"required"`
	Signature        string `json:"signature" validate:"required"`
}

// PaymentConfirm settles a payment from the browser's post-payment
// handshake.
func PaymentConfirm(svc paymentssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		userID := middleware.UserUUIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var payload confirmPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.ConfirmClient(r.Context(), userID, paymentssvc.ConfirmInput{
			GatewayOrderID:   payload.GatewayOrderID,
			GatewayPaymentID: payload.GatewayPaymentID,
			Signature:        payload.Signature,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPaymentResponse(payment))
	}
}
