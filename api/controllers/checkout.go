package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/atelierworks/atelier-backend/api/middleware"
	"github.com/atelierworks/atelier-backend/api/responses"
	"github.com/atelierworks/atelier-backend/api/validators"
	checkoutsvc "github.com/atelierworks/atelier-backend/internal/checkout"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/logger"
)

const idempotencyKeyHeader = "Idempotency-Key"

type checkoutRequest struct {
	AddressID uuid.UUID `json:"address_id" validate:"required"`
}

type checkoutResponse struct {
	Order  orderResponse `json:"order"`
	Reused bool          `json:"reused"`
}

// Checkout converts the caller's cart into an order. The Idempotency-Key
// header is mandatory; replays return the original order with a 200.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID := middleware.UserUUIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
		if key == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header is required"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Execute(r.Context(), userID, checkoutsvc.ExecuteInput{
			IdempotencyKey: key,
			AddressID:      payload.AddressID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Reused {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, checkoutResponse{
			Order:  newOrderResponse(result.Order),
			Reused: result.Reused,
		})
	}
}
