package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/atelierworks/atelier-backend/api/middleware"
	"github.com/atelierworks/atelier-backend/api/responses"
	"github.com/atelierworks/atelier-backend/api/validators"
	orderssvc "github.com/atelierworks/atelier-backend/internal/orders"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/logger"
	"github.com/atelierworks/atelier-backend/pkg/pagination"
	"github.com/atelierworks/atelier-backend/pkg/types"
)

// OrderGet returns one of the caller's orders.
func OrderGet(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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

		order, err := svc.Get(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// OrdersList pages through the caller's orders, newest first.
func OrdersList(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID := middleware.UserUUIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		params := pagination.Params{Cursor: r.URL.Query().Get("cursor")}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid limit"))
				return
			}
			params.Limit = limit
		}

		page, err := svc.List(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]orderResponse, 0, len(page.Orders))
		for i := range page.Orders {
			items = append(items, newOrderResponse(&page.Orders[i]))
		}

		responses.WriteSuccess(w, ordersPageResponse{
			Orders:     items,
			NextCursor: page.NextCursor,
		})
	}
}

type ordersPageResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type orderResponse struct {
	ID              uuid.UUID             `json:"id"`
	Status          string                `json:"status"`
	SubtotalCents   int                   `json:"subtotal_cents"`
	TotalCents      int                   `json:"total_cents"`
	Currency        string                `json:"currency"`
	ShippingAddress types.AddressSnapshot `json:"shipping_address"`
	Items           []orderItemResponse   `json:"items"`
	PaidAt          *time.Time            `json:"paid_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}

type orderItemResponse struct {
	ID             uuid.UUID  `json:"id"`
	ProductID      uuid.UUID  `json:"product_id"`
	MaterialID     *uuid.UUID `json:"material_id,omitempty"`
	ProductName    string     `json:"product_name"`
	MaterialName   *string    `json:"material_name,omitempty"`
	UnitPriceCents int        `json:"unit_price_cents"`
	Quantity       int        `json:"quantity"`
	LineTotalCents int        `json:"line_total_cents"`
}

func newOrderResponse(order *models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:             item.ID,
			ProductID:      item.ProductID,
			MaterialID:     item.MaterialID,
			ProductName:    item.ProductName,
			MaterialName:   item.MaterialName,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			LineTotalCents: item.LineTotalCents,
		})
	}

	return orderResponse{
		ID:              order.ID,
		Status:          string(order.Status),
		SubtotalCents:   order.SubtotalCents,
		TotalCents:      order.TotalCents,
		Currency:        order.Currency,
		ShippingAddress: order.ShippingAddress,
		Items:           items,
		PaidAt:          order.PaidAt,
		CreatedAt:       order.CreatedAt,
	}
}
