package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/atelierworks/atelier-backend/api/responses"
	paymentssvc "github.com/atelierworks/atelier-backend/internal/payments"
	"github.com/atelierworks/atelier-backend/pkg/config"
	"github.com/atelierworks/atelier-backend/pkg/enums"
	pkgerrors "github.com/atelierworks/atelier-backend/pkg/errors"
	"github.com/atelierworks/atelier-backend/pkg/gateway"
	"github.com/atelierworks/atelier-backend/pkg/logger"
)

const (
	signatureHeader = "X-Razorpay-Signature"
	eventIDHeader   = "X-Razorpay-Event-Id"
)

// PaymentWebhookService is the settlement surface this handler drives.
type PaymentWebhookService interface {
	HandleGatewayEvent(ctx context.Context, event paymentssvc.Event) error
}

type paymentWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// gatewayEvent mirrors the gateway's webhook body.
type gatewayEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// PaymentWebhook handles asynchronous gateway callbacks. The HMAC over the
// raw body is checked before the payload is parsed; unverified bytes never
// reach the service layer.
func PaymentWebhook(svc PaymentWebhookService, cfg config.GatewayConfig, guard paymentWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "replay guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(signatureHeader)
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing"))
			return
		}
		if !gateway.VerifyWebhookSignature(cfg.WebhookSecret, payload, signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature invalid"))
			return
		}

		var body gatewayEvent
		if err := json.Unmarshal(payload, &body); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload"))
			return
		}

		eventID := r.Header.Get(eventIDHeader)
		if eventID == "" {
			sum := sha256.Sum256(payload)
			eventID = hex.EncodeToString(sum[:])
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check replay guard"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		event := paymentssvc.Event{
			ID:               eventID,
			Type:             enums.GatewayEvent(body.Event),
			GatewayOrderID:   body.Payload.Payment.Entity.OrderID,
			GatewayPaymentID: body.Payload.Payment.Entity.ID,
			Reason:           body.Payload.Payment.Entity.ErrorDescription,
		}

		if err := svc.HandleGatewayEvent(ctx, event); err != nil {
			_ = guard.Delete(ctx, eventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("gateway event %s processed", eventID))
		}
		responses.WriteSuccess(w, nil)
	}
}
