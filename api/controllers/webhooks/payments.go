package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/ovasilenko/chatmarket-backend/api/responses"
	"github.com/ovasilenko/chatmarket-backend/internal/settlement"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
	"github.com/ovasilenko/chatmarket-backend/pkg/logger"
	"github.com/ovasilenko/chatmarket-backend/pkg/metrics"
	"github.com/ovasilenko/chatmarket-backend/pkg/redis"
)

const (
	signatureHeader = "x-nowpayments-sig"
	guardScope      = "webhook:payments"
	guardTTL        = 24 * time.Hour
	maxBodyBytes    = 1 << 20
)

// settlementReconciler is the reconciliation surface the handler needs.
type settlementReconciler interface {
	Process(ctx context.Context, n settlement.Notification) (settlement.Outcome, error)
}

// PaymentWebhook receives processor settlement notifications. A 200 response
// means the delivery was consumed; business outcomes (unknown id, ignored
// status, even a critical finalization failure) still ack, because redelivery
// cannot change them.
func PaymentWebhook(reconciler settlementReconciler, guard redis.IdempotencyStore, ipnSecret string, webhookMetrics *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if reconciler == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement reconciler unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if err := settlement.VerifySignature(body, r.Header.Get(signatureHeader), ipnSecret); err != nil {
			webhookMetrics.IncOutcome("rejected_signature")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var notification settlement.Notification
		if err := json.Unmarshal(body, &notification); err != nil {
			webhookMetrics.IncOutcome("rejected_body")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode notification"))
			return
		}

		// One guard entry per (payment, status) pair: the processor re-sends
		// the same status on its retry schedule, but a later status for the
		// same payment must still get through.
		guardKey := guard.IdempotencyKey(guardScope, notification.PaymentID.String()+":"+notification.PaymentStatus)
		fresh, err := guard.SetNX(ctx, guardKey, "1", guardTTL)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if !fresh {
			webhookMetrics.IncOutcome("duplicate_delivery")
			responses.WriteSuccess(w, map[string]string{"outcome": "duplicate_delivery"})
			return
		}

		outcome, err := reconciler.Process(ctx, notification)
		if err != nil {
			_ = guard.Del(ctx, guardKey)
			webhookMetrics.IncOutcome("error")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		webhookMetrics.IncOutcome(string(outcome))
		responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
	}
}
