package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ovasilenko/chatmarket-backend/internal/basket"
	"github.com/ovasilenko/chatmarket-backend/internal/buyers"
	"github.com/ovasilenko/chatmarket-backend/internal/inventory"
	"github.com/ovasilenko/chatmarket-backend/internal/payments"
	"github.com/ovasilenko/chatmarket-backend/internal/purchases"
	"github.com/ovasilenko/chatmarket-backend/pkg/db"
	"github.com/ovasilenko/chatmarket-backend/pkg/db/models"
	"github.com/ovasilenko/chatmarket-backend/pkg/enums"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
	"github.com/ovasilenko/chatmarket-backend/pkg/logger"
	"github.com/ovasilenko/chatmarket-backend/pkg/outbox"
	"github.com/ovasilenko/chatmarket-backend/pkg/outbox/payloads"
	"github.com/ovasilenko/chatmarket-backend/pkg/types"
)

// Outcome classifies how a webhook delivery was reconciled.
type Outcome string

const (
	OutcomeIgnoredChild    Outcome = "ignored_child"
	OutcomeIgnoredStatus   Outcome = "ignored_status"
	OutcomeUnknownPayment  Outcome = "unknown_payment"
	OutcomeAlreadySettled  Outcome = "already_settled"
	OutcomeFinalized       Outcome = "finalized"
	OutcomeCredited        Outcome = "credited"
	OutcomeUnderpaid       Outcome = "underpaid"
	OutcomeFailedReleased  Outcome = "failed_released"
	OutcomeCriticalFailure Outcome = "critical_failure"
)

// Notification is the processor's webhook body after signature verification.
type Notification struct {
	PaymentID       json.Number     `json:"payment_id"`
	ParentPaymentID json.Number     `json:"parent_payment_id"`
	PaymentStatus   string          `json:"payment_status"`
	PayCurrency     string          `json:"pay_currency"`
	ActuallyPaid    decimal.Decimal `json:"actually_paid"`
	PayAmount       decimal.Decimal `json:"pay_amount"`
	OrderID         string          `json:"order_id"`
}

// ReconcilerParams wires the reconciler dependencies.
type ReconcilerParams struct {
	DB        *db.Client
	Pending   *payments.PendingRepository
	Buyers    *buyers.Repository
	Baskets   *basket.Repository
	Inventory *inventory.Repository
	Finalizer *purchases.Finalizer
	Outbox    *outbox.Service
	Logger    *logger.Logger
	FeeFactor decimal.Decimal
}

// Reconciler drives pending settlements to their terminal state from
// processor webhooks. Terminal outcomes delete the pending row, so a
// redelivered terminal webhook finds nothing and acks as a no-op.
type Reconciler struct {
	db        *db.Client
	pending   *payments.PendingRepository
	buyers    *buyers.Repository
	baskets   *basket.Repository
	inventory *inventory.Repository
	finalizer *purchases.Finalizer
	outbox    *outbox.Service
	logg      *logger.Logger
	feeFactor decimal.Decimal
}

func NewReconciler(p ReconcilerParams) (*Reconciler, error) {
	switch {
	case p.DB == nil:
		return nil, errors.New("reconciler: db client is required")
	case p.Pending == nil:
		return nil, errors.New("reconciler: pending repository is required")
	case p.Buyers == nil:
		return nil, errors.New("reconciler: buyer repository is required")
	case p.Baskets == nil:
		return nil, errors.New("reconciler: basket repository is required")
	case p.Inventory == nil:
		return nil, errors.New("reconciler: inventory repository is required")
	case p.Finalizer == nil:
		return nil, errors.New("reconciler: finalizer is required")
	case p.Outbox == nil:
		return nil, errors.New("reconciler: outbox service is required")
	case p.Logger == nil:
		return nil, errors.New("reconciler: logger is required")
	}
	if p.FeeFactor.LessThanOrEqual(decimal.Zero) {
		p.FeeFactor = decimal.NewFromInt(1)
	}
	return &Reconciler{
		db:        p.DB,
		pending:   p.Pending,
		buyers:    p.Buyers,
		baskets:   p.Baskets,
		inventory: p.Inventory,
		finalizer: p.Finalizer,
		outbox:    p.Outbox,
		logg:      p.Logger,
		feeFactor: p.FeeFactor,
	}, nil
}

// Process reconciles one notification. Returning a nil error means the
// delivery was consumed and must be acked; the processor retries only on
// transport-level failures, never on business outcomes.
func (r *Reconciler) Process(ctx context.Context, n Notification) (Outcome, error) {
	paymentID := n.PaymentID.String()
	if paymentID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment_id is required")
	}
	ctx = r.logg.WithPaymentID(ctx, paymentID)

	// Child payments report partial transfers under a fresh id; only the
	// parent carries the full settlement picture.
	if parent := n.ParentPaymentID.String(); parent != "" && parent != "0" {
		r.logg.Info(r.logg.WithField(ctx, "parent_payment_id", parent), "ignoring child payment notification")
		return OutcomeIgnoredChild, nil
	}

	// Processors add statuses without notice. An unrecognized one is not a
	// malformed delivery; the record stays open until a status we know arrives.
	status, err := enums.ParsePaymentStatus(n.PaymentStatus)
	if err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "status", n.PaymentStatus), "ignoring unrecognized payment status")
		return OutcomeIgnoredStatus, nil
	}

	pending, err := r.pending.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return "", err
	}
	if pending == nil {
		r.logg.Info(ctx, "notification for unknown or settled payment")
		return OutcomeUnknownPayment, nil
	}
	ctx = r.logg.WithBuyerID(ctx, pending.BuyerID)

	switch {
	case status.IsTerminalFailure():
		return r.settleFailure(ctx, pending, status)
	case status == enums.PaymentStatusPartiallyPaid:
		return r.settleUnderpaid(ctx, pending, n, status)
	case status.IndicatesFunds():
		return r.settlePaid(ctx, pending, n, status)
	default:
		r.logg.Info(r.logg.WithField(ctx, "status", status.String()), "ignoring non-terminal payment status")
		return OutcomeIgnoredStatus, nil
	}
}

// settleFailure handles failed, refunded and expired intents. No funds moved;
// purchases give their reserved stock back.
func (r *Reconciler) settleFailure(ctx context.Context, pending *models.PendingSettlement, status enums.PaymentStatus) (Outcome, error) {
	outcome := OutcomeFailedReleased
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		deleted, err := r.pending.WithTx(tx).Delete(ctx, pending.PaymentID)
		if err != nil {
			return err
		}
		if !deleted {
			outcome = OutcomeAlreadySettled
			return nil
		}

		if pending.IsPurchase {
			if err := r.releaseSnapshot(ctx, tx, pending); err != nil {
				return err
			}
		}

		if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementFailed,
			AggregateType: enums.AggregatePendingSettlement,
			AggregateID:   pending.PaymentID,
			Data: payloads.SettlementFailedEvent{
				PaymentID: pending.PaymentID,
				BuyerID:   pending.BuyerID,
				Status:    status.String(),
				Underpaid: false,
			},
		}); err != nil {
			return err
		}

		return r.notify(ctx, tx, pending.BuyerID,
			fmt.Sprintf("Your payment %s was not completed (%s). Reserved items were returned to stock.",
				pending.PaymentID, status))
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// settleUnderpaid handles payments that arrived short of the expected amount,
// whichever status reported them. A purchase cannot be partially delivered, so
// the basket is released; a top-up credits proportionally to what arrived.
func (r *Reconciler) settleUnderpaid(ctx context.Context, pending *models.PendingSettlement, n Notification, status enums.PaymentStatus) (Outcome, error) {
	if !pending.IsPurchase {
		return r.creditTopUp(ctx, pending, n.ActuallyPaid, OutcomeCredited)
	}

	outcome := OutcomeUnderpaid
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		deleted, err := r.pending.WithTx(tx).Delete(ctx, pending.PaymentID)
		if err != nil {
			return err
		}
		if !deleted {
			outcome = OutcomeAlreadySettled
			return nil
		}

		if err := r.releaseSnapshot(ctx, tx, pending); err != nil {
			return err
		}

		if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementUnderpaid,
			AggregateType: enums.AggregatePendingSettlement,
			AggregateID:   pending.PaymentID,
			Data: payloads.SettlementFailedEvent{
				PaymentID: pending.PaymentID,
				BuyerID:   pending.BuyerID,
				Status:    status.String(),
				Underpaid: true,
			},
		}); err != nil {
			return err
		}

		return r.notify(ctx, tx, pending.BuyerID,
			fmt.Sprintf("Payment %s arrived underfunded. The order was cancelled and reserved items were returned to stock. Contact support for a refund.",
				pending.PaymentID))
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// settlePaid handles finished and confirmed intents.
func (r *Reconciler) settlePaid(ctx context.Context, pending *models.PendingSettlement, n Notification, status enums.PaymentStatus) (Outcome, error) {
	if !pending.IsPurchase {
		received := n.ActuallyPaid
		if received.LessThanOrEqual(decimal.Zero) {
			// Some processors omit actually_paid on fully settled intents.
			received = pending.ExpectedAssetAmount
		}
		return r.creditTopUp(ctx, pending, received, OutcomeCredited)
	}

	// A finished or confirmed intent can still have arrived short. A purchase
	// only finalizes on the full expected amount; anything less is underpaid.
	if n.ActuallyPaid.IsPositive() && n.ActuallyPaid.LessThan(pending.ExpectedAssetAmount) {
		return r.settleUnderpaid(ctx, pending, n, status)
	}

	outcome := OutcomeFinalized
	var result *purchases.Result
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		deleted, err := r.pending.WithTx(tx).Delete(ctx, pending.PaymentID)
		if err != nil {
			return err
		}
		if !deleted {
			outcome = OutcomeAlreadySettled
			return nil
		}

		result, err = r.finalizer.Finalize(ctx, tx, pending)
		if err != nil {
			return err
		}

		if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseFinalized,
			AggregateType: enums.AggregatePendingSettlement,
			AggregateID:   pending.PaymentID,
			Data: payloads.PurchaseFinalizedEvent{
				PaymentID:      pending.PaymentID,
				BuyerID:        pending.BuyerID,
				ItemCount:      result.ItemCount,
				TotalPaidCents: result.TotalPaidCents,
				FinalizedAt:    time.Now().UTC(),
			},
		}); err != nil {
			return err
		}

		return r.notify(ctx, tx, pending.BuyerID,
			fmt.Sprintf("Payment received. Your order of %d item(s) is complete.", result.ItemCount))
	})
	if err != nil {
		// Funds arrived but delivery failed. The rollback kept the pending
		// row, and an operator has to reconcile by hand; retrying the same
		// delivery would fail the same way, so the webhook is still acked.
		r.logg.Error(ctx, "finalizing paid settlement", err)
		r.raiseOperatorAlert(ctx, pending, "purchase finalization failed", err)
		return OutcomeCriticalFailure, nil
	}
	return outcome, nil
}

// creditTopUp credits the wallet in proportion to what actually arrived,
// scaled down by the processor fee adjustment and floored to whole cents.
func (r *Reconciler) creditTopUp(ctx context.Context, pending *models.PendingSettlement, received decimal.Decimal, success Outcome) (Outcome, error) {
	if pending.ExpectedAssetAmount.LessThanOrEqual(decimal.Zero) {
		err := pkgerrors.New(pkgerrors.CodeCritical, "pending settlement has a zero expected asset amount")
		r.logg.Error(ctx, "crediting top-up", err)
		r.raiseOperatorAlert(ctx, pending, "top-up credit impossible", err)
		return OutcomeCriticalFailure, nil
	}

	credit := decimal.NewFromInt(pending.TargetAmountCents).
		Mul(received).
		Div(pending.ExpectedAssetAmount).
		Mul(r.feeFactor).
		Floor().
		IntPart()

	outcome := success
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		deleted, err := r.pending.WithTx(tx).Delete(ctx, pending.PaymentID)
		if err != nil {
			return err
		}
		if !deleted {
			outcome = OutcomeAlreadySettled
			return nil
		}

		if credit > 0 {
			if err := r.buyers.WithTx(tx).Credit(ctx, pending.BuyerID, credit); err != nil {
				return err
			}
			if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBalanceCredited,
				AggregateType: enums.AggregateBuyer,
				AggregateID:   fmt.Sprintf("%d", pending.BuyerID),
				Data: payloads.BalanceCreditedEvent{
					PaymentID:     pending.PaymentID,
					BuyerID:       pending.BuyerID,
					CreditedCents: credit,
				},
			}); err != nil {
				return err
			}
		}

		return r.notify(ctx, tx, pending.BuyerID,
			fmt.Sprintf("Your balance was topped up by %d.%02d.", credit/100, credit%100))
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// releaseSnapshot returns every still-reserved snapshot unit to the pool.
// Entries already swept were released by the sweeper; deleting pairs each
// release with exactly one removed entry.
func (r *Reconciler) releaseSnapshot(ctx context.Context, tx *gorm.DB, pending *models.PendingSettlement) error {
	snapshot, err := types.UnmarshalSnapshot(pending.BasketSnapshot)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeCritical, err, "decoding basket snapshot")
	}
	for _, item := range snapshot.Items {
		deleted, err := r.baskets.WithTx(tx).Delete(ctx, item.BasketEntryID)
		if err != nil {
			return err
		}
		if !deleted {
			continue
		}
		if err := r.inventory.WithTx(tx).Release(ctx, item.ProductUnitID); err != nil {
			return err
		}
		if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReservationReleased,
			AggregateType: enums.AggregateProductUnit,
			AggregateID:   item.ProductUnitID.String(),
			Data: payloads.ReservationReleasedEvent{
				ProductUnitID: item.ProductUnitID,
				BuyerID:       pending.BuyerID,
				Reason:        "settlement_not_paid",
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) notify(ctx context.Context, tx *gorm.DB, buyerID int64, text string) error {
	return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventBuyerNotification,
		AggregateType: enums.AggregateNotification,
		AggregateID:   fmt.Sprintf("%d", buyerID),
		Data:          payloads.BuyerNotificationEvent{BuyerID: buyerID, Text: text},
	})
}

// raiseOperatorAlert writes the alert in its own transaction because the
// business transaction it reports on has already rolled back.
func (r *Reconciler) raiseOperatorAlert(ctx context.Context, pending *models.PendingSettlement, reason string, cause error) {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOperatorAlert,
			AggregateType: enums.AggregatePendingSettlement,
			AggregateID:   pending.PaymentID,
			Data: payloads.OperatorAlertEvent{
				PaymentID: pending.PaymentID,
				BuyerID:   pending.BuyerID,
				Reason:    reason,
				Detail:    detail,
			},
		})
	})
	if err != nil {
		r.logg.Error(ctx, "writing operator alert", err)
	}
}
