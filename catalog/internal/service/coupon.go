package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
	"github.com/storefront-systems/storefront-stack/catalog/internal/repository"
	"github.com/storefront-systems/storefront-stack/catalog/internal/slotpool"
	"github.com/storefront-systems/storefront-stack/common/logging"
)

// RedemptionVerdict classifies a coupon redemption attempt.
type RedemptionVerdict int

const (
	// Approved means the coupon is valid and, for limited coupons, a
	// slot was consumed.
	Approved RedemptionVerdict = iota

	// CouponNotFound means no coupon exists for the code.
	CouponNotFound

	// ExpiredOrInactive means the coupon exists but is not usable now.
	ExpiredOrInactive

	// SlotsExhausted means a limited coupon's budget is spent.
	SlotsExhausted
)

// String returns a log-friendly verdict name.
func (v RedemptionVerdict) String() string {
	switch v {
	case Approved:
		return "approved"
	case CouponNotFound:
		return "not_found"
	case ExpiredOrInactive:
		return "expired_or_inactive"
	case SlotsExhausted:
		return "slots_exhausted"
	default:
		return "unknown"
	}
}

// CreateCouponInput holds the fields for a new coupon.
type CreateCouponInput struct {
	Code      string
	Kind      models.CouponKind
	MaxUses   int
	Active    bool
	ExpiresAt *time.Time
}

// CouponService implements coupon use cases.
type CouponService struct {
	tx      repository.TxRunner
	coupons repository.CouponRepository
	slots   slotpool.Pool
	outbox  OutboxAppender
	logger  *logging.Logger
}

// NewCouponService creates a coupon service.
func NewCouponService(tx repository.TxRunner, coupons repository.CouponRepository, slots slotpool.Pool, outbox OutboxAppender, logger *logging.Logger) *CouponService {
	if logger == nil {
		logger = logging.Default()
	}

	return &CouponService{
		tx:      tx,
		coupons: coupons,
		slots:   slots,
		outbox:  outbox,
		logger:  logger.With(logging.Component("coupon-service")),
	}
}

// CreateCoupon creates a coupon, materializes its slot pool when limited,
// and records coupon_created, all in one transaction.
func (s *CouponService) CreateCoupon(ctx context.Context, input CreateCouponInput) (*models.Coupon, error) {
	if input.Code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrInvalidInput)
	}

	switch input.Kind {
	case models.CouponLimited:
		if input.MaxUses <= 0 {
			return nil, fmt.Errorf("%w: limited coupon needs max_uses > 0", ErrInvalidInput)
		}
	case models.CouponUnlimited:
		if input.MaxUses != 0 {
			return nil, fmt.Errorf("%w: unlimited coupon must not set max_uses", ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("%w: unknown coupon kind %q", ErrInvalidInput, input.Kind)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate coupon id: %w", err)
	}

	coupon := &models.Coupon{
		ID:        id.String(),
		Code:      input.Code,
		Kind:      input.Kind,
		MaxUses:   input.MaxUses,
		Active:    input.Active,
		ExpiresAt: input.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}

	evt, err := models.NewDomainEvent(models.EventCouponCreated, coupon)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(tx pgx.Tx) error {
		if err := s.coupons.Create(ctx, tx, coupon); err != nil {
			return err
		}
		if coupon.Kind == models.CouponLimited {
			if err := s.slots.Materialize(ctx, tx, coupon.ID, coupon.MaxUses); err != nil {
				return err
			}
		}
		return s.outbox.Append(ctx, tx, evt)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "coupon created",
		logging.CouponID(coupon.ID),
		logging.EventID(evt.EventID))
	return coupon, nil
}

// DeleteCoupon removes a coupon, releases any remaining slots, and records
// coupon_deleted, all in one transaction.
func (s *CouponService) DeleteCoupon(ctx context.Context, id string) error {
	coupon, err := s.coupons.GetByID(ctx, id)
	if err != nil {
		return err
	}

	evt, err := models.NewDomainEvent(models.EventCouponDeleted, map[string]string{
		"id":   coupon.ID,
		"code": coupon.Code,
	})
	if err != nil {
		return err
	}

	var released int64
	err = s.tx.WithinTx(ctx, func(tx pgx.Tx) error {
		if err := s.coupons.Delete(ctx, tx, id); err != nil {
			return err
		}
		released, err = s.slots.ReleaseAll(ctx, tx, id)
		if err != nil {
			return err
		}
		return s.outbox.Append(ctx, tx, evt)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "coupon deleted",
		logging.CouponID(id),
		logging.EventID(evt.EventID),
		slog.Int64("slots_released", released))
	return nil
}

// ValidateAndReserve checks a coupon code and, for limited coupons,
// consumes one slot. The verdict is final for this attempt: an Approved
// slot is spent even if the caller's order later fails, and compensation
// is the caller's responsibility.
func (s *CouponService) ValidateAndReserve(ctx context.Context, code string) (RedemptionVerdict, *models.Coupon, error) {
	coupon, err := s.coupons.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCouponNotFound) {
			return CouponNotFound, nil, nil
		}
		return 0, nil, err
	}

	if !coupon.Usable(time.Now().UTC()) {
		return ExpiredOrInactive, coupon, nil
	}

	if coupon.Kind == models.CouponUnlimited {
		return Approved, coupon, nil
	}

	ok, err := s.slots.ConsumeOne(ctx, coupon.ID)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return SlotsExhausted, coupon, nil
	}

	return Approved, coupon, nil
}
