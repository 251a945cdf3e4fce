package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
	"github.com/storefront-systems/storefront-stack/catalog/internal/repository"
	"github.com/storefront-systems/storefront-stack/catalog/internal/slotpool"
)

// recordingOutbox captures appended events for assertions.
type recordingOutbox struct {
	mu      sync.Mutex
	events  []models.DomainEvent
	failing bool
}

func (o *recordingOutbox) Append(_ context.Context, _ pgx.Tx, evt models.DomainEvent) error {
	if o.failing {
		return errors.New("outbox insert failed")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, evt)
	return nil
}

func (o *recordingOutbox) types() []models.EventType {
	o.mu.Lock()
	defer o.mu.Unlock()
	types := make([]models.EventType, len(o.events))
	for i, evt := range o.events {
		types[i] = evt.Type
	}
	return types
}

func newCouponFixture(t *testing.T) (*CouponService, *slotpool.MemoryPool, *recordingOutbox) {
	t.Helper()

	slots := slotpool.NewMemoryPool()
	outbox := &recordingOutbox{}
	svc := NewCouponService(repository.MemoryTxRunner{}, repository.NewMemoryCouponRepository(), slots, outbox, nil)
	return svc, slots, outbox
}

func TestCreateCoupon_LimitedMaterializesSlots(t *testing.T) {
	svc, slots, outbox := newCouponFixture(t)
	ctx := context.Background()

	coupon, err := svc.CreateCoupon(ctx, CreateCouponInput{
		Code:    "SAVE10",
		Kind:    models.CouponLimited,
		MaxUses: 5,
		Active:  true,
	})
	require.NoError(t, err)

	remaining, err := slots.Remaining(ctx, coupon.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)
	assert.Equal(t, []models.EventType{models.EventCouponCreated}, outbox.types())
}

func TestCreateCoupon_UnlimitedHasNoSlots(t *testing.T) {
	svc, slots, _ := newCouponFixture(t)
	ctx := context.Background()

	coupon, err := svc.CreateCoupon(ctx, CreateCouponInput{
		Code:   "FOREVER",
		Kind:   models.CouponUnlimited,
		Active: true,
	})
	require.NoError(t, err)

	remaining, err := slots.Remaining(ctx, coupon.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestCreateCoupon_Validation(t *testing.T) {
	svc, _, _ := newCouponFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreateCouponInput
	}{
		{"missing code", CreateCouponInput{Kind: models.CouponLimited, MaxUses: 1}},
		{"limited without budget", CreateCouponInput{Code: "X", Kind: models.CouponLimited}},
		{"unlimited with budget", CreateCouponInput{Code: "X", Kind: models.CouponUnlimited, MaxUses: 3}},
		{"unknown kind", CreateCouponInput{Code: "X", Kind: "weekly"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateCoupon(ctx, tt.input)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}

func TestValidateAndReserve_BudgetNeverOverdrawn(t *testing.T) {
	svc, _, _ := newCouponFixture(t)
	ctx := context.Background()

	_, err := svc.CreateCoupon(ctx, CreateCouponInput{
		Code:    "TWICE",
		Kind:    models.CouponLimited,
		MaxUses: 2,
		Active:  true,
	})
	require.NoError(t, err)

	const redeemers = 3

	var wg sync.WaitGroup
	var mu sync.Mutex
	verdicts := map[RedemptionVerdict]int{}

	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			verdict, _, err := svc.ValidateAndReserve(ctx, "TWICE")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			verdicts[verdict]++
			mu.Unlock()
		}()
	}

	wg.Wait()
	assert.Equal(t, 2, verdicts[Approved])
	assert.Equal(t, 1, verdicts[SlotsExhausted])
}

func TestValidateAndReserve_UnlimitedNeverExhausts(t *testing.T) {
	svc, _, _ := newCouponFixture(t)
	ctx := context.Background()

	_, err := svc.CreateCoupon(ctx, CreateCouponInput{
		Code:   "FOREVER",
		Kind:   models.CouponUnlimited,
		Active: true,
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		verdict, _, err := svc.ValidateAndReserve(ctx, "FOREVER")
		require.NoError(t, err)
		assert.Equal(t, Approved, verdict)
	}
}

func TestValidateAndReserve_Verdicts(t *testing.T) {
	svc, _, _ := newCouponFixture(t)
	ctx := context.Background()

	expired := time.Now().UTC().Add(-time.Hour)
	_, err := svc.CreateCoupon(ctx, CreateCouponInput{
		Code:      "OLD",
		Kind:      models.CouponUnlimited,
		Active:    true,
		ExpiresAt: &expired,
	})
	require.NoError(t, err)

	_, err = svc.CreateCoupon(ctx, CreateCouponInput{
		Code: "DISABLED",
		Kind: models.CouponUnlimited,
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		code string
		want RedemptionVerdict
	}{
		{"unknown code", "NOPE", CouponNotFound},
		{"expired", "OLD", ExpiredOrInactive},
		{"inactive", "DISABLED", ExpiredOrInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, _, err := svc.ValidateAndReserve(ctx, tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, verdict)
		})
	}
}

func TestDeleteCoupon_ReleasesSlotsAndEmits(t *testing.T) {
	svc, slots, outbox := newCouponFixture(t)
	ctx := context.Background()

	coupon, err := svc.CreateCoupon(ctx, CreateCouponInput{
		Code:    "GONE",
		Kind:    models.CouponLimited,
		MaxUses: 4,
		Active:  true,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteCoupon(ctx, coupon.ID))

	remaining, err := slots.Remaining(ctx, coupon.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, []models.EventType{models.EventCouponCreated, models.EventCouponDeleted}, outbox.types())

	err = svc.DeleteCoupon(ctx, coupon.ID)
	assert.True(t, errors.Is(err, repository.ErrCouponNotFound))
}
