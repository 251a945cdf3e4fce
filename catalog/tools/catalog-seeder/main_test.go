package main

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
)

func TestRandomProduct(t *testing.T) {
	gofakeit.Seed(1)
	rng := rand.New(rand.NewSource(1))

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		input := randomProduct(rng, i)

		if !strings.HasPrefix(input.SKU, "SKU-") {
			t.Errorf("SKU %q does not have the SKU- prefix", input.SKU)
		}
		if seen[input.SKU] {
			t.Errorf("duplicate SKU %q", input.SKU)
		}
		seen[input.SKU] = true

		if input.Name == "" {
			t.Error("product name is empty")
		}
		if input.PriceCents < 100 {
			t.Errorf("PriceCents = %d, want >= 100", input.PriceCents)
		}
	}
}

func TestRandomCoupon(t *testing.T) {
	gofakeit.Seed(1)
	rng := rand.New(rand.NewSource(1))

	limited := 0
	for i := 0; i < 100; i++ {
		input := randomCoupon(rng, i)

		if input.Code == "" {
			t.Fatal("coupon code is empty")
		}
		if strings.Contains(input.Code, " ") {
			t.Errorf("coupon code %q contains a space", input.Code)
		}
		if !input.Active {
			t.Error("seeded coupons should be active")
		}

		switch input.Kind {
		case "limited":
			if input.MaxUses < 1 {
				t.Errorf("limited coupon has MaxUses = %d", input.MaxUses)
			}
			limited++
		case "unlimited":
			if input.MaxUses != 0 {
				t.Errorf("unlimited coupon has MaxUses = %d", input.MaxUses)
			}
		default:
			t.Errorf("unexpected kind %q", input.Kind)
		}
	}

	if limited == 0 || limited == 100 {
		t.Errorf("limited coupons = %d/100, expected a mix", limited)
	}
}

func TestRandomCoupon_DeterministicForSeed(t *testing.T) {
	gofakeit.Seed(7)
	first := randomCoupon(rand.New(rand.NewSource(7)), 0)

	gofakeit.Seed(7)
	second := randomCoupon(rand.New(rand.NewSource(7)), 0)

	if first.Code != second.Code || first.Kind != second.Kind || first.MaxUses != second.MaxUses {
		t.Errorf("same seed produced different coupons: %+v vs %+v", first, second)
	}
}
