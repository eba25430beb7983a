package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/qs3c/journal_server/config"
	"github.com/qs3c/journal_server/internal/model"
)

func TestTierResolver_Resolve(t *testing.T) {
	r := NewTierResolver(config.DefaultEntitlement(), nil, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	applied := now.AddDate(0, 0, -1)
	expired := now.Add(-time.Hour)
	later := now.AddDate(0, 0, 10)

	grant := func(typ string, value int, expiresAt *time.Time) model.PromoGrant {
		return model.PromoGrant{Type: typ, Value: value, AppliedAt: applied, ExpiresAt: expiresAt}
	}

	tests := []struct {
		name      string
		tier      string
		grants    []model.PromoGrant
		effective string
		prompts   int
		unlimited bool
		storage   int
		discount  int
	}{
		{"free baseline", model.TierFree, nil, model.TierFree, 100, false, 100, 0},
		{"pro baseline", model.TierPro, nil, model.TierPro, 1000, false, 500, 0},
		{"power is unlimited", model.TierPower, nil, model.TierPower, UnlimitedPrompts, true, 2000, 0},
		{"unknown tier falls back to free", "gold", nil, model.TierFree, 100, false, 100, 0},
		{
			"extra prompts stack", model.TierFree,
			[]model.PromoGrant{grant(model.PromoExtraPrompts, 50, nil), grant(model.PromoExtraPrompts, 25, nil)},
			model.TierFree, 175, false, 100, 0,
		},
		{
			"expired grant ignored", model.TierFree,
			[]model.PromoGrant{grant(model.PromoExtraPrompts, 50, &expired)},
			model.TierFree, 100, false, 100, 0,
		},
		{
			"pro time upgrades free", model.TierFree,
			[]model.PromoGrant{grant(model.PromoProTime, 30, &later)},
			model.TierPro, 1000, false, 500, 0,
		},
		{
			"pro time with extra prompts", model.TierFree,
			[]model.PromoGrant{grant(model.PromoExtraPrompts, 10, nil), grant(model.PromoProTime, 30, &later)},
			model.TierPro, 1010, false, 500, 0,
		},
		{
			"pro time never downgrades power", model.TierPower,
			[]model.PromoGrant{grant(model.PromoProTime, 30, &later)},
			model.TierPower, UnlimitedPrompts, true, 2000, 0,
		},
		{
			"largest discount wins", model.TierFree,
			[]model.PromoGrant{grant(model.PromoProDiscount, 20, nil), grant(model.PromoProDiscount, 40, nil)},
			model.TierFree, 100, false, 100, 40,
		},
		{
			"discount capped", model.TierFree,
			[]model.PromoGrant{grant(model.PromoProDiscount, 150, nil)},
			model.TierFree, 100, false, 100, 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ent := r.Resolve(tt.tier, tt.grants, now)
			assert.Equal(t, tt.tier, ent.Tier)
			assert.Equal(t, tt.effective, ent.EffectiveTier)
			assert.Equal(t, tt.prompts, ent.PromptsPerMonth)
			assert.Equal(t, tt.unlimited, ent.Unlimited)
			assert.Equal(t, tt.storage, ent.StorageLimitMB)
			assert.Equal(t, tt.discount, ent.DiscountPercent)
		})
	}
}

func TestTierResolver_GrantNotYetApplied(t *testing.T) {
	r := NewTierResolver(config.DefaultEntitlement(), nil, nil)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	ent := r.Resolve(model.TierFree, []model.PromoGrant{
		{Type: model.PromoExtraPrompts, Value: 50, AppliedAt: now.Add(time.Minute)},
	}, now)
	assert.Equal(t, 100, ent.PromptsPerMonth)
}

func TestTierResolver_ValidTier(t *testing.T) {
	r := NewTierResolver(config.DefaultEntitlement(), nil, nil)

	assert.True(t, r.ValidTier(model.TierFree))
	assert.True(t, r.ValidTier(model.TierPro))
	assert.True(t, r.ValidTier(model.TierPower))
	assert.False(t, r.ValidTier("enterprise"))
}
