package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/config"
	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/infra/cache"
	"github.com/boutikcards/chat-commerce-go/internal/infra/observability"
	"github.com/boutikcards/chat-commerce-go/internal/service"

	"go.uber.org/zap"
)

func testZones() []domain.DeliveryZone {
	return []domain.DeliveryZone{
		{Name: "Dakar", Cities: []string{"Dakar", "Pikine"}, Cost: 0, Active: true},
		{Name: "Thiès", Cities: []string{"Thiès"}, Cost: 2500, FreeDeliveryThreshold: 50000, Active: true},
	}
}

func newZoneService(store *mockZoneStore) *service.Zones {
	return service.NewZones(
		store,
		cache.New[[]domain.DeliveryZone](10*time.Minute),
		config.DefaultTaxonomy(),
		"XOF",
		observability.NewMetrics(),
		zap.NewNop(),
	)
}

func TestValidateCity_AccentInsensitiveMatch(t *testing.T) {
	z := newZoneService(&mockZoneStore{zones: testZones()})

	// "thiès" matches "Thiès"; 40,000 is below the 50,000 threshold.
	verdict := z.ValidateCity(context.Background(), "thiès", 40000)
	if !verdict.IsDeliverable {
		t.Fatal("expected thiès to be deliverable")
	}
	if verdict.DeliveryCost != 2500 || verdict.IsFreeDelivery {
		t.Errorf("expected paid delivery at 2500, got cost=%f free=%v",
			verdict.DeliveryCost, verdict.IsFreeDelivery)
	}
	if !strings.Contains(verdict.Message, "2500 XOF") {
		t.Errorf("expected the fee message in the configured currency, got %q", verdict.Message)
	}
}

func TestValidateCity_FreeThreshold(t *testing.T) {
	z := newZoneService(&mockZoneStore{zones: testZones()})

	verdict := z.ValidateCity(context.Background(), "Thiès", 60000)
	if !verdict.IsFreeDelivery || verdict.DeliveryCost != 0 {
		t.Errorf("expected free delivery above the threshold, got cost=%f free=%v",
			verdict.DeliveryCost, verdict.IsFreeDelivery)
	}
}

func TestValidateCity_FreeZoneRegardlessOfAmount(t *testing.T) {
	z := newZoneService(&mockZoneStore{zones: testZones()})

	verdict := z.ValidateCity(context.Background(), "dakar", 100)
	if !verdict.IsDeliverable || !verdict.IsFreeDelivery || verdict.DeliveryCost != 0 {
		t.Errorf("expected Dakar free regardless of amount, got %+v", verdict)
	}
}

func TestValidateCity_UnknownCity(t *testing.T) {
	z := newZoneService(&mockZoneStore{zones: testZones()})

	verdict := z.ValidateCity(context.Background(), "Bamako", 10000)
	if verdict.IsDeliverable {
		t.Error("expected an unknown city to be undeliverable")
	}
	if verdict.Message == "" {
		t.Error("expected a decline message")
	}
}

func TestValidateCity_StoreFailureFallsBack(t *testing.T) {
	z := newZoneService(&mockZoneStore{err: errors.New("store down")})

	// Fallback zones cover Dakar free and Thiès at a flat fee.
	dakar := z.ValidateCity(context.Background(), "Dakar", 10000)
	if !dakar.IsDeliverable || !dakar.IsFreeDelivery {
		t.Errorf("expected fallback Dakar free, got %+v", dakar)
	}

	thies := z.ValidateCity(context.Background(), "Thiès", 10000)
	if !thies.IsDeliverable || thies.DeliveryCost != 2000 {
		t.Errorf("expected fallback Thiès at 2000, got %+v", thies)
	}
}

func TestValidateCity_CacheAvoidsRepeatedFetches(t *testing.T) {
	store := &mockZoneStore{zones: testZones()}
	z := newZoneService(store)

	for i := 0; i < 5; i++ {
		z.ValidateCity(context.Background(), "Dakar", 1000)
	}
	if store.calls != 1 {
		t.Errorf("expected a single store fetch, got %d", store.calls)
	}

	z.RefreshZones()
	z.ValidateCity(context.Background(), "Dakar", 1000)
	if store.calls != 2 {
		t.Errorf("expected a refetch after refresh, got %d", store.calls)
	}
}

func TestValidateCity_EmptyInput(t *testing.T) {
	z := newZoneService(&mockZoneStore{zones: testZones()})

	verdict := z.ValidateCity(context.Background(), "   ", 1000)
	if verdict.IsDeliverable {
		t.Error("expected empty input to be undeliverable")
	}
}
