// Package service implements the business logic of the storefront:
// delivery zone resolution, session state, the conversation step
// machine, payment dispatch and webhook reconciliation.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boutikcards/chat-commerce-go/internal/config"
	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/intent"
	"github.com/boutikcards/chat-commerce-go/internal/infra/observability"
	"github.com/boutikcards/chat-commerce-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var zoneTracer = otel.Tracer("service/zones")

const zoneCacheKey = "active_zones"

// Zones resolves city names to deliverability verdicts and fees.
// Lookups never fail: a store outage degrades to the configured
// fallback zone set so checkout stays available.
type Zones struct {
	store    port.ZoneStore
	cache    port.Cache[[]domain.DeliveryZone]
	fallback []domain.DeliveryZone
	currency string
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewZones creates the zone resolver. The fallback set comes from the
// taxonomy configuration.
func NewZones(store port.ZoneStore, cache port.Cache[[]domain.DeliveryZone], taxonomy *config.Taxonomy, currency string, metrics *observability.Metrics, logger *zap.Logger) *Zones {
	fallback := make([]domain.DeliveryZone, 0, len(taxonomy.Fallback.Zones))
	for _, z := range taxonomy.Fallback.Zones {
		fallback = append(fallback, domain.DeliveryZone{
			Name:                  z.Name,
			Cities:                z.Cities,
			Cost:                  z.Cost,
			FreeDeliveryThreshold: z.FreeDeliveryThreshold,
			Active:                true,
		})
	}
	return &Zones{
		store:    store,
		cache:    cache,
		fallback: fallback,
		currency: currency,
		metrics:  metrics,
		logger:   logger,
	}
}

// activeZones returns the zone list, refreshing the cache lazily on
// the first call after expiry. On store failure it serves the fallback
// set and logs, never errors.
func (z *Zones) activeZones(ctx context.Context) []domain.DeliveryZone {
	if zones, ok := z.cache.Get(zoneCacheKey); ok {
		z.metrics.IncrCacheHit("zones")
		return zones
	}
	z.metrics.IncrCacheMiss("zones")

	zones, err := z.store.ListActiveZones(ctx)
	if err != nil {
		z.metrics.IncrExternalError("supabase/zones")
		z.logger.Warn("zone refresh failed, serving fallback zones", zap.Error(err))
		return z.fallback
	}
	if len(zones) == 0 {
		return z.fallback
	}

	z.cache.Set(zoneCacheKey, zones)
	return zones
}

// normalizeCity lowercases, strips accents and collapses whitespace.
func normalizeCity(city string) string {
	return strings.Join(strings.Fields(intent.Normalize(city)), " ")
}

// ValidateCity resolves a city + order amount to a deliverability
// verdict. It never returns an error.
func (z *Zones) ValidateCity(ctx context.Context, city string, orderAmount float64) *domain.CityValidation {
	ctx, span := zoneTracer.Start(ctx, "Zones.ValidateCity")
	defer span.End()
	span.SetAttributes(attribute.String("zone.city", city))

	normalized := normalizeCity(city)
	if normalized == "" {
		return &domain.CityValidation{
			IsDeliverable: false,
			Message:       "Veuillez indiquer votre ville de livraison.",
		}
	}

	for _, zone := range z.activeZones(ctx) {
		for _, candidate := range zone.Cities {
			if normalizeCity(candidate) != normalized {
				continue
			}

			cost := zone.Cost
			free := cost == 0 || (zone.FreeDeliveryThreshold > 0 && orderAmount >= zone.FreeDeliveryThreshold)
			if free {
				cost = 0
			}

			msg := fmt.Sprintf("Livraison à %s: %.0f %s.", candidate, cost, z.currency)
			if free {
				msg = fmt.Sprintf("Bonne nouvelle, la livraison à %s est gratuite!", candidate)
			}

			span.SetAttributes(attribute.String("zone.name", zone.Name))
			return &domain.CityValidation{
				IsDeliverable:  true,
				DeliveryCost:   cost,
				IsFreeDelivery: free,
				Message:        msg,
				ZoneName:       zone.Name,
			}
		}
	}

	return &domain.CityValidation{
		IsDeliverable: false,
		Message:       fmt.Sprintf("Désolé, nous ne livrons pas encore à %s. Nous espérons bientôt étendre nos zones!", strings.TrimSpace(city)),
	}
}

// ListZones returns the active zone set the resolver currently matches
// against, fallback included when the store is unreachable.
func (z *Zones) ListZones(ctx context.Context) []domain.DeliveryZone {
	ctx, span := zoneTracer.Start(ctx, "Zones.ListZones")
	defer span.End()
	return z.activeZones(ctx)
}

// RefreshZones drops the cache so the next lookup reloads from the
// store. Used by the back office after editing zones.
func (z *Zones) RefreshZones() {
	z.cache.Delete(zoneCacheKey)
}
