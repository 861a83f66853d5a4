package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Delivery zones (implements port.ZoneStore)
// ============================================================

type zoneRow struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	Cities                []string `json:"cities"`
	Cost                  float64  `json:"cost"`
	FreeDeliveryThreshold float64  `json:"free_delivery_threshold"`
	Active                bool     `json:"active"`
}

// ListActiveZones returns every active delivery zone.
func (c *Client) ListActiveZones(ctx context.Context) ([]domain.DeliveryZone, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListActiveZones")
	defer span.End()

	var zones []domain.DeliveryZone

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := "delivery_zones?active=eq.true&order=name.asc"
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}
			if body == nil {
				zones = nil
				return nil
			}

			var rows []zoneRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode delivery zones: %w", err)
			}

			zones = make([]domain.DeliveryZone, 0, len(rows))
			for _, r := range rows {
				zones = append(zones, domain.DeliveryZone{
					ID:                    r.ID,
					Name:                  r.Name,
					Cities:                r.Cities,
					Cost:                  r.Cost,
					FreeDeliveryThreshold: r.FreeDeliveryThreshold,
					Active:                r.Active,
				})
			}
			return nil
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/zones", Err: err}
	}

	span.SetAttributes(attribute.Int("zones.count", len(zones)))
	return zones, nil
}
