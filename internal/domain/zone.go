package domain

// DeliveryZone groups cities that share a delivery fee policy.
// City matching is case- and accent-insensitive; normalization happens
// in the zone service, the stored spellings stay as configured.
type DeliveryZone struct {
	ID     string   `json:"id,omitempty"`
	Name   string   `json:"name"`
	Cities []string `json:"cities"`
	Cost   float64  `json:"cost"`

	// FreeDeliveryThreshold waives the fee for orders at or above this
	// amount. Zero means no threshold.
	FreeDeliveryThreshold float64 `json:"free_delivery_threshold,omitempty"`

	Active bool `json:"active"`
}

// CityValidation is the resolver's verdict for a city + order amount.
type CityValidation struct {
	IsDeliverable  bool    `json:"is_deliverable"`
	DeliveryCost   float64 `json:"delivery_cost"`
	IsFreeDelivery bool    `json:"is_free_delivery"`
	Message        string  `json:"message"`
	ZoneName       string  `json:"zone_name,omitempty"`
}
