package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Taxonomy is the data-driven configuration for the intent analyzer and
// the delivery-zone fallback set. Keeping the keyword lists here (rather
// than inline in code) lets operators extend the categories without
// touching control flow.
type Taxonomy struct {
	Intent   IntentConfig        `yaml:"intent"`
	Concerns map[string][]string `yaml:"concerns"`
	Fallback FallbackZones       `yaml:"fallback_zones"`
}

// IntentConfig holds the weighted keyword categories for buying-intent
// scoring. Weights are per category hit; the final score is capped at 1.
type IntentConfig struct {
	HighWeight   float64  `yaml:"high_weight"`
	MediumWeight float64  `yaml:"medium_weight"`
	LowWeight    float64  `yaml:"low_weight"`
	High         []string `yaml:"high"`
	Medium       []string `yaml:"medium"`
	Low          []string `yaml:"low"`

	// Direct phrases trigger the express-checkout shortcut on a single
	// message, independent of the accumulated score.
	Direct []string `yaml:"direct"`

	// ReadyThreshold is the accumulated score above which a session is
	// considered ready to buy.
	ReadyThreshold float64 `yaml:"ready_threshold"`
}

// FallbackZone is one entry of the built-in zone set used when the
// backing store is unreachable.
type FallbackZone struct {
	Name                  string   `yaml:"name"`
	Cities                []string `yaml:"cities"`
	Cost                  float64  `yaml:"cost"`
	FreeDeliveryThreshold float64  `yaml:"free_delivery_threshold"`
}

// FallbackZones is the degraded-mode zone configuration.
type FallbackZones struct {
	Zones []FallbackZone `yaml:"zones"`
}

// DefaultTaxonomy returns the built-in taxonomy. The keyword weights and
// the 0.7 readiness threshold are carried over from the storefront's
// original tuning.
func DefaultTaxonomy() *Taxonomy {
	return &Taxonomy{
		Intent: IntentConfig{
			HighWeight:   0.4,
			MediumWeight: 0.25,
			LowWeight:    0.1,
			High: []string{
				"je veux acheter", "j'achète", "je prends", "je commande",
				"comment payer", "je le veux", "c'est bon pour moi",
			},
			Medium: []string{
				"prix", "combien", "coût", "ça coûte", "c'est combien",
				"disponible", "en stock", "livraison possible",
			},
			Low: []string{
				"intéressé", "intéressée", "peut-être", "je regarde",
				"plus d'infos", "détails",
			},
			Direct: []string{
				"je veux acheter", "je commande", "j'achète", "je prends",
			},
			ReadyThreshold: 0.7,
		},
		Concerns: map[string][]string{
			"price":    {"cher", "trop cher", "prix", "réduction", "remise", "promo"},
			"quality":  {"qualité", "authentique", "original", "contrefaçon", "état"},
			"delivery": {"livraison", "livrer", "délai", "quand", "expédition", "recevoir"},
			"trust":    {"confiance", "arnaque", "sécurisé", "fiable", "garantie", "remboursement"},
		},
		Fallback: FallbackZones{
			Zones: []FallbackZone{
				{Name: "Dakar", Cities: []string{"Dakar", "Pikine", "Guédiawaye", "Rufisque"}, Cost: 0},
				{Name: "Régions", Cities: []string{"Thiès", "Mbour", "Saint-Louis", "Kaolack", "Ziguinchor", "Touba"}, Cost: 2000},
			},
		},
	}
}

// LoadTaxonomy reads the taxonomy from a YAML file, falling back to the
// defaults when path is empty. Fields left unset in the file keep their
// default values.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	t := DefaultTaxonomy()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy file: %w", err)
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse taxonomy file %s: %w", path, err)
	}
	if t.Intent.ReadyThreshold <= 0 || t.Intent.ReadyThreshold > 1 {
		return nil, fmt.Errorf("taxonomy: ready_threshold must be in (0, 1], got %v", t.Intent.ReadyThreshold)
	}
	return t, nil
}
