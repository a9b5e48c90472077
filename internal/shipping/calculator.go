package shipping

import "strings"

// Zone is a coarse destination class for rate lookup.
type Zone int

const (
	ZoneDomestic Zone = iota
	ZoneRegional
	ZoneWorld
)

func (z Zone) String() string {
	switch z {
	case ZoneDomestic:
		return "domestic"
	case ZoneRegional:
		return "regional"
	default:
		return "world"
	}
}

// Quote is the result of a rate calculation. Amount is in minor units.
type Quote struct {
	Carrier         string
	Label           string
	Zone            Zone
	Amount          int64
	FreeByThreshold bool
	// Manual marks parcels heavier than every bracket; the amount is 0 and
	// the label tells the buyer shipping will be quoted by hand.
	Manual bool
}

// bracket is one weight ceiling with its price for a carrier in a zone.
type bracket struct {
	maxGrams int
	amount   int64
}

type carrierRates struct {
	carrier  string
	label    string
	brackets map[Zone][]bracket
}

// Rate tables, brackets ascending by weight ceiling. Declaration order
// breaks price ties.
var carriers = []carrierRates{
	{
		carrier: "warenpost",
		label:   "Warenpost",
		brackets: map[Zone][]bracket{
			ZoneDomestic: {{500, 249}, {1000, 399}},
			ZoneRegional: {{500, 499}, {1000, 699}},
		},
	},
	{
		carrier: "dhl",
		label:   "DHL Paket",
		brackets: map[Zone][]bracket{
			ZoneDomestic: {{1000, 549}, {5000, 699}, {10000, 999}},
			ZoneRegional: {{1000, 999}, {5000, 1599}, {10000, 2099}},
			ZoneWorld:    {{1000, 1699}, {5000, 3499}, {10000, 5499}},
		},
	},
}

// regionalCountries are destinations billed at the regional tier. Anything
// unmapped falls back to the world zone.
var regionalCountries = map[string]bool{
	"AT": true, "BE": true, "BG": true, "CH": true, "CY": true, "CZ": true,
	"DK": true, "EE": true, "ES": true, "FI": true, "FR": true, "GB": true,
	"GR": true, "HR": true, "HU": true, "IE": true, "IT": true, "LT": true,
	"LU": true, "LV": true, "MT": true, "NL": true, "NO": true, "PL": true,
	"PT": true, "RO": true, "SE": true, "SI": true, "SK": true,
}

// ResolveZone maps a destination country code to a rate zone. Unknown codes
// resolve to the most expensive zone rather than failing.
func ResolveZone(countryCode string) Zone {
	cc := strings.ToUpper(strings.TrimSpace(countryCode))
	switch {
	case cc == "DE":
		return ZoneDomestic
	case regionalCountries[cc]:
		return ZoneRegional
	default:
		return ZoneWorld
	}
}

// CalcQuote returns the cheapest carrier quote for the destination, parcel
// weight and order subtotal. It never fails: unmapped countries price at the
// world tier, and overweight parcels return a manual-quote sentinel with
// amount 0. When freeThreshold is positive and the subtotal meets it, the
// amount is forced to 0 while the winning carrier is kept.
func CalcQuote(countryCode string, totalWeightGrams int, subtotal, freeThreshold int64) Quote {
	zone := ResolveZone(countryCode)

	best := Quote{Zone: zone, Manual: true, Label: "Shipping quoted separately"}
	found := false
	for _, c := range carriers {
		brackets, ok := c.brackets[zone]
		if !ok {
			continue
		}
		for _, b := range brackets {
			if totalWeightGrams > b.maxGrams {
				continue
			}
			if !found || b.amount < best.Amount {
				best = Quote{
					Carrier: c.carrier,
					Label:   c.label,
					Zone:    zone,
					Amount:  b.amount,
				}
				found = true
			}
			break
		}
	}
	if !found {
		return best
	}

	if freeThreshold > 0 && subtotal >= freeThreshold {
		best.Amount = 0
		best.FreeByThreshold = true
	}
	return best
}
