package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"helvetia/internal/models"
)

// Plan is one purchasable subscription. Prices are USDT amounts in the
// string form the provider expects.
type Plan struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	PriceUSDT string `json:"price_usdt"`
	// Duration 0 means the plan never expires.
	Duration time.Duration `json:"-"`
}

var catalog = []Plan{
	{ID: models.PlanProMonth, Title: "Pro Month", PriceUSDT: "15", Duration: 30 * 24 * time.Hour},
	{ID: models.PlanProLifetime, Title: "Pro Lifetime", PriceUSDT: "90", Duration: 0},
}

// Plans returns the sellable catalog in display order.
func Plans() []Plan {
	out := make([]Plan, len(catalog))
	copy(out, catalog)
	return out
}

func PlanByID(id string) (Plan, bool) {
	for _, p := range catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// Grant resolves what activating the plan writes onto the user: the
// stored plan type and expiry. Lifetime plans store "lifetime" with no
// expiry.
func (p Plan) Grant(now time.Time) (planType string, expiresAt *time.Time) {
	if p.Duration == 0 {
		return models.PlanLifetime, nil
	}
	expires := now.UTC().Add(p.Duration)
	return p.ID, &expires
}

// NewOrderID builds the provider order id, "<plan>-<user>-<unixtime>".
// Plan ids contain no dashes, so the id parses back unambiguously.
func NewOrderID(plan string, userID int64, now time.Time) string {
	return fmt.Sprintf("%s-%d-%d", plan, userID, now.Unix())
}

// ParseOrderID extracts the plan and user from an order id built by
// NewOrderID.
func ParseOrderID(orderID string) (plan string, userID int64, err error) {
	segments := strings.Split(orderID, "-")
	if len(segments) < 3 {
		return "", 0, fmt.Errorf("malformed order id %q", orderID)
	}
	userID, err = strconv.ParseInt(segments[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed order id %q", orderID)
	}
	return segments[0], userID, nil
}
