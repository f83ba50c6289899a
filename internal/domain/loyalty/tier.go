package loyalty

// Tier is a named loyalty level.
type Tier string

const (
	TierBronze   Tier = "Bronze"
	TierSilver   Tier = "Silver"
	TierGold     Tier = "Gold"
	TierPlatinum Tier = "Platinum"
)

type threshold struct {
	min  int64
	tier Tier
}

// thresholds is ordered from highest to lowest.
var thresholds = []threshold{
	{min: 800, tier: TierPlatinum},
	{min: 300, tier: TierGold},
	{min: 100, tier: TierSilver},
	{min: 0, tier: TierBronze},
}

// TierFor returns the highest tier whose threshold does not exceed balance.
func TierFor(balance int64) Tier {
	for _, t := range thresholds {
		if balance >= t.min {
			return t.tier
		}
	}
	return TierBronze
}
