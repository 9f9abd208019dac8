package models

const (
	PlanFree    = "Free"
	PlanStarter = "Starter Pack"
	PlanPro     = "Pro Pack"
	PlanMega    = "Mega Pack"
)

// PlanTier is a purchasable pack. DailyCredits is both the amount granted on
// purchase and the balance restored by the daily reset.
type PlanTier struct {
	Name         string   `json:"name"`
	DailyCredits int      `json:"credits"`
	Price        int      `json:"price"`
	Features     []string `json:"features"`
}

var planTiers = []PlanTier{
	{Name: PlanStarter, DailyCredits: 1000, Price: 50, Features: []string{"1000 Credits Daily", "Standard Access"}},
	{Name: PlanPro, DailyCredits: 2500, Price: 100, Features: []string{"2500 Credits Daily", "Priority Access", "Early access to new features"}},
	{Name: PlanMega, DailyCredits: 10000, Price: 250, Features: []string{"10000 Credits", "Everything in Pro"}},
}

// PlanTiers returns a copy of the paid tier catalogue.
func PlanTiers() []PlanTier {
	out := make([]PlanTier, len(planTiers))
	copy(out, planTiers)
	return out
}

// LookupPlanTier returns the paid tier named tag. Free and custom labels are not tiers.
func LookupPlanTier(tag string) (PlanTier, bool) {
	for _, tier := range planTiers {
		if tier.Name == tag {
			return tier, true
		}
	}
	return PlanTier{}, false
}

// PaidPlanNames lists the tags swept by the daily reset.
func PaidPlanNames() []string {
	names := make([]string, 0, len(planTiers))
	for _, tier := range planTiers {
		names = append(names, tier.Name)
	}
	return names
}
