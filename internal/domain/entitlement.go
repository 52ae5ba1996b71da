package domain

// EntitlementStatus tags which resolution rule produced an Entitlement.
type EntitlementStatus string

const (
	EntitlementCurrent  EntitlementStatus = "current"  // unlocked plan whose window has not ended
	EntitlementFuture   EntitlementStatus = "future"   // ongoing or upcoming assignment, not unlocked
	EntitlementPrevious EntitlementStatus = "previous" // most recently finished plan
	EntitlementNone     EntitlementStatus = "none"
)

// Entitlement is the answer to "which plan should this client see".
// Plan is nil exactly when Status is EntitlementNone.
type Entitlement struct {
	Status      EntitlementStatus `json:"status"`
	Plan        *PlanAssignment   `json:"plan"`
	FromHistory bool              `json:"fromHistory"`
}

// NoEntitlement is returned for clients without any plan history.
func NoEntitlement() Entitlement {
	return Entitlement{Status: EntitlementNone}
}

func (e Entitlement) HasPlan() bool {
	return e.Status != EntitlementNone && e.Plan != nil
}
