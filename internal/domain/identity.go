package domain

// Tier classifies callers for rate-limit purposes.
type Tier string

const (
	// TierFree is the default tier.
	TierFree Tier = "FREE"
	// TierPro is the paid tier.
	TierPro Tier = "PRO"
)

// AnonymousID is the identity used when the caller does not identify itself.
const AnonymousID = "anonymous"

// Identity describes the caller of a chat turn.
type Identity struct {
	ID    string `json:"id"`
	IsPro bool   `json:"isPro"`
}

// Anonymous returns the default free-tier identity.
func Anonymous() Identity {
	return Identity{ID: AnonymousID}
}

// Tier returns the rate-limit tier of the caller.
func (i Identity) Tier() Tier {
	if i.IsPro {
		return TierPro
	}
	return TierFree
}

// IsAnonymous reports whether the caller did not identify itself.
func (i Identity) IsAnonymous() bool {
	return i.ID == "" || i.ID == AnonymousID
}
