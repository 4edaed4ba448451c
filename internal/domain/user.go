package domain

// User maps an owner to their custody wallet and fee standing.
// Corresponds to users table in PostgreSQL.
type User struct {
	OwnerID   string
	PublicKey string // wallet G-address held by the custody service
	Founder   bool   // privileged fee tier
	CreatedAt int64  // Unix timestamp in milliseconds
}

// Referral records a single-parent referrer edge.
// Corresponds to referrals table in PostgreSQL.
type Referral struct {
	RefereeID  string // PRIMARY KEY, each user has at most one referrer
	ReferrerID string
	CreatedAt  int64
}
