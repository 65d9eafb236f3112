package domain

import (
	"time"

	"github.com/google/uuid"
)

// VoterKey is the dedup token for a single vote: the origin network address
// combined with a client-generated fingerprint. Both parts are spoofable, so
// the key is a soft deterrent against double voting, not an identity.
type VoterKey struct {
	Address     string
	Fingerprint string
}

func (k VoterKey) String() string {
	return k.Address + ":" + k.Fingerprint
}

// Vote is an append-only audit record. Writing it is best-effort: its absence
// never invalidates a vote the counter has already accepted.
type Vote struct {
	ID          uuid.UUID  `json:"id"`
	PollID      uuid.UUID  `json:"poll_id"`
	OptionID    uuid.UUID  `json:"option_id"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	IPAddress   string     `json:"ip_address"`
	Fingerprint string     `json:"fingerprint"`
	CreatedAt   time.Time  `json:"created_at"`
}
