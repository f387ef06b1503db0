package domain

import "time"

// MemberState tracks whether a member accepts work.
type MemberState string

const (
	MemberAlive       MemberState = "ALIVE"
	MemberUnreachable MemberState = "UNREACHABLE"
)

// Member is a single node participating in the cluster. Address is the
// stable identity used as the key of per-member results.
type Member struct {
	UUID     string      `json:"uuid"`
	Address  string      `json:"address"`
	JoinedAt time.Time   `json:"joined_at"`
	State    MemberState `json:"state"`
}

// IsReachable returns true if the member currently accepts tasks.
func (m Member) IsReachable() bool {
	return m.State == MemberAlive
}

func (m Member) String() string {
	return m.Address
}
