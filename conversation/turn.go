// Package conversation holds the per-role message logs shared by the whole
// process: one append-only log for each partner's private exchange with their
// representor, and one for the therapist's mediated conversation.
package conversation

import (
	"errors"
	"fmt"
)

// Role identifies one of the three fixed conversation logs.
type Role int

const (
	RolePartner1 Role = iota + 1
	RolePartner2
	RoleTherapist
)

// Roles lists every valid role in declaration order.
var Roles = []Role{RolePartner1, RolePartner2, RoleTherapist}

func (r Role) String() string {
	switch r {
	case RolePartner1:
		return "partner1"
	case RolePartner2:
		return "partner2"
	case RoleTherapist:
		return "therapist"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Valid reports whether r is one of the three fixed roles.
func (r Role) Valid() bool {
	return r == RolePartner1 || r == RolePartner2 || r == RoleTherapist
}

// PartnerID is one of the two human parties, 1 or 2.
type PartnerID int

// Valid reports whether the id names an actual partner.
func (p PartnerID) Valid() bool {
	return p == 1 || p == 2
}

// Log returns the partner's private conversation log role.
func (p PartnerID) Log() Role {
	if p == 2 {
		return RolePartner2
	}
	return RolePartner1
}

// Speaker distinguishes who produced a turn within a log.
const (
	SpeakerUser      = "user"
	SpeakerAssistant = "assistant"
)

// Turn is one message within a role's log. Turns are immutable once
// appended; insertion order is the dialogue order fed to the model.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// Partner attributes a therapist-log user turn to the partner who
	// approved it. Zero on every other turn.
	Partner PartnerID `json:"attributed_to,omitempty"`
}

// ErrUnknownRole is returned when a log lookup names a role outside the
// three fixed identities. It indicates a routing bug, not user input.
var ErrUnknownRole = errors.New("conversation: unknown role")

// History is a point-in-time snapshot of all three logs.
type History struct {
	Partner1  []Turn `json:"partner1"`
	Partner2  []Turn `json:"partner2"`
	Therapist []Turn `json:"therapist"`
}
