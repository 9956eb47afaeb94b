package access

import (
	"errors"
	"strings"

	"github.com/winson8942-oss/line-drive-bot/internal/channel"
	"github.com/winson8942-oss/line-drive-bot/internal/whitelist"
)

var (
	// ErrAdminProtected is returned when a removal targets the administrator.
	ErrAdminProtected = errors.New("administrator cannot be removed")
	// ErrNoPrincipal is returned for events without a usable source id.
	ErrNoPrincipal = errors.New("event has no principal")
)

// Decision is the gate's verdict for one event.
type Decision string

const (
	Denied             Decision = "denied"
	Allowed            Decision = "allowed"
	RequiresEnrollment Decision = "requires_enrollment"
	Enrolled           Decision = "enrolled"
	AdminHandled       Decision = "admin_handled"
)

// Handled reports whether the event was fully consumed by the gate.
func (d Decision) Handled() bool {
	return d == Enrolled || d == AdminHandled || d == RequiresEnrollment
}

// DenialPolicy selects whether denied principals get a reply.
type DenialPolicy string

const (
	DenySilent   DenialPolicy = "silent"
	DenyExplicit DenialPolicy = "explicit"
)

// Commands are the admin keywords.
type Commands struct {
	List   string
	Add    string
	Remove string
	All    string
}

// Config configures a Gate.
type Config struct {
	Passphrase            string
	AdminUserID           string
	DenialPolicy          DenialPolicy
	AdminCommandsInGroups bool
	Commands              Commands
}

// Outcome is the result of Authorize. Reply is the text that was sent, if any.
type Outcome struct {
	Decision  Decision
	Principal whitelist.Principal
	Reply     string
	Err       error
}

// PrincipalOf maps an event source to the principal that is gated. Rooms are gated as groups.
func PrincipalOf(src channel.Source) (whitelist.Principal, bool) {
	switch src.Kind {
	case channel.SourceGroup:
		return principal(whitelist.KindGroup, src.GroupID)
	case channel.SourceRoom:
		return principal(whitelist.KindGroup, src.RoomID)
	case channel.SourceUser:
		return principal(whitelist.KindUser, src.UserID)
	default:
		return whitelist.Principal{}, false
	}
}

func principal(kind whitelist.Kind, id string) (whitelist.Principal, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return whitelist.Principal{}, false
	}
	return whitelist.Principal{Kind: kind, ID: id}, true
}

// ParseTarget reads an admin command target: "group:<id>", "user:<id>", or a bare LINE id
// whose C/R prefix marks a group or room.
func ParseTarget(raw string) (whitelist.Principal, error) {
	raw = strings.TrimSpace(raw)
	if kind, id, ok := strings.Cut(raw, ":"); ok {
		k, err := whitelist.ParseKind(kind)
		if err != nil {
			return whitelist.Principal{}, err
		}
		p := whitelist.Principal{Kind: k, ID: strings.TrimSpace(id)}
		return p, p.Validate()
	}
	if raw == "" || strings.ContainsAny(raw, " \t\n") {
		return whitelist.Principal{}, whitelist.ErrInvalidPrincipal
	}
	kind := whitelist.KindUser
	if strings.HasPrefix(raw, "C") || strings.HasPrefix(raw, "R") {
		kind = whitelist.KindGroup
	}
	return whitelist.Principal{Kind: kind, ID: raw}, nil
}
