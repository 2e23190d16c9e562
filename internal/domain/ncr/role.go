package ncr

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RolePM     Role = "PM"
	RoleQA     Role = "QA"
	RoleMember Role = "MEMBER"
)

type Action string

const (
	ActionCreate          Action = "create"
	ActionUpdateStatus    Action = "update_status"
	ActionClose           Action = "close"
	ActionReopen          Action = "reopen"
	ActionComment         Action = "comment"
	ActionViewInternal    Action = "view_internal"
	ActionIssueMagicLink  Action = "issue_magic_link"
	ActionRevokeMagicLink Action = "revoke_magic_link"
)

var staffRoles = []Role{RoleAdmin, RolePM, RoleQA, RoleMember}

var linkManagers = []Role{RoleAdmin, RolePM, RoleQA}

var permissions = map[Action][]Role{
	ActionCreate:          staffRoles,
	ActionUpdateStatus:    staffRoles,
	ActionClose:           staffRoles,
	ActionReopen:          staffRoles,
	ActionComment:         staffRoles,
	ActionViewInternal:    staffRoles,
	ActionIssueMagicLink:  linkManagers,
	ActionRevokeMagicLink: linkManagers,
}

func ParseRole(raw string) (Role, error) {
	normalized := Role(strings.ToUpper(strings.TrimSpace(raw)))
	for _, role := range staffRoles {
		if role == normalized {
			return role, nil
		}
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, raw)
}

func Allowed(role Role, action Action) bool {
	for _, allowed := range permissions[action] {
		if allowed == role {
			return true
		}
	}
	return false
}

// Actor is the authenticated staff identity supplied by the auth collaborator.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) Authorize(action Action) error {
	if strings.TrimSpace(a.UserID) == "" {
		return fmt.Errorf("%w: actor user id is required", ErrValidation)
	}
	if !Allowed(a.Role, action) {
		return fmt.Errorf("%w: role %q cannot %s", ErrPermission, a.Role, action)
	}
	return nil
}

// Audit actor references.
const SystemActor = "SYSTEM"

func UserActorRef(userID string) string {
	return "user:" + strings.TrimSpace(userID)
}

func MagicLinkActorRef(linkID string) string {
	return "magic_link:" + strings.TrimSpace(linkID)
}
