package models

import (
	"strings"
	"time"
)

type UserRole string

const (
	UserRoleAdmin           UserRole = "admin"
	UserRoleCampaignManager UserRole = "campaign_manager"
	UserRoleAnalyst         UserRole = "analyst"
	UserRoleOperator        UserRole = "operator"
)

var allRoles = []UserRole{
	UserRoleAdmin,
	UserRoleCampaignManager,
	UserRoleAnalyst,
	UserRoleOperator,
}

// Roles lists every role in declaration order.
func Roles() []UserRole {
	out := make([]UserRole, len(allRoles))
	copy(out, allRoles)
	return out
}

func ParseRole(s string) (UserRole, bool) {
	for _, role := range allRoles {
		if string(role) == s {
			return role, true
		}
	}
	return "", false
}

func (r UserRole) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// Label is the upper-cased display form, e.g. "CAMPAIGN MANAGER".
func (r UserRole) Label() string {
	return strings.ToUpper(strings.ReplaceAll(string(r), "_", " "))
}

// RoleSet is a membership set of roles. The empty set means
// "any authenticated identity".
type RoleSet map[UserRole]struct{}

func NewRoleSet(roles ...UserRole) RoleSet {
	set := make(RoleSet, len(roles))
	for _, role := range roles {
		set[role] = struct{}{}
	}
	return set
}

func (s RoleSet) Contains(role UserRole) bool {
	_, ok := s[role]
	return ok
}

func (s RoleSet) Empty() bool {
	return len(s) == 0
}

type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

type NotificationPreferences struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
}

type Preferences struct {
	Theme         Theme                   `json:"theme"`
	Notifications NotificationPreferences `json:"notifications"`
}

func DefaultPreferences() Preferences {
	return Preferences{Theme: ThemeDark}
}

// User is the internal profile record. ID matches the auth Identity.ID.
type User struct {
	ID          string
	Email       string
	FullName    string
	Role        UserRole
	MFAEnabled  bool
	Preferences Preferences
	Bio         *string
	AvatarURL   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const FallbackFullName = "Unknown User"

// FallbackUser is the minimal profile used when the real record is
// unavailable. It always carries the operator role.
func FallbackUser(id string, now time.Time) User {
	return User{
		ID:          id,
		Email:       "",
		FullName:    FallbackFullName,
		Role:        UserRoleOperator,
		Preferences: DefaultPreferences(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
