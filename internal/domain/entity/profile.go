package entity

import "time"

// Role is a dashboard permission tier stored on a user's profile
type Role string

const (
	RoleMember           Role = "member"
	RoleGeneralOfficer   Role = "general_officer"
	RoleExecutiveOfficer Role = "executive_officer"
	RoleAdministrator    Role = "administrator"
	RolePastOfficer      Role = "past_officer"
	RoleSponsor          Role = "sponsor"
)

var validRoles = map[Role]bool{
	RoleMember:           true,
	RoleGeneralOfficer:   true,
	RoleExecutiveOfficer: true,
	RoleAdministrator:    true,
	RolePastOfficer:      true,
	RoleSponsor:          true,
}

// IsValid returns true if the role is a known tier
func (r Role) IsValid() bool {
	return validRoles[r]
}

// Profile is the per-user document the auth provider resolves roles from
type Profile struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Actor is the authenticated caller of an operation
type Actor struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// ActorFromProfile builds the actor for a signed-in user
func ActorFromProfile(p *Profile) Actor {
	return Actor{UserID: p.UserID, DisplayName: p.DisplayName, Role: p.Role}
}
