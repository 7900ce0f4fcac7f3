package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
)

// RolePolicy decides which roles act as reviewers
type RolePolicy struct {
	reviewers map[entity.Role]bool
}

// policyFile is the on-disk shape of a role policy
type policyFile struct {
	ReviewerRoles []string `yaml:"reviewer_roles"`
}

// DefaultRolePolicy treats executive officers and administrators as reviewers
func DefaultRolePolicy() *RolePolicy {
	p, _ := NewRolePolicy(entity.RoleExecutiveOfficer, entity.RoleAdministrator)
	return p
}

// NewRolePolicy creates a policy with the given reviewer roles
func NewRolePolicy(reviewerRoles ...entity.Role) (*RolePolicy, error) {
	if len(reviewerRoles) == 0 {
		return nil, fmt.Errorf("at least one reviewer role is required")
	}

	p := &RolePolicy{reviewers: make(map[entity.Role]bool, len(reviewerRoles))}
	for _, r := range reviewerRoles {
		if !r.IsValid() {
			return nil, fmt.Errorf("unknown role %q", r)
		}
		p.reviewers[r] = true
	}
	return p, nil
}

// LoadRolePolicy reads a YAML policy file
func LoadRolePolicy(path string) (*RolePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read role policy: %w", err)
	}
	return ParseRolePolicy(data)
}

// ParseRolePolicy parses YAML of the form `reviewer_roles: [executive_officer]`
func ParseRolePolicy(data []byte) (*RolePolicy, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse role policy: %w", err)
	}

	roles := make([]entity.Role, 0, len(f.ReviewerRoles))
	for _, r := range f.ReviewerRoles {
		roles = append(roles, entity.Role(r))
	}
	return NewRolePolicy(roles...)
}

// IsReviewer reports whether role may review records
func (p *RolePolicy) IsReviewer(role entity.Role) bool {
	return p.reviewers[role]
}

// IsAdministrator reports whether role may manage other users' profiles
func (p *RolePolicy) IsAdministrator(role entity.Role) bool {
	return role == entity.RoleAdministrator
}
