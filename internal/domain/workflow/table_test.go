package workflow

import (
	"errors"
	"testing"

	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
)

func TestReimbursementTable_IsTerminal(t *testing.T) {
	table := ReimbursementTable(DefaultRolePolicy())

	tests := []struct {
		state    entity.Status
		expected bool
	}{
		{entity.StatusSubmitted, false},
		{entity.StatusApproved, false},
		{entity.StatusDeclined, true},
		{entity.StatusPaid, true},
		{entity.StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := table.IsTerminal(tt.state); got != tt.expected {
				t.Errorf("IsTerminal(%s) = %v, want %v", tt.state, got, tt.expected)
			}
		})
	}
}

func TestDepositTable_IsTerminal(t *testing.T) {
	table := DepositTable(DefaultRolePolicy())

	for _, s := range []entity.Status{entity.StatusVerified, entity.StatusRejected} {
		if !table.IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = false, want true", s)
		}
	}
	if table.IsTerminal(entity.StatusPending) {
		t.Error("pending should not be terminal")
	}
	if table.IsValid(entity.StatusSubmitted) {
		t.Error("submitted is not a deposit status")
	}
}

func TestReimbursementTable_Allowed(t *testing.T) {
	table := ReimbursementTable(DefaultRolePolicy())

	tests := []struct {
		name    string
		from    entity.Status
		role    entity.Role
		isOwner bool
		want    []entity.Status
	}{
		{"reviewer on submitted", entity.StatusSubmitted, entity.RoleExecutiveOfficer, false,
			[]entity.Status{entity.StatusApproved, entity.StatusDeclined, entity.StatusPaid}},
		{"reviewer on approved", entity.StatusApproved, entity.RoleAdministrator, false,
			[]entity.Status{entity.StatusPaid}},
		{"reviewer owns record", entity.StatusSubmitted, entity.RoleExecutiveOfficer, true, nil},
		{"member", entity.StatusSubmitted, entity.RoleMember, false, nil},
		{"general officer", entity.StatusSubmitted, entity.RoleGeneralOfficer, false, nil},
		{"terminal paid", entity.StatusPaid, entity.RoleAdministrator, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.Allowed(tt.from, tt.role, tt.isOwner)
			if len(got) != len(tt.want) {
				t.Fatalf("Allowed() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Allowed()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCheckTransition_TerminalStatusesRejectEverything(t *testing.T) {
	policy := DefaultRolePolicy()
	tables := []*Table{ReimbursementTable(policy), DepositTable(policy)}

	for _, table := range tables {
		for _, from := range table.Statuses() {
			if !table.IsTerminal(from) {
				continue
			}
			for _, to := range table.Statuses() {
				err := table.CheckTransition(from, to, entity.RoleAdministrator, false)
				if !errors.Is(err, ErrInvalidTransition) || !errors.Is(err, ErrTerminalStatus) {
					t.Errorf("%s: %s -> %s error = %v, want terminal rejection", table.Kind(), from, to, err)
				}
			}
		}
	}
}

func TestCheckTransition_SubmitterCannotChangeOwnStatus(t *testing.T) {
	policy := DefaultRolePolicy()
	roles := []entity.Role{
		entity.RoleMember, entity.RoleGeneralOfficer, entity.RoleExecutiveOfficer,
		entity.RoleAdministrator, entity.RolePastOfficer, entity.RoleSponsor,
	}

	for _, table := range []*Table{ReimbursementTable(policy), DepositTable(policy)} {
		for _, role := range roles {
			for _, from := range table.Statuses() {
				for _, to := range table.Statuses() {
					if err := table.CheckTransition(from, to, role, true); err == nil {
						t.Errorf("%s: owner with role %s moved %s -> %s", table.Kind(), role, from, to)
					}
				}
			}
		}
	}
}

func TestCheckTransition_Errors(t *testing.T) {
	table := ReimbursementTable(DefaultRolePolicy())

	tests := []struct {
		name    string
		from    entity.Status
		to      entity.Status
		role    entity.Role
		isOwner bool
		wantErr error
	}{
		{"approve", entity.StatusSubmitted, entity.StatusApproved, entity.RoleExecutiveOfficer, false, nil},
		{"direct pay", entity.StatusSubmitted, entity.StatusPaid, entity.RoleAdministrator, false, nil},
		{"pay approved", entity.StatusApproved, entity.StatusPaid, entity.RoleAdministrator, false, nil},
		{"decline approved", entity.StatusApproved, entity.StatusDeclined, entity.RoleAdministrator, false, ErrInvalidTransition},
		{"rewind", entity.StatusApproved, entity.StatusSubmitted, entity.RoleAdministrator, false, ErrInvalidTransition},
		{"member approves", entity.StatusSubmitted, entity.StatusApproved, entity.RoleMember, false, ErrPermissionDenied},
		{"self approval", entity.StatusSubmitted, entity.StatusApproved, entity.RoleAdministrator, true, ErrPermissionDenied},
		{"deposit status", entity.StatusSubmitted, entity.StatusVerified, entity.RoleAdministrator, false, ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := table.CheckTransition(tt.from, tt.to, tt.role, tt.isOwner)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("CheckTransition() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckTransition() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckEdit(t *testing.T) {
	table := DepositTable(DefaultRolePolicy())

	tests := []struct {
		name    string
		status  entity.Status
		role    entity.Role
		isOwner bool
		allowed bool
	}{
		{"owner while pending", entity.StatusPending, entity.RoleMember, true, true},
		{"owner after verification", entity.StatusVerified, entity.RoleMember, true, false},
		{"other member", entity.StatusPending, entity.RoleMember, false, false},
		{"reviewer after verification", entity.StatusVerified, entity.RoleExecutiveOfficer, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := table.CheckEdit(tt.status, tt.role, tt.isOwner)
			if tt.allowed && err != nil {
				t.Errorf("CheckEdit() error = %v, want nil", err)
			}
			if !tt.allowed && !errors.Is(err, ErrPermissionDenied) {
				t.Errorf("CheckEdit() error = %v, want %v", err, ErrPermissionDenied)
			}
		})
	}
}

func TestCheckDelete(t *testing.T) {
	table := ReimbursementTable(DefaultRolePolicy())

	if err := table.CheckDelete(entity.RoleAdministrator); err != nil {
		t.Errorf("administrator delete: %v", err)
	}
	if err := table.CheckDelete(entity.RoleGeneralOfficer); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("general officer delete error = %v, want %v", err, ErrPermissionDenied)
	}
}

func TestBuilder_PanicsOnUndeclaredTarget(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Build() should panic when a target state is never declared")
		}
	}()

	builder := NewBuilder(entity.KindDeposit, entity.StatusPending)
	builder.Configure(entity.StatusPending).Permit(entity.StatusVerified, nil)
	builder.Build(nil)
}

func TestBuilder_PanicsOnDuplicateTransition(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Permit() should panic on duplicate transition")
		}
	}()

	NewBuilder(entity.KindDeposit, entity.StatusPending).
		Configure(entity.StatusPending).
		Permit(entity.StatusVerified, nil).
		Permit(entity.StatusVerified, nil)
}

func TestParseRolePolicy(t *testing.T) {
	policy, err := ParseRolePolicy([]byte("reviewer_roles:\n  - general_officer\n"))
	if err != nil {
		t.Fatalf("ParseRolePolicy() error = %v", err)
	}
	if !policy.IsReviewer(entity.RoleGeneralOfficer) {
		t.Error("general_officer should be a reviewer")
	}
	if policy.IsReviewer(entity.RoleAdministrator) {
		t.Error("administrator is not listed and should not be a reviewer")
	}

	if _, err := ParseRolePolicy([]byte("reviewer_roles: [treasurer]")); err == nil {
		t.Error("unknown roles should be rejected")
	}
	if _, err := ParseRolePolicy([]byte("reviewer_roles: []")); err == nil {
		t.Error("an empty policy should be rejected")
	}
}
