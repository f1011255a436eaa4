// Package permissions maps roles to the fixed set of capabilities they grant.
package permissions

import "github.com/jakechorley/helpboard/pkg/core/model"

// Permissions is the nine-flag capability record for a role
type Permissions struct {
	CanViewTasks         bool `json:"canViewTasks"`
	CanCreateTasks       bool `json:"canCreateTasks"`
	CanClaimTasks        bool `json:"canClaimTasks"`
	CanMarkWellnessCheck bool `json:"canMarkWellnessCheck"`
	CanLogMedicalTasks   bool `json:"canLogMedicalTasks"`
	CanAccessAdmin       bool `json:"canAccessAdmin"`
	CanVerifyTasks       bool `json:"canVerifyTasks"`
	CanViewStats         bool `json:"canViewStats"`
	CanManageUsers       bool `json:"canManageUsers"`
}

var table = map[model.Role]Permissions{
	model.RoleCoordinator: {
		CanViewTasks:         true,
		CanCreateTasks:       true,
		CanClaimTasks:        true,
		CanMarkWellnessCheck: true,
		CanLogMedicalTasks:   true,
		CanAccessAdmin:       true,
		CanVerifyTasks:       true,
		CanViewStats:         true,
		CanManageUsers:       true,
	},
	model.RoleMedic: {
		CanViewTasks:         true,
		CanCreateTasks:       true,
		CanClaimTasks:        true,
		CanMarkWellnessCheck: true,
		CanLogMedicalTasks:   true,
	},
	model.RoleScout: {
		CanViewTasks:         true,
		CanCreateTasks:       true,
		CanClaimTasks:        true,
		CanMarkWellnessCheck: true,
	},
	model.RoleCommunicator: {
		CanViewTasks:   true,
		CanCreateTasks: true,
		CanClaimTasks:  true,
		CanViewStats:   true,
	},
	model.RoleVolunteer: {
		CanViewTasks:   true,
		CanCreateTasks: true,
		CanClaimTasks:  true,
	},
}

// For returns the permission record for a role. Unknown roles get the
// volunteer record.
func For(role model.Role) Permissions {
	if p, ok := table[role]; ok {
		return p
	}
	return table[model.RoleVolunteer]
}

// Has reports whether the role grants the capability
func Has(role model.Role, c model.Capability) bool {
	return For(role).Has(c)
}

// Has reports whether the capability is enabled. Unknown capabilities are false.
func (p Permissions) Has(c model.Capability) bool {
	switch c {
	case model.CanViewTasks:
		return p.CanViewTasks
	case model.CanCreateTasks:
		return p.CanCreateTasks
	case model.CanClaimTasks:
		return p.CanClaimTasks
	case model.CanMarkWellnessCheck:
		return p.CanMarkWellnessCheck
	case model.CanLogMedicalTasks:
		return p.CanLogMedicalTasks
	case model.CanAccessAdmin:
		return p.CanAccessAdmin
	case model.CanVerifyTasks:
		return p.CanVerifyTasks
	case model.CanViewStats:
		return p.CanViewStats
	case model.CanManageUsers:
		return p.CanManageUsers
	}
	return false
}

// Granted lists the enabled capabilities in table order
func (p Permissions) Granted() []model.Capability {
	var granted []model.Capability
	for _, c := range model.Capabilities {
		if p.Has(c) {
			granted = append(granted, c)
		}
	}
	return granted
}
