package access

import "github.com/AntonStoeckl/circulation-core/core"

// Capability is a named permission checked independently of role labels.
type Capability string

const (
	CapManageMembers   Capability = "manage_members"
	CapManageInventory Capability = "manage_inventory"
	CapProcessLoans    Capability = "process_loans"
	CapManageStaff     Capability = "manage_staff"
	CapAdminSettings   Capability = "admin_settings"
	CapManageCatalog   Capability = "manage_catalog"
	CapViewReports     Capability = "view_reports"
)

// AllCapabilities lists the capability table in a stable order.
var AllCapabilities = []Capability{
	CapManageMembers,
	CapManageInventory,
	CapProcessLoans,
	CapManageStaff,
	CapAdminSettings,
	CapManageCatalog,
	CapViewReports,
}

// capabilityTable is fixed and not user-configurable.
var capabilityTable = map[core.Role]map[Capability]bool{
	core.RoleOwner: {
		CapManageMembers:   true,
		CapManageInventory: true,
		CapProcessLoans:    true,
		CapManageStaff:     true,
		CapAdminSettings:   true,
		CapManageCatalog:   true,
		CapViewReports:     true,
	},
	core.RoleManager: {
		CapManageMembers:   true,
		CapManageInventory: true,
		CapProcessLoans:    true,
		CapManageStaff:     true,
		CapManageCatalog:   true,
		CapViewReports:     true,
	},
	core.RoleLibrarian: {
		CapManageInventory: true,
		CapProcessLoans:    true,
		CapManageCatalog:   true,
	},
	core.RoleVolunteer: {
		CapProcessLoans: true,
	},
}

// RoleGrants reports whether role carries capability. Unknown roles and RoleNone grant nothing.
func RoleGrants(role core.Role, capability Capability) bool {
	return capabilityTable[role][capability]
}

// IsGlobal reports whether capability is evaluated without a library scope.
func (c Capability) IsGlobal() bool {
	return c == CapManageCatalog
}
