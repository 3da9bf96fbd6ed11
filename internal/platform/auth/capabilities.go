package auth

// Capability names one permission flag carried in a session claim.
type Capability string

const (
	CanPrescribe     Capability = "can_prescribe"
	CanViewRecords   Capability = "can_view_records"
	CanModifyRecords Capability = "can_modify_records"
	CanSchedule      Capability = "can_schedule"
	CanReport        Capability = "can_report"
	IsAdmin          Capability = "is_admin"
	CanManageStaff   Capability = "can_manage_staff"
	CanViewFinance   Capability = "can_view_finance"
)

// Capabilities is the fixed capability set of a role, resolved once when a
// session is issued and never re-read from the store for that session.
type Capabilities struct {
	CanPrescribe     bool `json:"can_prescribe"`
	CanViewRecords   bool `json:"can_view_records"`
	CanModifyRecords bool `json:"can_modify_records"`
	CanSchedule      bool `json:"can_schedule"`
	CanReport        bool `json:"can_report"`
	IsAdmin          bool `json:"is_admin"`
	CanManageStaff   bool `json:"can_manage_staff"`
	CanViewFinance   bool `json:"can_view_finance"`
}

// Has reports the raw flag for c.
func (cs Capabilities) Has(c Capability) bool {
	switch c {
	case CanPrescribe:
		return cs.CanPrescribe
	case CanViewRecords:
		return cs.CanViewRecords
	case CanModifyRecords:
		return cs.CanModifyRecords
	case CanSchedule:
		return cs.CanSchedule
	case CanReport:
		return cs.CanReport
	case IsAdmin:
		return cs.IsAdmin
	case CanManageStaff:
		return cs.CanManageStaff
	case CanViewFinance:
		return cs.CanViewFinance
	}
	return false
}

// Allows is Has with the administrator override applied.
func (cs Capabilities) Allows(c Capability) bool {
	return cs.IsAdmin || cs.Has(c)
}

// RoleGrant is a role as the permission resolver sees it.
type RoleGrant struct {
	Name         string
	Description  string
	AccessLevel  int
	Capabilities Capabilities
}

// DefaultRoles is the catalog seeded into a fresh department store.
var DefaultRoles = []RoleGrant{
	{
		Name:        "DIRECTOR",
		Description: "Department director with full system access",
		AccessLevel: 4,
		Capabilities: Capabilities{
			CanPrescribe: true, CanViewRecords: true, CanModifyRecords: true,
			CanSchedule: true, CanReport: true, IsAdmin: true,
			CanManageStaff: true, CanViewFinance: true,
		},
	},
	{
		Name:        "MEDICO_ESPECIALISTA",
		Description: "Specialist physician",
		AccessLevel: 3,
		Capabilities: Capabilities{
			CanPrescribe: true, CanViewRecords: true, CanModifyRecords: true,
			CanSchedule: true, CanReport: true,
		},
	},
	{
		Name:        "MEDICO_GENERAL",
		Description: "General practitioner",
		AccessLevel: 3,
		Capabilities: Capabilities{
			CanPrescribe: true, CanViewRecords: true, CanModifyRecords: true,
			CanSchedule: true,
		},
	},
	{
		Name:         "ENFERMERO",
		Description:  "Nursing staff",
		AccessLevel:  2,
		Capabilities: Capabilities{CanViewRecords: true, CanSchedule: true},
	},
	{
		Name:         "ADMINISTRATIVO",
		Description:  "Administrative staff",
		AccessLevel:  1,
		Capabilities: Capabilities{CanSchedule: true},
	},
}
