package rbac

type Role string
type Action string

const (
	RoleStudent    Role = "student"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionSubmit  Action = "submit"
	ActionComment Action = "comment"
	ActionApprove Action = "approve"
	ActionAdmin   Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleSuperadmin, RoleAdmin:
		return true
	case RoleSupervisor:
		return action == ActionRead || action == ActionComment || action == ActionApprove
	case RoleStudent:
		return action == ActionRead || action == ActionWrite || action == ActionSubmit
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleStudent, RoleSupervisor, RoleAdmin, RoleSuperadmin:
		return Role(role)
	default:
		return RoleStudent
	}
}
