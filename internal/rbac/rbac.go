package rbac

type Role string
type Action string

const (
	RoleCollaborator Role = "collaborator"
	RoleManager      Role = "manager"
)

const (
	ActionApproveUsers  Action = "users.approve"
	ActionInviteUsers   Action = "users.invite"
	ActionManageMembers Action = "users.memberships"
	ActionDeleteUsers   Action = "users.delete"
)

// Can covers the sector administration actions. Activity access is not an action here: it
// follows the per-row visibility rule for every role.
func Can(role Role, _ Action) bool {
	return role == RoleManager
}

// Normalize maps unknown roles to the least privileged one.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleManager, RoleCollaborator:
		return Role(role)
	default:
		return RoleCollaborator
	}
}
