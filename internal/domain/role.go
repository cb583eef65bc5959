package domain

// Role enumerates the operation's user profiles.
type Role string

const (
	RoleConsultant    Role = "consultant"
	RoleProducer      Role = "producer"
	RoleOperator      Role = "operator"
	RoleManager       Role = "manager"
	RoleAdministrator Role = "administrator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleConsultant, RoleProducer, RoleOperator, RoleManager, RoleAdministrator:
		return true
	default:
		return false
	}
}
