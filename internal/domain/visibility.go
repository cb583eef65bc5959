package domain

// IsRelevant reports whether u should see and be notified about t.
// Administrators, managers and producers see everything; operators see their
// area; consultants see the tickets they opened.
func IsRelevant(u User, t Ticket) bool {
	switch u.Role {
	case RoleAdministrator, RoleManager, RoleProducer:
		return true
	case RoleOperator:
		return u.Area != "" && t.Area == u.Area
	case RoleConsultant:
		return t.CreatedBy == u.ID
	default:
		return false
	}
}
