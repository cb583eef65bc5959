package domain

// User is a read-only directory entry used for routing and notification
// recipients. Accounts are managed outside this service.
type User struct {
	ID                  string
	Name                string
	Email               string
	Role                Role
	Area                Area
	SoundEnabled        bool
	SystemAlertsEnabled bool
	EmailEnabled        bool
	Active              bool
}
