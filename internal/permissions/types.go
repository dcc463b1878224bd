package permissions

import "strings"

// Level is what a command needs from its caller. Guild owners pass every level.
type Level int

const (
	LevelUser Level = iota
	LevelDJ
	LevelAdmin
)

// Role names granting a level when Config leaves them empty.
const defaultDJRole = "dj"

var defaultAdminRoles = []string{"admin", "administrator"}

func (l Level) String() string {
	switch l {
	case LevelUser:
		return "User"
	case LevelDJ:
		return "DJ"
	case LevelAdmin:
		return "Admin"
	default:
		return "Unknown"
	}
}

// Grants reports whether holding l is enough for a command that needs required.
func (l Level) Grants(required Level) bool {
	return l >= required
}

// Config names the guild roles behind the DJ and admin levels.
// A custom DJ role replaces "dj"; a custom admin role is checked on top of "admin" and "administrator".
type Config struct {
	DJRoleName    string
	AdminRoleName string
}

// djRoles returns the lower-cased role names granting LevelDJ.
func (c Config) djRoles() []string {
	if c.DJRoleName != "" {
		return []string{strings.ToLower(c.DJRoleName)}
	}
	return []string{defaultDJRole}
}

// adminRoles returns the lower-cased role names granting LevelAdmin.
func (c Config) adminRoles() []string {
	if c.AdminRoleName == "" {
		return defaultAdminRoles
	}
	return append([]string{strings.ToLower(c.AdminRoleName)}, defaultAdminRoles...)
}
