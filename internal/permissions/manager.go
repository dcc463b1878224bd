package permissions

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

type Manager struct {
	config Config
}

func NewManager(config Config) *Manager {
	return &Manager{
		config: config,
	}
}

// HasPermission resolves the member's roles from the session state, falling back to
// the REST API when the member or guild is not cached.
func (m *Manager) HasPermission(session *discordgo.Session, guildID, userID string, requiredLevel Level) (bool, error) {
	if requiredLevel == LevelUser {
		return true, nil
	}

	member, err := session.State.Member(guildID, userID)
	if err != nil {
		member, err = session.GuildMember(guildID, userID)
		if err != nil {
			return false, fmt.Errorf("failed to get guild member: %w", err)
		}
	}

	guild, err := session.State.Guild(guildID)
	if err != nil {
		guild, err = session.Guild(guildID)
		if err != nil {
			return false, fmt.Errorf("failed to get guild: %w", err)
		}
	}

	if guild.OwnerID == userID {
		return true, nil
	}

	var names []string
	for _, roleID := range member.Roles {
		for _, role := range guild.Roles {
			if role.ID == roleID {
				names = append(names, role.Name)
				break
			}
		}
	}

	return m.Level(names).Grants(requiredLevel), nil
}

// Level maps role names to the highest level they grant.
func (m *Manager) Level(roleNames []string) Level {
	roles := make(map[string]bool, len(roleNames))
	for _, name := range roleNames {
		roles[strings.ToLower(name)] = true
	}

	if anyRole(roles, m.config.adminRoles()) {
		return LevelAdmin
	}
	if anyRole(roles, m.config.djRoles()) {
		return LevelDJ
	}
	return LevelUser
}

func anyRole(held map[string]bool, names []string) bool {
	for _, name := range names {
		if held[name] {
			return true
		}
	}
	return false
}

func (m *Manager) GetRequiredRoleName(level Level) string {
	switch level {
	case LevelDJ:
		if m.config.DJRoleName != "" {
			return m.config.DJRoleName
		}
		return "DJ"
	case LevelAdmin:
		if m.config.AdminRoleName != "" {
			return m.config.AdminRoleName
		}
		return "Admin"
	default:
		return "User"
	}
}
