package trigger

// ModlogDefault selects the host's own moderation log channel.
const ModlogDefault = "default"

// ModlogToggles selects which fired actions are recorded in the modlog.
type ModlogToggles struct {
	Ban        bool `json:"ban"`
	Kick       bool `json:"kick"`
	AddRole    bool `json:"add_role"`
	RemoveRole bool `json:"remove_role"`
	Filter     bool `json:"filter"`
}

// Settings are the guild level options of the trigger engine.
type Settings struct {
	AllowMultiple bool          `json:"allow_multiple"`
	ModlogChannel string        `json:"modlog_channel"`
	Modlog        ModlogToggles `json:"modlog"`
}

// DefaultSettings returns the settings of a guild that never changed any.
func DefaultSettings() Settings {
	return Settings{ModlogChannel: ModlogDefault}
}

// Logs reports whether fired actions of kind k are recorded.
func (s Settings) Logs(k Kind) bool {
	if s.ModlogChannel == "" {
		return false
	}
	switch k {
	case KindBan:
		return s.Modlog.Ban
	case KindKick:
		return s.Modlog.Kick
	case KindAddRole:
		return s.Modlog.AddRole
	case KindRemoveRole:
		return s.Modlog.RemoveRole
	case KindDelete:
		return s.Modlog.Filter
	}
	return false
}
