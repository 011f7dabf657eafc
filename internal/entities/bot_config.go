package entities

// Bot config keys editable per association.
const (
	ConfigWelcomeMessage   = "welcome_message"
	ConfigHandoffMessage   = "handoff_message"
	ConfigSuspendedMessage = "suspended_message"
)

// ConfigKeys lists the keys accepted by the config API.
var ConfigKeys = []string{ConfigWelcomeMessage, ConfigHandoffMessage, ConfigSuspendedMessage}

// IsConfigKey reports whether key is an editable bot config key.
func IsConfigKey(key string) bool {
	for _, k := range ConfigKeys {
		if k == key {
			return true
		}
	}
	return false
}
