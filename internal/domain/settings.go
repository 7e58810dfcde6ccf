package domain

// Setting keys persisted in the key-value settings table.
const (
	SettingPersonaName     = "ai_name"
	SettingTheme           = "selected_theme"
	SettingConsecutiveDays = "consecutive_days"
	SettingLastEntryDate   = "last_entry_date"
)

// DefaultPersonaName is the persona used until the user picks another.
const DefaultPersonaName = "루나"

// RecommendedPersonaNames lists the selectable AI persona names.
var RecommendedPersonaNames = []string{"루나", "별이", "하늘이", "민트", "소라", "유나"}

// DefaultTheme is the theme used until the user picks another.
const DefaultTheme = "라벤더"

// Themes lists the selectable visual theme identifiers. Styling itself
// belongs to the presentation layer.
var Themes = []string{"핑크", "블루", "그린", "라벤더"}

// Settings is the in-memory view of AppSettings.
type Settings struct {
	PersonaName     string `json:"persona_name"`
	Theme           string `json:"theme"`
	ConsecutiveDays int    `json:"consecutive_days"`
	LastEntryDate   string `json:"last_entry_date"`
}

// DefaultSettings returns settings for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		PersonaName: DefaultPersonaName,
		Theme:       DefaultTheme,
	}
}

// IsRecommendedPersona reports whether name is in the recommended list.
func IsRecommendedPersona(name string) bool {
	for _, n := range RecommendedPersonaNames {
		if n == name {
			return true
		}
	}
	return false
}

// IsTheme reports whether name is a known theme identifier.
func IsTheme(name string) bool {
	for _, t := range Themes {
		if t == name {
			return true
		}
	}
	return false
}
