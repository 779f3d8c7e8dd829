package store

import "time"

// GlobalIdentity is the canonical cross-app user profile in the shared
// ecosystem directory. The id equals the authentication subject id and never
// changes after creation; the username is assigned once at creation.
type GlobalIdentity struct {
	ID              string
	Username        string
	DisplayName     string
	AppsActive      []string
	Bio             string
	AvatarURL       string
	ProfilePicID    string
	PrivacySettings string
	Permissions     []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasApp reports whether the identity is tagged active for the given app.
func (g GlobalIdentity) HasApp(app string) bool {
	for _, a := range g.AppsActive {
		if a == app {
			return true
		}
	}
	return false
}
