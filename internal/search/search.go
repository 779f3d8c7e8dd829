package search

import "context"

// UserSummary is a single directory hit shaped for pickers and mention lists.
type UserSummary struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Subtitle     string   `json:"subtitle"`
	Avatar       string   `json:"avatar,omitempty"`
	ProfilePicID string   `json:"profilePicId,omitempty"`
	Apps         []string `json:"apps"`
}

// Response is the envelope returned by the directory search endpoint.
type Response struct {
	Results []UserSummary `json:"results"`
	Total   int           `json:"total"`
	Query   string        `json:"query"`
}

// Searcher can execute a directory search.
type Searcher interface {
	SearchUsers(ctx context.Context, query string, limit int) ([]UserSummary, error)
	Healthy() bool
}

// DirectoryRecord is the data we index per identity.
type DirectoryRecord struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	DisplayName  string   `json:"displayName"`
	AvatarURL    string   `json:"avatarUrl"`
	ProfilePicID string   `json:"profilePicId"`
	AppsActive   []string `json:"appsActive"`
}

func summarize(id, username, displayName, avatar, profilePicID string, apps []string) UserSummary {
	title := displayName
	if title == "" {
		title = username
	}
	if apps == nil {
		apps = []string{}
	}
	return UserSummary{
		ID:           id,
		Title:        title,
		Subtitle:     "@" + username,
		Avatar:       avatar,
		ProfilePicID: profilePicID,
		Apps:         apps,
	}
}
