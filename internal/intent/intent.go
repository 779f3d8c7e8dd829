// Package intent decodes cross-app commands carried in URLs. Sibling apps
// deep-link into Flow with a query-parameter scheme that must stay stable:
//
//	?intent=create_task&title=...&body=...&due=...
//	?intent=create_note&title=...&body=...
//	?intent=create_event&title=...&location=...&starts_at=...
//
// The kind set is a closed allow-list: unknown or absent intent markers
// decode to nothing, so unrecognized commands embedded in links are ignored
// rather than dispatched blindly.
package intent

import "net/url"

// Kind discriminates the decoded intent variants.
type Kind string

const (
	KindCreateTask  Kind = "create_task"
	KindCreateNote  Kind = "create_note"
	KindCreateEvent Kind = "create_event"
)

// Intent is a decoded, validated cross-app command.
type Intent interface {
	Kind() Kind
}

// CreateTask pre-fills the task creation form.
type CreateTask struct {
	Title string
	Body  string
	Due   string
}

func (CreateTask) Kind() Kind { return KindCreateTask }

// CreateNote pre-fills the note creation form.
type CreateNote struct {
	Title string
	Body  string
}

func (CreateNote) Kind() Kind { return KindCreateNote }

// CreateEvent pre-fills the event creation form.
type CreateEvent struct {
	Title    string
	Location string
	StartsAt string
}

func (CreateEvent) Kind() Kind { return KindCreateEvent }

// Parse extracts an intent from rawURL. Malformed URLs, absent markers, and
// unknown kinds all yield (nil, false); URLs are externally supplied and
// untrusted, so decoding is strictly best effort.
func Parse(rawURL string) (Intent, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, false
	}
	params, err := url.ParseQuery(parsed.RawQuery)
	if err != nil {
		return nil, false
	}

	switch Kind(params.Get("intent")) {
	case KindCreateTask:
		return CreateTask{
			Title: params.Get("title"),
			Body:  params.Get("body"),
			Due:   params.Get("due"),
		}, true
	case KindCreateNote:
		return CreateNote{
			Title: params.Get("title"),
			Body:  params.Get("body"),
		}, true
	case KindCreateEvent:
		return CreateEvent{
			Title:    params.Get("title"),
			Location: params.Get("location"),
			StartsAt: params.Get("starts_at"),
		}, true
	}
	return nil, false
}
