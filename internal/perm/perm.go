// Package perm builds and evaluates the access-rule strings attached to
// directory rows. Rules use the backend's grammar: an action applied to a
// scope, e.g. read("any") or update("user:abc123").
package perm

import (
	"fmt"
	"strings"
)

type Action string

const (
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

const scopeAny = "any"

// Rule grants one action to one scope.
type Rule struct {
	Action Action
	Scope  string
}

func (r Rule) String() string {
	return fmt.Sprintf("%s(%q)", r.Action, r.Scope)
}

// UserScope names a single user as a rule scope.
func UserScope(userID string) string {
	return "user:" + userID
}

// ProfileDefaults are the rules a freshly bootstrapped identity row carries:
// anyone may read it, only the owner may change or remove it.
func ProfileDefaults(userID string) []string {
	rules := []Rule{
		{Action: ActionRead, Scope: scopeAny},
		{Action: ActionUpdate, Scope: UserScope(userID)},
		{Action: ActionDelete, Scope: UserScope(userID)},
	}
	encoded := make([]string, len(rules))
	for i, rule := range rules {
		encoded[i] = rule.String()
	}
	return encoded
}

// Parse decodes one rule string. Unparseable input yields ok=false; rules
// come from stored rows and sibling apps, so bad input is ignored rather
// than fatal.
func Parse(raw string) (Rule, bool) {
	open := strings.Index(raw, `("`)
	if open <= 0 || !strings.HasSuffix(raw, `")`) {
		return Rule{}, false
	}
	action := Action(raw[:open])
	switch action {
	case ActionRead, ActionUpdate, ActionDelete:
	default:
		return Rule{}, false
	}
	scope := raw[open+2 : len(raw)-2]
	if scope == "" {
		return Rule{}, false
	}
	return Rule{Action: action, Scope: scope}, true
}

// Can reports whether userID may perform action under the given rules.
func Can(rules []string, userID string, action Action) bool {
	for _, raw := range rules {
		rule, ok := Parse(raw)
		if !ok || rule.Action != action {
			continue
		}
		if rule.Scope == scopeAny || rule.Scope == UserScope(userID) {
			return true
		}
	}
	return false
}
