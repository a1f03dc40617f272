package dialogue

import "strings"

// Authorizer decides whether a user may talk to the engine at all.
type Authorizer interface {
	Authorized(userID string) bool
}

// AllowList authorizes the listed user IDs. An empty list authorizes
// everyone.
type AllowList struct {
	ids map[string]struct{}
}

// NewAllowList builds an AllowList, ignoring blank entries.
func NewAllowList(ids []string) *AllowList {
	a := &AllowList{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			a.ids[id] = struct{}{}
		}
	}
	return a
}

// Authorized implements Authorizer.
func (a *AllowList) Authorized(userID string) bool {
	if a == nil || len(a.ids) == 0 {
		return true
	}
	_, ok := a.ids[userID]
	return ok
}

// Len returns the number of listed users.
func (a *AllowList) Len() int {
	if a == nil {
		return 0
	}
	return len(a.ids)
}
