// Package auth decides who may use the admin surface.
package auth

// Authorizer answers whether a telegram user id holds admin rights.
type Authorizer interface {
	IsAuthorized(userID int64) bool
}

// StaticAuthorizer authorizes a fixed set of ids loaded at startup.
type StaticAuthorizer struct {
	ids map[int64]struct{}
}

func NewStaticAuthorizer(ids []int64) *StaticAuthorizer {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &StaticAuthorizer{ids: set}
}

func (a *StaticAuthorizer) IsAuthorized(userID int64) bool {
	_, ok := a.ids[userID]
	return ok
}
