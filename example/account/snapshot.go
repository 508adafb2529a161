package main

import (
	"strings"
)

const accountPrefix = "Account:"

func accountIDFromStreamID(s string) string {
	if strings.HasPrefix(s, accountPrefix) {
		return strings.TrimPrefix(s, accountPrefix)
	}
	return s
}

// AccountSnapshot is the persisted state shape stored in snapshots.
type AccountSnapshot struct {
	ID      string `json:"id"`
	Owner   string `json:"owner"`
	Balance int64  `json:"balance"`
	Version int64  `json:"version"`
}

func (AccountSnapshot) EventType() string { return "AccountSnapshot" }

// serializeState converts the in-memory aggregate into a persistable snapshot.
func serializeState(a *Account) AccountSnapshot {
	return AccountSnapshot{
		ID:      accountIDFromStreamID(a.StreamID()),
		Owner:   a.owner,
		Balance: a.balance,
		Version: a.Version(),
	}
}
