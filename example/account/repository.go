package main

import (
	"github.com/mickamy/go-event-sourcing"
)

// accountSnapshotTopic identifies the snapshot class written for Account.
const accountSnapshotTopic = "AccountSnapshot"

// NewAccountRepository wires a ges.Repository for *Account over store,
// consulting snapshots when snapshots is non-nil.
func NewAccountRepository(store *ges.EventStore, snapshots *ges.SnapshotStore) *ges.Repository[*Account] {
	var opts []ges.RepositoryOption[*Account]
	if snapshots != nil {
		opts = append(opts, ges.WithSnapshots[*Account](snapshots, accountSnapshotTopic))
	}
	return ges.NewRepository[*Account](store, func() *Account { return &Account{} }, opts...)
}
