package main

import (
	"context"
	"errors"

	"github.com/mickamy/go-event-sourcing"
)

// AccountService orchestrates command handling using repository + store.
type AccountService struct {
	repo *ges.Repository[*Account]
}

// NewAccountService wires a repository together.
func NewAccountService(repo *ges.Repository[*Account]) *AccountService {
	return &AccountService{repo: repo}
}

// Handle executes a command end-to-end: load-or-create → Handle → save.
func (s *AccountService) Handle(ctx context.Context, cmd any, md ges.Metadata) error {
	id := extractAccountID(cmd)
	streamID := "Account:" + id

	acc, err := s.repo.Get(ctx, streamID, nil)
	var notFound *ges.AggregateNotFoundError
	switch {
	case errors.As(err, &notFound):
		acc = &Account{}
	case err != nil:
		return err
	}

	if err := acc.Handle(cmd); err != nil {
		return err
	}

	return s.repo.Save(ctx, acc, md)
}

// extractAccountID is a tiny helper for this sample.
// In a real app, consider a command interface exposing AggregateID().
func extractAccountID(cmd any) string {
	switch c := cmd.(type) {
	case OpenAccountCommand:
		return c.AccountID
	case DepositCommand:
		return c.AccountID
	default:
		return ""
	}
}
