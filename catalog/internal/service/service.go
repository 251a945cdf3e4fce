// Package service implements the catalog use cases. Every aggregate
// mutation and its domain event are written in one transaction; the relay
// takes it from there.
package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/storefront-systems/storefront-stack/catalog/internal/models"
)

var (
	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientStock is returned when a deduction would take a
	// SKU's quantity negative.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrTooManyConflicts is returned when an adjustment keeps losing
	// version races past the retry budget.
	ErrTooManyConflicts = errors.New("too many concurrent stock updates")
)

// OutboxAppender records a domain event on the caller's transaction.
// Satisfied by outbox.Writer.
type OutboxAppender interface {
	Append(ctx context.Context, tx pgx.Tx, evt models.DomainEvent) error
}
