// Package kvstore persists raw per-user values under (namespace, field) keys.
//
// Callers own serialisation; the store only moves strings. Reading an absent
// field is not an error, and every operation on an unresolved namespace is a
// no-op.
package kvstore

import (
	"context"
	"errors"

	"github.com/congo-pay/tontine/internal/namespace"
)

// Persisted field suffixes.
const (
	FieldBalance       = "_balance"
	FieldTransactions  = "_transactions"
	FieldPremium       = "_premium"
	FieldPremiumExpiry = "_premium_expiry"
	FieldCircles       = "_tontines"
	FieldGoals         = "_goals"
	FieldFunds         = "_funds"
)

// ErrConflict is returned by Update when concurrent writers kept changing the
// fields it read.
var ErrConflict = errors.New("concurrent update conflict")

// Mutation is what an UpdateFunc asks the store to apply.
type Mutation struct {
	Set    map[string]string
	Delete []string
}

// UpdateFunc receives the present values of the requested fields (absent
// fields are missing from the map). It may run more than once.
type UpdateFunc func(current map[string]string) (Mutation, error)

// Store defines the contract implemented by persistence backends.
type Store interface {
	Read(ctx context.Context, ns namespace.Namespace, field string) (string, bool, error)
	Write(ctx context.Context, ns namespace.Namespace, field, value string) error
	// WriteMany stores every field atomically.
	WriteMany(ctx context.Context, ns namespace.Namespace, values map[string]string) error
	Delete(ctx context.Context, ns namespace.Namespace, fields ...string) error
	// Update reads fields, passes them to fn and applies the returned
	// Mutation atomically, failing or retrying if another writer touched the
	// fields in between. An error from fn aborts without writing.
	Update(ctx context.Context, ns namespace.Namespace, fields []string, fn UpdateFunc) error
	Ping(ctx context.Context) error
}
