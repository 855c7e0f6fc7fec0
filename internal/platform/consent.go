package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Consent is a Permissions implementation backed by a single opt-in row.
type Consent struct {
	db        *sql.DB
	autoGrant bool
}

// NewConsent returns a consent store. With autoGrant, the first request on an
// undecided store records and returns a grant.
func NewConsent(db *sql.DB, autoGrant bool) (*Consent, error) {
	if db == nil {
		return nil, fmt.Errorf("consent: db is nil")
	}
	return &Consent{db: db, autoGrant: autoGrant}, nil
}

// Request reports whether notifications are allowed.
func (c *Consent) Request(ctx context.Context) (bool, error) {
	granted, decided, err := c.Status(ctx)
	if err != nil {
		return false, err
	}
	if decided {
		return granted, nil
	}
	if !c.autoGrant {
		return false, nil
	}
	if err := c.set(ctx, true); err != nil {
		return false, err
	}
	return true, nil
}

// Status returns the recorded decision. decided is false until Grant or
// Revoke has been called.
func (c *Consent) Status(ctx context.Context) (granted, decided bool, err error) {
	var v int
	err = c.db.QueryRowContext(ctx, `SELECT granted FROM notification_consent WHERE id = 1`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to read consent: %w", err)
	}
	return v == 1, true, nil
}

// Grant records the user's opt-in.
func (c *Consent) Grant(ctx context.Context) error {
	return c.set(ctx, true)
}

// Revoke records the user's opt-out.
func (c *Consent) Revoke(ctx context.Context) error {
	return c.set(ctx, false)
}

func (c *Consent) set(ctx context.Context, granted bool) error {
	v := 0
	if granted {
		v = 1
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO notification_consent (id, granted, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET granted = excluded.granted, updated_at = excluded.updated_at
	`, v, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("failed to store consent: %w", err)
	}
	return nil
}
