package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/teamspace/pkg/domain"
)

type sessionRecord struct {
	ID        string
	TokenHash string
	AccountID string
	Session   domain.Session
}

// Sessions is the in-memory refresh session store.
type Sessions struct {
	s *Store
}

// Create creates a new session.
func (ss *Sessions) Create(_ context.Context, session *domain.Session) error {
	txn := ss.s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tblSessions, &sessionRecord{
		ID:        session.ID.String(),
		TokenHash: session.TokenHash,
		AccountID: session.AccountID.String(),
		Session:   *session,
	}); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	txn.Commit()
	return nil
}

// GetByTokenHash retrieves an unrevoked session by token hash.
func (ss *Sessions) GetByTokenHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	txn := ss.s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblSessions, "token_hash", tokenHash)
	if err != nil {
		return nil, fmt.Errorf("find session by token hash: %w", err)
	}
	if raw == nil {
		return nil, domain.ErrSessionNotFound
	}
	session := raw.(*sessionRecord).Session
	if session.RevokedAt != nil {
		return nil, domain.ErrSessionNotFound
	}
	return &session, nil
}

// Revoke revokes a session.
func (ss *Sessions) Revoke(_ context.Context, id uuid.UUID) error {
	revoked, err := ss.revoke("id", id.String())
	if err != nil {
		return err
	}
	if revoked == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// RevokeByTokenHash revokes a session by token hash.
func (ss *Sessions) RevokeByTokenHash(_ context.Context, tokenHash string) error {
	_, err := ss.revoke("token_hash", tokenHash)
	return err
}

// RevokeAllByAccountID revokes all sessions for an account.
func (ss *Sessions) RevokeAllByAccountID(_ context.Context, accountID uuid.UUID) error {
	_, err := ss.revoke("account_id", accountID.String())
	return err
}

// UpdateLastSeen updates the last seen timestamp of an unrevoked session.
func (ss *Sessions) UpdateLastSeen(_ context.Context, id uuid.UUID) error {
	txn := ss.s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblSessions, "id", id.String())
	if err != nil {
		return fmt.Errorf("find session: %w", err)
	}
	if raw == nil {
		return nil
	}
	record := *raw.(*sessionRecord)
	if record.Session.RevokedAt != nil {
		return nil
	}
	now := time.Now()
	record.Session.LastSeenAt = &now
	if err := txn.Insert(tblSessions, &record); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	txn.Commit()
	return nil
}

// DeleteExpired deletes sessions that expired or were revoked before the cutoff.
func (ss *Sessions) DeleteExpired(_ context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	txn := ss.s.db.Txn(true)
	defer txn.Abort()

	iter, err := txn.Get(tblSessions, "id")
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	var stale []*sessionRecord
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		record := raw.(*sessionRecord)
		revokedBefore := record.Session.RevokedAt != nil && record.Session.RevokedAt.Before(cutoff)
		if record.Session.ExpiresAt.Before(cutoff) || revokedBefore {
			stale = append(stale, record)
		}
	}
	for _, record := range stale {
		if err := txn.Delete(tblSessions, record); err != nil {
			return 0, fmt.Errorf("delete session: %w", err)
		}
	}
	txn.Commit()
	return int64(len(stale)), nil
}

func (ss *Sessions) revoke(index, key string) (int, error) {
	txn := ss.s.db.Txn(true)
	defer txn.Abort()

	iter, err := txn.Get(tblSessions, index, key)
	if err != nil {
		return 0, fmt.Errorf("find sessions by %s: %w", index, err)
	}
	var live []sessionRecord
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		record := *raw.(*sessionRecord)
		if record.Session.RevokedAt == nil {
			live = append(live, record)
		}
	}

	now := time.Now()
	for i := range live {
		live[i].Session.RevokedAt = &now
		if err := txn.Insert(tblSessions, &live[i]); err != nil {
			return 0, fmt.Errorf("revoke session: %w", err)
		}
	}
	txn.Commit()
	return len(live), nil
}
