package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrLeaseHeld = errors.New("storage: lease held by another process")

// Lease grants one process the right to write the database until ExpiresAt.
// Holders renew it well before it lapses; a crashed holder's lease simply
// expires.
type Lease struct {
	Name      string
	Owner     string
	PID       int
	Command   string
	ExpiresAt time.Time
}

// AcquireLease takes the named lease, or renews it when in.Owner already
// holds it. Another owner's unexpired lease yields ErrLeaseHeld.
func (r *SQLiteRepository) AcquireLease(ctx context.Context, in Lease, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO leases (name, owner, pid, command, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			owner = excluded.owner,
			pid = excluded.pid,
			command = excluded.command,
			expires_at = excluded.expires_at
		WHERE leases.owner = excluded.owner OR leases.expires_at <= ?`,
		in.Name, in.Owner, in.PID, in.Command, in.ExpiresAt.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("acquire lease %s: %w", in.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	holder, err := r.Lease(ctx, in.Name)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrLeaseHeld, in.Name)
	}
	return fmt.Errorf("%w: %q (pid %d) until %s", ErrLeaseHeld, holder.Command, holder.PID, holder.ExpiresAt.Format(time.RFC3339))
}

// ReleaseLease drops the lease if owner still holds it.
func (r *SQLiteRepository) ReleaseLease(ctx context.Context, name, owner string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM leases WHERE name = ? AND owner = ?`, name, owner)
	return err
}

func (r *SQLiteRepository) Lease(ctx context.Context, name string) (Lease, error) {
	var (
		out     Lease
		expires int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT name, owner, pid, command, expires_at FROM leases WHERE name = ?`, name).
		Scan(&out.Name, &out.Owner, &out.PID, &out.Command, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Lease{}, ErrNotFound
	}
	if err != nil {
		return Lease{}, err
	}
	out.ExpiresAt = time.UnixMilli(expires).UTC()
	return out, nil
}
