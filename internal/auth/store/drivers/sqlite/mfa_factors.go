package sqlite

import (
	"context"
	"time"

	"github.com/nocturnehq/gatekeep/internal/auth/domain"
)

type mfaFactorsRepo struct {
	db dbtx
}

func (r *mfaFactorsRepo) CreateFactor(ctx context.Context, f domain.MFAFactor) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mfa_factors (id, user_id, kind, friendly_name, secret, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, string(f.Kind), f.FriendlyName, f.Secret, f.Enabled,
		time.Now().UTC())
	return mapConflict(err)
}

func (r *mfaFactorsRepo) ListFactorsByUser(ctx context.Context, userID string) ([]domain.MFAFactor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, kind, friendly_name, secret, enabled, created_at
		 FROM mfa_factors WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var factors []domain.MFAFactor
	for rows.Next() {
		var f domain.MFAFactor
		var kind string
		if err := rows.Scan(&f.ID, &f.UserID, &kind, &f.FriendlyName, &f.Secret,
			&f.Enabled, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Kind = domain.FactorKind(kind)
		factors = append(factors, f)
	}
	return factors, rows.Err()
}

func (r *mfaFactorsRepo) CountFactorsByKind(ctx context.Context, userID string, kind domain.FactorKind) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mfa_factors WHERE user_id = ? AND kind = ?`,
		userID, string(kind)).Scan(&count)
	return count, err
}

func (r *mfaFactorsRepo) DeleteFactor(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM mfa_factors WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
