package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// License grants a service access until its expiration date. The key is a
// UUID v4 and is immutable once issued. GracePeriod is a duration in
// milliseconds, matching the wire format clients consume.
type License struct {
	Key            string    `json:"key"`
	Name           string    `json:"name"`
	ServiceID      int64     `json:"service_id"`
	GracePeriod    int64     `json:"grace_period"`
	Active         bool      `json:"active"`
	ExpirationDate time.Time `json:"expiration_date"`
	AutoRenew      bool      `json:"auto_renew"`
}

type LicenseStore struct {
	db *sql.DB
}

func NewLicenseStore(db *sql.DB) *LicenseStore {
	return &LicenseStore{db: db}
}

func scanLicense(scanner interface{ Scan(...any) error }) (*License, error) {
	var l License
	var active, autoRenew int
	var expiration string
	if err := scanner.Scan(&l.Key, &l.Name, &l.ServiceID, &l.GracePeriod, &active, &expiration, &autoRenew); err != nil {
		return nil, err
	}
	l.Active = active == 1
	l.AutoRenew = autoRenew == 1

	exp, err := time.Parse(time.RFC3339Nano, expiration)
	if err != nil {
		return nil, fmt.Errorf("parse expiration date %q: %w", expiration, err)
	}
	l.ExpirationDate = exp
	return &l, nil
}

const licenseCols = `key, name, service_id, grace_period, active, expiration_date, auto_renew`

func (s *LicenseStore) List(ctx context.Context) ([]License, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+licenseCols+` FROM licenses ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	var licenses []License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		licenses = append(licenses, *l)
	}
	return licenses, rows.Err()
}

func (s *LicenseStore) GetByKey(ctx context.Context, key string) (*License, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+licenseCols+` FROM licenses WHERE key = ?`, key)
	l, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get license: %w", err)
	}
	return l, nil
}

func (s *LicenseStore) ListByServiceID(ctx context.Context, serviceID int64) ([]License, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+licenseCols+` FROM licenses WHERE service_id = ? ORDER BY key`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list licenses by service: %w", err)
	}
	defer rows.Close()

	var licenses []License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		licenses = append(licenses, *l)
	}
	return licenses, rows.Err()
}

func (s *LicenseStore) Insert(ctx context.Context, l *License) (*License, error) {
	active, autoRenew := 0, 0
	if l.Active {
		active = 1
	}
	if l.AutoRenew {
		autoRenew = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO licenses (key, name, service_id, grace_period, active, expiration_date, auto_renew)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.Key, l.Name, l.ServiceID, l.GracePeriod, active,
		l.ExpirationDate.UTC().Format(time.RFC3339Nano), autoRenew,
	)
	if err != nil {
		return nil, wrapConflict(fmt.Errorf("insert license: %w", err))
	}
	return s.GetByKey(ctx, l.Key)
}

// Update rewrites all mutable fields of the license. The key is the identity
// and never changes.
func (s *LicenseStore) Update(ctx context.Context, l *License) (*License, error) {
	active, autoRenew := 0, 0
	if l.Active {
		active = 1
	}
	if l.AutoRenew {
		autoRenew = 1
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET name = ?, service_id = ?, grace_period = ?, active = ?, expiration_date = ?, auto_renew = ?
		 WHERE key = ?`,
		l.Name, l.ServiceID, l.GracePeriod, active,
		l.ExpirationDate.UTC().Format(time.RFC3339Nano), autoRenew, l.Key,
	)
	if err != nil {
		return nil, wrapConflict(fmt.Errorf("update license: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, sql.ErrNoRows
	}
	return s.GetByKey(ctx, l.Key)
}
