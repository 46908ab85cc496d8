package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Service is a client application gated by licenses. The client identifier is
// what callers present in the Client header during validation.
type Service struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Client string `json:"client"`
	Email  string `json:"email"`
	Active bool   `json:"active"`
}

type ServiceStore struct {
	db *sql.DB
}

func NewServiceStore(db *sql.DB) *ServiceStore {
	return &ServiceStore{db: db}
}

func scanService(scanner interface{ Scan(...any) error }) (*Service, error) {
	var sv Service
	var active int
	if err := scanner.Scan(&sv.ID, &sv.Name, &sv.Client, &sv.Email, &active); err != nil {
		return nil, err
	}
	sv.Active = active == 1
	return &sv, nil
}

const serviceCols = `id, name, client, email, active`

func (s *ServiceStore) List(ctx context.Context) ([]Service, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+serviceCols+` FROM services ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		sv, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, *sv)
	}
	return services, rows.Err()
}

func (s *ServiceStore) GetByID(ctx context.Context, id int64) (*Service, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+serviceCols+` FROM services WHERE id = ?`, id)
	sv, err := scanService(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	return sv, nil
}

func (s *ServiceStore) GetByName(ctx context.Context, name string) (*Service, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+serviceCols+` FROM services WHERE name = ?`, name)
	sv, err := scanService(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get service by name: %w", err)
	}
	return sv, nil
}

func (s *ServiceStore) Insert(ctx context.Context, sv *Service) (*Service, error) {
	active := 0
	if sv.Active {
		active = 1
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO services (name, client, email, active) VALUES (?, ?, ?, ?)`,
		sv.Name, sv.Client, sv.Email, active,
	)
	if err != nil {
		return nil, wrapConflict(fmt.Errorf("insert service: %w", err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ServiceStore) Update(ctx context.Context, sv *Service) (*Service, error) {
	active := 0
	if sv.Active {
		active = 1
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE services SET name = ?, client = ?, email = ?, active = ? WHERE id = ?`,
		sv.Name, sv.Client, sv.Email, active, sv.ID,
	)
	if err != nil {
		return nil, wrapConflict(fmt.Errorf("update service: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, sql.ErrNoRows
	}
	return s.GetByID(ctx, sv.ID)
}
