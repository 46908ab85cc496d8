package store

import (
	"context"
	"database/sql"
	"fmt"
)

// RequestLog is one audit record for a validation request or other logged
// endpoint access.
type RequestLog struct {
	ID         int64  `json:"id"`
	IPAddress  string `json:"ip_address"`
	Client     string `json:"client,omitempty"`
	Valid      bool   `json:"valid"`
	Reason     string `json:"reason,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	Method     string `json:"method,omitempty"`
	AccessTime string `json:"accessTime"`
}

// EndpointStat is an aggregated request count for one endpoint, optionally
// broken out per source IP.
type EndpointStat struct {
	Count     int64  `json:"count"`
	Endpoint  string `json:"endpoint,omitempty"`
	Method    string `json:"method,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	LastSeen  string `json:"accessTime"`
}

type RequestLogStore struct {
	db *sql.DB
}

func NewRequestLogStore(db *sql.DB) *RequestLogStore {
	return &RequestLogStore{db: db}
}

func (s *RequestLogStore) Insert(ctx context.Context, ip, client string, valid bool, reason, endpoint, method string) error {
	validInt := 0
	if valid {
		validInt = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO request_logs (ip_address, client, valid, reason, endpoint, method)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ip, nullable(client), validInt, nullable(reason), nullable(endpoint), nullable(method),
	)
	if err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

// ListSince returns logs newer than the given day window, excluding accesses
// to the log endpoints themselves, newest first.
func (s *RequestLogStore) ListSince(ctx context.Context, days int) ([]RequestLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ip_address, client, valid, reason, endpoint, method, access_time
		 FROM request_logs
		 WHERE access_time >= datetime('now', ?) AND (endpoint IS NULL OR endpoint NOT LIKE '/logs%')
		 ORDER BY access_time DESC`,
		dayWindow(days),
	)
	if err != nil {
		return nil, fmt.Errorf("list request logs: %w", err)
	}
	defer rows.Close()

	var logs []RequestLog
	for rows.Next() {
		var l RequestLog
		var client, reason, endpoint, method sql.NullString
		var valid int
		if err := rows.Scan(&l.ID, &l.IPAddress, &client, &valid, &reason, &endpoint, &method, &l.AccessTime); err != nil {
			return nil, fmt.Errorf("scan request log: %w", err)
		}
		l.Valid = valid == 1
		l.Client = client.String
		l.Reason = reason.String
		l.Endpoint = endpoint.String
		l.Method = method.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// StatsSince aggregates request counts per endpoint over the day window.
func (s *RequestLogStore) StatsSince(ctx context.Context, days int) ([]EndpointStat, error) {
	return s.stats(ctx, days, false)
}

// StatsByIPSince aggregates request counts per endpoint and source IP over
// the day window.
func (s *RequestLogStore) StatsByIPSince(ctx context.Context, days int) ([]EndpointStat, error) {
	return s.stats(ctx, days, true)
}

func (s *RequestLogStore) stats(ctx context.Context, days int, byIP bool) ([]EndpointStat, error) {
	groupBy := `GROUP BY endpoint`
	if byIP {
		groupBy = `GROUP BY endpoint, ip_address`
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT COUNT(*) count, method, endpoint, ip_address, MAX(access_time)
		 FROM request_logs
		 WHERE access_time >= datetime('now', ?) AND (endpoint IS NULL OR endpoint NOT LIKE '/logs%')
		 `+groupBy+`
		 ORDER BY count DESC`,
		dayWindow(days),
	)
	if err != nil {
		return nil, fmt.Errorf("request log stats: %w", err)
	}
	defer rows.Close()

	var stats []EndpointStat
	for rows.Next() {
		var st EndpointStat
		var method, endpoint, ip sql.NullString
		if err := rows.Scan(&st.Count, &method, &endpoint, &ip, &st.LastSeen); err != nil {
			return nil, fmt.Errorf("scan stat: %w", err)
		}
		st.Method = method.String
		st.Endpoint = endpoint.String
		if byIP {
			st.IPAddress = ip.String
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// dayWindow builds a bound datetime modifier, keeping the window out of the
// SQL text itself.
func dayWindow(days int) string {
	if days < 1 {
		days = 1
	}
	return fmt.Sprintf("-%d days", days)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
