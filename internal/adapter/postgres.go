package adapter

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"github.com/jackc/pgx/v5"
)

// PostgresDialer opens one dedicated pgx connection per Dial. No pool: every
// probe owns its connection for its whole lifetime.
type PostgresDialer struct {
	connectTimeout time.Duration
}

func NewPostgresDialer(connectTimeout time.Duration) *PostgresDialer {
	return &PostgresDialer{
		connectTimeout: connectTimeout,
	}
}

func (d *PostgresDialer) Dial(ctx context.Context, target Target) (Session, error) {
	cfg, err := pgx.ParseConfig(ConnectionString(target, d.connectTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return &PostgresSession{conn: conn}, nil
}

// ConnectionString renders target as a postgres URL. The password is escaped
// by net/url; the result must never be logged.
func ConnectionString(target Target, connectTimeout time.Duration) string {
	q := url.Values{}
	q.Set("sslmode", target.SSL.SSLModeParam())
	if connectTimeout > 0 {
		secs := int(connectTimeout.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(target.Username, target.Password),
		Host:     net.JoinHostPort(target.Host, strconv.Itoa(target.Port)),
		Path:     "/" + target.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

type PostgresSession struct {
	conn *pgx.Conn
}

func (s *PostgresSession) ServerInfo(ctx context.Context) (ServerInfo, error) {
	if s.conn == nil {
		return ServerInfo{}, ErrNotConnected
	}

	var info ServerInfo
	var pid int32
	if err := s.conn.QueryRow(ctx, serverInfoQuery).Scan(&info.Addr, &pid, &info.Version); err != nil {
		return ServerInfo{}, fmt.Errorf("failed to read server info: %w", err)
	}
	info.BackendPID = uint32(pid)
	info.Addr = strings.TrimSuffix(info.Addr, "/32")

	return info, nil
}

func (s *PostgresSession) Ping(ctx context.Context) error {
	if s.conn == nil {
		return ErrNotConnected
	}

	var one int
	if err := s.conn.QueryRow(ctx, pingQuery).Scan(&one); err != nil {
		return fmt.Errorf("round trip failed: %w", err)
	}
	return nil
}

func (s *PostgresSession) Baseline(ctx context.Context) (models.Baseline, error) {
	if s.conn == nil {
		return models.Baseline{}, ErrNotConnected
	}

	var b models.Baseline

	if err := s.conn.QueryRow(ctx, cacheHitRatioQuery).Scan(&b.CacheHitRatio); err != nil {
		return b, fmt.Errorf("failed to get cache hit ratio: %w", err)
	}

	err := s.conn.QueryRow(ctx, connectionCountsQuery).Scan(
		&b.ActiveConnections,
		&b.IdleConnections,
		&b.IdleInTransaction,
		&b.TotalConnections,
	)
	if err != nil {
		return b, fmt.Errorf("failed to get connection counts: %w", err)
	}

	if err := s.conn.QueryRow(ctx, databaseSizeQuery).Scan(&b.DatabaseSizeBytes); err != nil {
		return b, fmt.Errorf("failed to get database size: %w", err)
	}

	return b, nil
}

func (s *PostgresSession) HasStatementStats(ctx context.Context) (bool, error) {
	if s.conn == nil {
		return false, ErrNotConnected
	}

	var available bool
	if err := s.conn.QueryRow(ctx, statementStatsAvailableQuery).Scan(&available); err != nil {
		return false, fmt.Errorf("failed to check pg_stat_statements: %w", err)
	}
	return available, nil
}

func (s *PostgresSession) TopStatements(ctx context.Context, limit int) ([]models.QueryStat, error) {
	if s.conn == nil {
		return nil, ErrNotConnected
	}

	rows, err := s.conn.Query(ctx, topStatementsQuery, limit, QueryPreviewLength)
	if err != nil {
		return nil, fmt.Errorf("failed to query pg_stat_statements: %w", err)
	}
	defer rows.Close()

	stats := make([]models.QueryStat, 0, limit)
	for rows.Next() {
		var q models.QueryStat
		if err := rows.Scan(&q.QueryText, &q.Calls, &q.TotalExecMs, &q.MeanExecMs, &q.MaxExecMs, &q.CacheHitPct); err != nil {
			return nil, fmt.Errorf("failed to scan pg_stat_statements: %w", err)
		}
		q.QueryText = previewText(q.QueryText)
		stats = append(stats, q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pg_stat_statements: %w", err)
	}

	return stats, nil
}

// previewText marks statement text that LEFT() cut at the preview length.
// LEFT counts characters, so the comparison does too.
func previewText(text string) string {
	if utf8.RuneCountInString(text) >= QueryPreviewLength {
		return text + "..."
	}
	return text
}

func (s *PostgresSession) Close(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}

	conn := s.conn
	s.conn = nil
	return conn.Close(ctx)
}
