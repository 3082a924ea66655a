package adapter

const (
	serverInfoQuery = `
		SELECT
			COALESCE(inet_server_addr()::text, 'local'),
			pg_backend_pid(),
			version()
	`

	pingQuery = "SELECT 1"

	cacheHitRatioQuery = `
		SELECT
			CASE
				WHEN blks_hit + blks_read = 0 THEN 0::float8
				ELSE round((blks_hit::numeric / (blks_hit + blks_read) * 100), 2)::float8
			END
		FROM pg_stat_database
		WHERE datname = current_database()
	`

	connectionCountsQuery = `
		SELECT
			count(*) FILTER (WHERE state = 'active'),
			count(*) FILTER (WHERE state = 'idle'),
			count(*) FILTER (WHERE state = 'idle in transaction'),
			count(*)
		FROM pg_stat_activity
		WHERE datname = current_database()
	`

	databaseSizeQuery = "SELECT pg_database_size(current_database())"

	statementStatsAvailableQuery = `
		SELECT EXISTS (
			SELECT 1 FROM pg_extension WHERE extname = 'pg_stat_statements'
		)
	`

	topStatementsQuery = `
		SELECT
			LEFT(query, $2),
			calls,
			total_exec_time,
			mean_exec_time,
			max_exec_time,
			round((100.0 * shared_blks_hit / NULLIF(shared_blks_hit + shared_blks_read, 0))::numeric, 2)::float8
		FROM pg_stat_statements
		WHERE query NOT LIKE '%pg_stat_statements%'
		  AND query NOT LIKE '%pg_catalog%'
		  AND query NOT LIKE '%<insufficient privilege>%'
		  AND queryid IS NOT NULL
		ORDER BY calls DESC
		LIMIT $1
	`

	// QueryPreviewLength bounds the statement text kept per row.
	QueryPreviewLength = 150
)
