package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/aadhaar-drishti/backend/internal/storage"
	"github.com/aadhaar-drishti/backend/internal/storage/models"
	"github.com/aadhaar-drishti/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

var _ storage.Store = (*Client)(nil)

// factTable maps a fact kind to its table and its two or three counter
// columns, in AgeTotals order.
type factTable struct {
	name    string
	columns []string
}

var factTables = map[models.ImportKind]factTable{
	models.KindBiometric:   {name: "biometric_updates", columns: []string{"bio_age_5_17", "bio_age_17_"}},
	models.KindDemographic: {name: "demographic_updates", columns: []string{"demo_age_5_17", "demo_age_17_"}},
	models.KindEnrolment:   {name: "enrolments", columns: []string{"age_0_5", "age_5_17", "age_18_greater"}},
}

func tableFor(kind models.ImportKind) (factTable, error) {
	t, ok := factTables[kind]
	if !ok {
		return factTable{}, fmt.Errorf("unknown fact kind %q", kind)
	}
	return t, nil
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS biometric_updates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date INTEGER NOT NULL,
		state TEXT NOT NULL,
		district TEXT NOT NULL,
		pincode INTEGER NOT NULL,
		bio_age_5_17 INTEGER NOT NULL DEFAULT 0,
		bio_age_17_ INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_bio_district ON biometric_updates(state, district, date);

	CREATE TABLE IF NOT EXISTS demographic_updates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date INTEGER NOT NULL,
		state TEXT NOT NULL,
		district TEXT NOT NULL,
		pincode INTEGER NOT NULL,
		demo_age_5_17 INTEGER NOT NULL DEFAULT 0,
		demo_age_17_ INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_demo_district ON demographic_updates(state, district, date);

	CREATE TABLE IF NOT EXISTS enrolments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date INTEGER NOT NULL,
		state TEXT NOT NULL,
		district TEXT NOT NULL,
		pincode INTEGER NOT NULL,
		age_0_5 INTEGER NOT NULL DEFAULT 0,
		age_5_17 INTEGER NOT NULL DEFAULT 0,
		age_18_greater INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_enrol_district ON enrolments(state, district, date);

	CREATE TABLE IF NOT EXISTS districts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		state TEXT NOT NULL,
		freshness_score INTEGER NOT NULL DEFAULT 0,
		records_needing_update_pct INTEGER NOT NULL DEFAULT 0,
		auth_failure_rate REAL NOT NULL DEFAULT 0,
		migration_index INTEGER NOT NULL DEFAULT 0,
		risk_level TEXT NOT NULL DEFAULT 'Low',
		last_updated INTEGER NOT NULL,
		bio_age_5_17 INTEGER NOT NULL DEFAULT 0,
		bio_age_17_plus INTEGER NOT NULL DEFAULT 0,
		bio_total INTEGER NOT NULL DEFAULT 0,
		demo_age_5_17 INTEGER NOT NULL DEFAULT 0,
		demo_age_17_plus INTEGER NOT NULL DEFAULT 0,
		demo_total INTEGER NOT NULL DEFAULT 0,
		enrol_age_0_5 INTEGER NOT NULL DEFAULT 0,
		enrol_age_5_17 INTEGER NOT NULL DEFAULT 0,
		enrol_age_18_plus INTEGER NOT NULL DEFAULT 0,
		enrol_total INTEGER NOT NULL DEFAULT 0,
		UNIQUE (state, name)
	);
	CREATE INDEX IF NOT EXISTS idx_districts_freshness ON districts(freshness_score);
	CREATE INDEX IF NOT EXISTS idx_districts_risk ON districts(risk_level);

	CREATE TABLE IF NOT EXISTS otps (
		id TEXT PRIMARY KEY,
		mobile TEXT NOT NULL,
		otp TEXT NOT NULL,
		last4_aadhaar TEXT NOT NULL,
		verified INTEGER NOT NULL DEFAULT 0,
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_otps_mobile ON otps(mobile);
	`

	_, err := c.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertFacts(ctx context.Context, kind models.ImportKind, records []models.FactRecord) error {
	if len(records) == 0 {
		return nil
	}

	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	columns := append([]string{"date", "state", "district", "pincode"}, table.columns...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table.name, strings.Join(columns, ", "), placeholders)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		args := []interface{}{r.Date.Unix(), r.State, r.District, r.Pincode}
		switch kind {
		case models.KindEnrolment:
			args = append(args, r.Age0To5, r.Age5To17, r.Age18Plus)
		default:
			args = append(args, r.Age5To17, r.Age17Plus)
		}

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert %s record: %w", kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s batch: %w", kind, err)
	}

	logger.Debug("Facts inserted", zap.String("kind", string(kind)), zap.Int("count", len(records)))
	return nil
}

func (c *Client) DeleteFacts(ctx context.Context, kind models.ImportKind) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	res, err := c.db.ExecContext(ctx, "DELETE FROM "+table.name)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s facts: %w", kind, err)
	}

	return res.RowsAffected()
}

func (c *Client) Districts(ctx context.Context, kind models.ImportKind) ([]models.DistrictKey, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT DISTINCT state, district FROM %s ORDER BY state, district", table.name))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s districts: %w", kind, err)
	}
	defer rows.Close()

	var keys []models.DistrictKey
	for rows.Next() {
		var k models.DistrictKey
		if err := rows.Scan(&k.State, &k.District); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

func (c *Client) Totals(ctx context.Context, kind models.ImportKind, key models.DistrictKey) (models.AgeTotals, error) {
	var totals models.AgeTotals

	table, err := tableFor(kind)
	if err != nil {
		return totals, err
	}

	sums := make([]string, len(table.columns))
	for i, col := range table.columns {
		sums[i] = fmt.Sprintf("COALESCE(SUM(%s), 0)", col)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE state = ? AND district = ?", strings.Join(sums, ", "), table.name)

	row := c.db.QueryRowContext(ctx, query, key.State, key.District)
	switch kind {
	case models.KindEnrolment:
		err = row.Scan(&totals.Age0To5, &totals.Age5To17, &totals.Age18Plus)
	default:
		err = row.Scan(&totals.Age5To17, &totals.Age17Plus)
	}
	if err != nil {
		return totals, fmt.Errorf("failed to sum %s facts for %s: %w", kind, key, err)
	}

	return totals, nil
}

func (c *Client) UpsertSummary(ctx context.Context, d *models.DistrictSummary) error {
	query := `
		INSERT INTO districts (id, name, state, freshness_score, records_needing_update_pct, auth_failure_rate,
			migration_index, risk_level, last_updated,
			bio_age_5_17, bio_age_17_plus, bio_total,
			demo_age_5_17, demo_age_17_plus, demo_total,
			enrol_age_0_5, enrol_age_5_17, enrol_age_18_plus, enrol_total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(state, name) DO UPDATE SET
			freshness_score = excluded.freshness_score,
			records_needing_update_pct = excluded.records_needing_update_pct,
			auth_failure_rate = excluded.auth_failure_rate,
			migration_index = excluded.migration_index,
			risk_level = excluded.risk_level,
			last_updated = excluded.last_updated,
			bio_age_5_17 = excluded.bio_age_5_17,
			bio_age_17_plus = excluded.bio_age_17_plus,
			bio_total = excluded.bio_total,
			demo_age_5_17 = excluded.demo_age_5_17,
			demo_age_17_plus = excluded.demo_age_17_plus,
			demo_total = excluded.demo_total,
			enrol_age_0_5 = excluded.enrol_age_0_5,
			enrol_age_5_17 = excluded.enrol_age_5_17,
			enrol_age_18_plus = excluded.enrol_age_18_plus,
			enrol_total = excluded.enrol_total
		RETURNING id
	`

	id := d.ID
	if id == "" {
		id = uuid.New().String()
	}

	err := c.db.QueryRowContext(
		ctx,
		query,
		id,
		d.Name,
		d.State,
		d.FreshnessScore,
		d.RecordsNeedingUpdatePct,
		d.AuthFailureRate,
		d.MigrationIndex,
		string(d.RiskLevel),
		d.LastUpdated.Unix(),
		d.BiometricStats.Age5To17,
		d.BiometricStats.Age17Plus,
		d.BiometricStats.TotalUpdates,
		d.DemographicStats.Age5To17,
		d.DemographicStats.Age17Plus,
		d.DemographicStats.TotalUpdates,
		d.EnrolmentStats.Age0To5,
		d.EnrolmentStats.Age5To17,
		d.EnrolmentStats.Age18Plus,
		d.EnrolmentStats.TotalEnrolments,
	).Scan(&d.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert district %s/%s: %w", d.State, d.Name, err)
	}

	return nil
}

const summaryColumns = `id, name, state, freshness_score, records_needing_update_pct, auth_failure_rate,
	migration_index, risk_level, last_updated,
	bio_age_5_17, bio_age_17_plus, bio_total,
	demo_age_5_17, demo_age_17_plus, demo_total,
	enrol_age_0_5, enrol_age_5_17, enrol_age_18_plus, enrol_total`

func (c *Client) ListSummaries(ctx context.Context, filter models.SummaryFilter) ([]models.DistrictSummary, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, filter.State)
	}
	if filter.RiskLevel != "" {
		where = append(where, "risk_level = ?")
		args = append(args, string(filter.RiskLevel))
	}

	query := "SELECT " + summaryColumns + " FROM districts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	switch filter.Sort {
	case models.SortByFreshnessAsc:
		query += " ORDER BY freshness_score ASC, state, name"
	default:
		query += " ORDER BY state, name"
	}

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list districts: %w", err)
	}
	defer rows.Close()

	var out []models.DistrictSummary
	for rows.Next() {
		var (
			d           models.DistrictSummary
			risk        string
			lastUpdated int64
		)

		err := rows.Scan(
			&d.ID, &d.Name, &d.State,
			&d.FreshnessScore, &d.RecordsNeedingUpdatePct, &d.AuthFailureRate,
			&d.MigrationIndex, &risk, &lastUpdated,
			&d.BiometricStats.Age5To17, &d.BiometricStats.Age17Plus, &d.BiometricStats.TotalUpdates,
			&d.DemographicStats.Age5To17, &d.DemographicStats.Age17Plus, &d.DemographicStats.TotalUpdates,
			&d.EnrolmentStats.Age0To5, &d.EnrolmentStats.Age5To17, &d.EnrolmentStats.Age18Plus, &d.EnrolmentStats.TotalEnrolments,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		d.RiskLevel = models.RiskLevel(risk)
		d.LastUpdated = time.Unix(lastUpdated, 0)
		out = append(out, d)
	}

	return out, rows.Err()
}

func (c *Client) CountSummaries(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM districts").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count districts: %w", err)
	}
	return n, nil
}

func (c *Client) DistinctStates(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT DISTINCT state FROM districts ORDER BY state")
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}
	defer rows.Close()

	var states []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		states = append(states, s)
	}

	return states, rows.Err()
}

func (c *Client) ReplaceOTP(ctx context.Context, otp *models.OTPCredential) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Expired rows of any mobile go here; there is no background sweeper.
	if _, err := tx.ExecContext(ctx, "DELETE FROM otps WHERE mobile = ? OR expires_at < ?",
		otp.Mobile, otp.CreatedAt.Unix()); err != nil {
		return fmt.Errorf("failed to clear previous otps: %w", err)
	}

	verified := 0
	if otp.Verified {
		verified = 1
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO otps (id, mobile, otp, last4_aadhaar, verified, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		otp.ID, otp.Mobile, otp.OTP, otp.Last4Aadhaar, verified, otp.ExpiresAt.Unix(), otp.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert otp: %w", err)
	}

	return tx.Commit()
}

func (c *Client) FindPendingOTP(ctx context.Context, mobile, last4Aadhaar string) (*models.OTPCredential, error) {
	query := `SELECT id, mobile, otp, last4_aadhaar, verified, expires_at, created_at
		FROM otps WHERE mobile = ? AND last4_aadhaar = ? AND verified = 0
		ORDER BY created_at DESC LIMIT 1`

	var (
		o                    models.OTPCredential
		verified             int
		expiresAt, createdAt int64
	)

	err := c.db.QueryRowContext(ctx, query, mobile, last4Aadhaar).Scan(
		&o.ID, &o.Mobile, &o.OTP, &o.Last4Aadhaar, &verified, &expiresAt, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get otp: %w", err)
	}

	o.Verified = verified == 1
	o.ExpiresAt = time.Unix(expiresAt, 0)
	o.CreatedAt = time.Unix(createdAt, 0)

	return &o, nil
}

func (c *Client) MarkOTPVerified(ctx context.Context, otp *models.OTPCredential) error {
	res, err := c.db.ExecContext(ctx, "UPDATE otps SET verified = 1 WHERE id = ?", otp.ID)
	if err != nil {
		return fmt.Errorf("failed to mark otp verified: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}

	otp.Verified = true
	return nil
}

func (c *Client) DeleteOTP(ctx context.Context, otp *models.OTPCredential) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM otps WHERE id = ?", otp.ID)
	if err != nil {
		return fmt.Errorf("failed to delete otp: %w", err)
	}
	return nil
}
