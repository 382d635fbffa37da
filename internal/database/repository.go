package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shiploop/shiploop-api/internal/score"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying database for transactional callers.
func (r *Repository) DB() *DB {
	return r.db
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

const profileColumns = `id, email, name, github_login, stripe_account_id, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (*Profile, error) {
	var p Profile
	var github, stripeAcct sql.NullString
	err := row.Scan(&p.ID, &p.Email, &p.Name, &github, &stripeAcct, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}
	p.GitHubLogin = github.String
	p.StripeAccountID = stripeAcct.String
	return &p, nil
}

// InsertProfileBundle writes a profile together with its zeroed ship score,
// streak and rank rows.
func (r *Repository) InsertProfileBundle(ctx context.Context, tx *sql.Tx, p *Profile, rank score.GlobalRank) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO profiles (id, email, name, github_login, stripe_account_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Email, p.Name, nullString(p.GitHubLogin), nullString(p.StripeAccountID), p.CreatedAt, p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ship_scores (profile_id, updated_at) VALUES (?, ?)
	`, p.ID, p.CreatedAt); err != nil {
		return fmt.Errorf("failed to create ship score: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO streaks (profile_id) VALUES (?)
	`, p.ID); err != nil {
		return fmt.Errorf("failed to create streak: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO global_ranks (profile_id, position, total_users, percentile, tier, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, rank.Position, rank.TotalUsers, rank.Percentile, string(rank.Tier), p.CreatedAt); err != nil {
		return fmt.Errorf("failed to create rank: %w", err)
	}

	return nil
}

// CountProfilesTx counts profiles inside a transaction.
func (r *Repository) CountProfilesTx(ctx context.Context, tx *sql.Tx) (int, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return n, nil
}

func (r *Repository) GetProfile(ctx context.Context, id string) (*Profile, error) {
	return scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
}

func (r *Repository) GetProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	return scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE email = ?`, strings.ToLower(email)))
}

func (r *Repository) GetProfileByGitHubLogin(ctx context.Context, login string) (*Profile, error) {
	return scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE github_login = ? COLLATE NOCASE`, login))
}

func (r *Repository) GetProfileByStripeAccount(ctx context.Context, accountID string) (*Profile, error) {
	return scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE stripe_account_id = ?`, accountID))
}

// SetStripeAccount links a connected Stripe account to a profile.
func (r *Repository) SetStripeAccount(ctx context.Context, profileID, accountID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE profiles SET stripe_account_id = ?, updated_at = ? WHERE id = ?
	`, nullString(accountID), time.Now().UTC(), profileID)
	if err != nil {
		return fmt.Errorf("failed to set stripe account: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetShipScore loads a profile's score and streak.
func (r *Repository) GetShipScore(ctx context.Context, profileID string) (score.ShipScore, error) {
	stmt, err := r.db.GetPreparedStatement("get_ship_score")
	if err != nil {
		return score.ShipScore{}, err
	}

	var commits, launches, revenue, growth int
	var updated time.Time
	var st score.Streak
	var last sql.NullTime
	err = stmt.QueryRowContext(ctx, profileID).Scan(
		&commits, &launches, &revenue, &growth, &updated,
		&st.CurrentStreak, &st.LongestStreak, &last, &st.IsOnFire,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return score.ShipScore{}, ErrNotFound
	}
	if err != nil {
		return score.ShipScore{}, fmt.Errorf("failed to get ship score: %w", err)
	}
	if last.Valid {
		st.LastActivityDate = last.Time
	}

	return score.NewShipScore(score.NewBreakdown(commits, launches, revenue, growth), st, updated), nil
}

// SaveBreakdown stores a breakdown and its derived total.
func (r *Repository) SaveBreakdown(ctx context.Context, profileID string, b score.Breakdown, at time.Time) error {
	stmt, err := r.db.GetPreparedStatement("update_breakdown")
	if err != nil {
		return err
	}
	res, err := stmt.ExecContext(ctx, b.Commits.Int(), b.Launches.Int(), b.Revenue.Int(), b.Growth.Int(), b.Total(), at.UTC(), profileID)
	if err != nil {
		return fmt.Errorf("failed to save breakdown: %w", err)
	}
	return expectOne(res)
}

// GetManualBreakdown returns the sub-scores a user entered by hand. Fields
// never set manually are nil.
func (r *Repository) GetManualBreakdown(ctx context.Context, profileID string) (score.BreakdownPatch, error) {
	var commits, launches, revenue, growth sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT manual_commits, manual_launches, manual_revenue, manual_growth
		FROM ship_scores WHERE profile_id = ?
	`, profileID).Scan(&commits, &launches, &revenue, &growth)
	if errors.Is(err, sql.ErrNoRows) {
		return score.BreakdownPatch{}, ErrNotFound
	}
	if err != nil {
		return score.BreakdownPatch{}, fmt.Errorf("failed to get manual breakdown: %w", err)
	}
	return score.BreakdownPatch{
		Commits:  intPtr(commits),
		Launches: intPtr(launches),
		Revenue:  intPtr(revenue),
		Growth:   intPtr(growth),
	}, nil
}

// SaveManualBreakdown merges the set fields of p into the stored manual values.
func (r *Repository) SaveManualBreakdown(ctx context.Context, profileID string, p score.BreakdownPatch) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ship_scores SET
			manual_commits = COALESCE(?, manual_commits),
			manual_launches = COALESCE(?, manual_launches),
			manual_revenue = COALESCE(?, manual_revenue),
			manual_growth = COALESCE(?, manual_growth)
		WHERE profile_id = ?
	`, nullInt(p.Commits), nullInt(p.Launches), nullInt(p.Revenue), nullInt(p.Growth), profileID)
	if err != nil {
		return fmt.Errorf("failed to save manual breakdown: %w", err)
	}
	return expectOne(res)
}

// ListScoredTotals returns the stored total of every profile with a non-zero score.
func (r *Repository) ListScoredTotals(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT profile_id, total FROM ship_scores WHERE total > 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var total int
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		out[id] = total
	}
	return out, rows.Err()
}

// SaveStreak upserts a profile's streak.
func (r *Repository) SaveStreak(ctx context.Context, profileID string, s score.Streak) error {
	stmt, err := r.db.GetPreparedStatement("upsert_streak")
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx, profileID, s.CurrentStreak, s.LongestStreak, nullTime(s.LastActivityDate), s.IsOnFire); err != nil {
		return fmt.Errorf("failed to save streak: %w", err)
	}
	return nil
}

// ListActiveStreaks returns every profile with a running streak.
func (r *Repository) ListActiveStreaks(ctx context.Context) ([]ProfileStreak, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.email, p.name, k.current_streak, k.longest_streak, k.last_activity_date, k.is_on_fire
		FROM streaks k JOIN profiles p ON p.id = k.profile_id
		WHERE k.current_streak > 0
		ORDER BY p.created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list streaks: %w", err)
	}
	defer rows.Close()

	var out []ProfileStreak
	for rows.Next() {
		var ps ProfileStreak
		var last sql.NullTime
		if err := rows.Scan(&ps.ProfileID, &ps.Email, &ps.Name,
			&ps.Streak.CurrentStreak, &ps.Streak.LongestStreak, &last, &ps.Streak.IsOnFire); err != nil {
			return nil, fmt.Errorf("failed to scan streak: %w", err)
		}
		if last.Valid {
			ps.Streak.LastActivityDate = last.Time
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// SetUserGrowth stores the manually reported user growth percentage.
func (r *Repository) SetUserGrowth(ctx context.Context, profileID string, pct float64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE ship_scores SET user_growth_pct = ? WHERE profile_id = ?`, pct, profileID)
	if err != nil {
		return fmt.Errorf("failed to set user growth: %w", err)
	}
	return expectOne(res)
}

func (r *Repository) GetUserGrowth(ctx context.Context, profileID string) (float64, error) {
	var pct float64
	err := r.db.QueryRowContext(ctx, `SELECT user_growth_pct FROM ship_scores WHERE profile_id = ?`, profileID).Scan(&pct)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return pct, err
}

// RecordCommits stores a batch of commits pushed to a repository.
func (r *Repository) RecordCommits(ctx context.Context, profileID, repository string, count int, at time.Time) error {
	stmt, err := r.db.GetPreparedStatement("insert_commit_event")
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx, newID(), profileID, repository, count, at.UTC()); err != nil {
		return fmt.Errorf("failed to record commits: %w", err)
	}
	return nil
}

// RecordLaunch stores a launch (a published release or a manual entry).
func (r *Repository) RecordLaunch(ctx context.Context, profileID, name string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO launch_events (id, profile_id, name, occurred_at) VALUES (?, ?, ?, ?)
	`, newID(), profileID, name, at.UTC()); err != nil {
		return fmt.Errorf("failed to record launch: %w", err)
	}
	return nil
}

// RecordRevenue stores a payment once per external ID. It reports whether a row was written.
func (r *Repository) RecordRevenue(ctx context.Context, ev RevenueEvent) (bool, error) {
	if ev.ID == "" {
		ev.ID = newID()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO revenue_events (id, profile_id, external_id, amount, currency, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.ProfileID, ev.ExternalID, ev.Amount, strings.ToLower(ev.Currency), ev.OccurredAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to record revenue: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repository) CountCommitsSince(ctx context.Context, profileID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(commit_count), 0) FROM commit_events WHERE profile_id = ? AND occurred_at >= ?
	`, profileID, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count commits: %w", err)
	}
	return n, nil
}

func (r *Repository) CountLaunchesSince(ctx context.Context, profileID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM launch_events WHERE profile_id = ? AND occurred_at >= ?
	`, profileID, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count launches: %w", err)
	}
	return n, nil
}

// SumRevenue totals revenue in [from, to).
func (r *Repository) SumRevenue(ctx context.Context, profileID string, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM revenue_events
		WHERE profile_id = ? AND occurred_at >= ? AND occurred_at < ?
	`, profileID, from.UTC(), to.UTC()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return total, nil
}

// MarkDelivery records a webhook delivery. It returns false when the delivery was already seen.
func (r *Repository) MarkDelivery(ctx context.Context, source, deliveryID, eventType string) (bool, error) {
	stmt, err := r.db.GetPreparedStatement("mark_delivery")
	if err != nil {
		return false, err
	}
	res, err := stmt.ExecContext(ctx, source, deliveryID, eventType, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to mark delivery: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ForgetDelivery removes a delivery mark so a failed delivery can be retried.
func (r *Repository) ForgetDelivery(ctx context.Context, source, deliveryID string) error {
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM webhook_deliveries WHERE source = ? AND delivery_id = ?
	`, source, deliveryID); err != nil {
		return fmt.Errorf("failed to forget delivery: %w", err)
	}
	return nil
}

// ListRanked returns profiles ordered by score, best first. Equal totals
// share a position, matching RankOf.
func (r *Repository) ListRanked(ctx context.Context, limit int) ([]RankedProfile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.name, s.commits, s.launches, s.revenue, s.growth, k.current_streak
		FROM ship_scores s
		JOIN profiles p ON p.id = s.profile_id
		JOIN streaks k ON k.profile_id = s.profile_id
		ORDER BY s.total DESC, k.current_streak DESC, p.created_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ranked profiles: %w", err)
	}
	defer rows.Close()

	var out []RankedProfile
	for rows.Next() {
		var rp RankedProfile
		var c, l, rv, g int
		if err := rows.Scan(&rp.ProfileID, &rp.Name, &c, &l, &rv, &g, &rp.Streak); err != nil {
			return nil, fmt.Errorf("failed to scan ranked profile: %w", err)
		}
		rp.Breakdown = score.NewBreakdown(c, l, rv, g)
		rp.Total = rp.Breakdown.Total()
		rp.Position = len(out) + 1
		if n := len(out); n > 0 && out[n-1].Total == rp.Total {
			rp.Position = out[n-1].Position
		}
		out = append(out, rp)
	}
	return out, rows.Err()
}

// RankOf returns a profile's 1-based position and the population size.
// Ties share the better position.
func (r *Repository) RankOf(ctx context.Context, profileID string) (position, total int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM ship_scores o WHERE o.total > s.total) + 1,
			(SELECT COUNT(*) FROM ship_scores)
		FROM ship_scores s WHERE s.profile_id = ?
	`, profileID).Scan(&position, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to rank profile: %w", err)
	}
	return position, total, nil
}

// SaveRank stores the last computed global rank of a profile.
func (r *Repository) SaveRank(ctx context.Context, profileID string, rank score.GlobalRank) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO global_ranks (profile_id, position, total_users, percentile, tier, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id) DO UPDATE SET
			position = excluded.position,
			total_users = excluded.total_users,
			percentile = excluded.percentile,
			tier = excluded.tier,
			updated_at = excluded.updated_at
	`, profileID, rank.Position, rank.TotalUsers, rank.Percentile, string(rank.Tier), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save rank: %w", err)
	}
	return nil
}

// AddWaitlist inserts an entry. It returns false when the email already exists.
func (r *Repository) AddWaitlist(ctx context.Context, e WaitlistEntry) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO waitlist (email, source, joined_at) VALUES (?, ?, ?)
	`, e.Email, e.Source, e.JoinedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to add waitlist entry: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// WaitlistPosition returns the 1-based join order of email.
func (r *Repository) WaitlistPosition(ctx context.Context, email string) (int, error) {
	var pos int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM waitlist
		WHERE joined_at < (SELECT joined_at FROM waitlist WHERE email = ?)
		   OR (joined_at = (SELECT joined_at FROM waitlist WHERE email = ?) AND email <= ?)
	`, email, email, email).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("failed to compute waitlist position: %w", err)
	}
	if pos == 0 {
		return 0, ErrNotFound
	}
	return pos, nil
}

func (r *Repository) CountWaitlist(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM waitlist`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count waitlist: %w", err)
	}
	return n, nil
}

// ListWaitlist returns entries in join order, optionally filtered by invite state.
func (r *Repository) ListWaitlist(ctx context.Context, invited *bool) ([]WaitlistEntry, error) {
	query := `SELECT email, source, joined_at, invited_at FROM waitlist`
	if invited != nil {
		if *invited {
			query += ` WHERE invited_at IS NOT NULL`
		} else {
			query += ` WHERE invited_at IS NULL`
		}
	}
	query += ` ORDER BY joined_at, email`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlist: %w", err)
	}
	defer rows.Close()

	var out []WaitlistEntry
	for rows.Next() {
		var e WaitlistEntry
		var invitedAt sql.NullTime
		if err := rows.Scan(&e.Email, &e.Source, &e.JoinedAt, &invitedAt); err != nil {
			return nil, fmt.Errorf("failed to scan waitlist entry: %w", err)
		}
		if invitedAt.Valid {
			t := invitedAt.Time
			e.InvitedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkInvited stamps invited_at on the given emails and returns how many rows changed.
func (r *Repository) MarkInvited(ctx context.Context, emails []string, at time.Time) (int, error) {
	var updated int
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, email := range emails {
			res, err := tx.ExecContext(ctx, `
				UPDATE waitlist SET invited_at = ? WHERE email = ? AND invited_at IS NULL
			`, at.UTC(), email)
			if err != nil {
				return fmt.Errorf("failed to mark %s invited: %w", email, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			updated += int(n)
		}
		return nil
	})
	return updated, err
}

func (r *Repository) CountProfiles(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return n, nil
}

// ListTotals returns every stored ship score total.
func (r *Repository) ListTotals(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT total FROM ship_scores`)
	if err != nil {
		return nil, fmt.Errorf("failed to list totals: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var t int
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan total: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
