package sharing

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fileshare-gateway/internal/models"
)

// Repository persists sharing records, items and view logs through
// database/sql. It supports the sqlite3 and postgres drivers; queries are
// written with ? placeholders and rebound for postgres.
type Repository struct {
	db     *sql.DB
	driver string
}

func NewRepository(db *sql.DB, driver string) *Repository {
	return &Repository{db: db, driver: driver}
}

func (r *Repository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// Initialize creates the schema. The partial unique index on active shared
// items is the backstop against duplicate concurrent shares racing past the
// application-level check.
func (r *Repository) Initialize(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sharing_records (
			id TEXT PRIMARY KEY,
			file_type TEXT NOT NULL,
			file_reference TEXT NOT NULL,
			file_reference_name TEXT NOT NULL DEFAULT '',
			user_type TEXT NOT NULL,
			user_reference TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			notify BOOLEAN NOT NULL DEFAULT FALSE,
			submitted BOOLEAN NOT NULL DEFAULT FALSE,
			submitted_at TIMESTAMP,
			cancelled_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sharing_items (
			id TEXT PRIMARY KEY,
			record_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			user_reference TEXT NOT NULL DEFAULT '',
			file_reference TEXT NOT NULL DEFAULT '',
			file_url TEXT NOT NULL,
			is_private BOOLEAN NOT NULL DEFAULT FALSE,
			date_based_sharing BOOLEAN NOT NULL DEFAULT FALSE,
			expiration_date TIMESTAMP,
			view_based_sharing BOOLEAN NOT NULL DEFAULT FALSE,
			views_allowed INTEGER NOT NULL DEFAULT 0,
			views_remaining INTEGER NOT NULL DEFAULT 0,
			submitted BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS view_logs (
			id TEXT PRIMARY KEY,
			viewed_by TEXT NOT NULL,
			record_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sharing_items_record ON sharing_items(record_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sharing_records_pair ON sharing_records(user_reference, file_reference)`,
		`CREATE INDEX IF NOT EXISTS idx_view_logs_item ON view_logs(item_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_shared_file ON sharing_items(user_reference, file_reference, file_url)
			WHERE submitted AND status = 'Shared'`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initialize sharing schema: %w", err)
		}
	}
	return nil
}

// SaveRecord upserts the record and replaces its item rows in one
// transaction.
func (r *Repository) SaveRecord(ctx context.Context, rec *models.SharingRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, r.rebind(
		`DELETE FROM sharing_records WHERE id = ?`), rec.ID)
	if err != nil {
		return fmt.Errorf("replace record: %w", err)
	}
	_, err = tx.ExecContext(ctx, r.rebind(
		`DELETE FROM sharing_items WHERE record_id = ?`), rec.ID)
	if err != nil {
		return fmt.Errorf("replace items: %w", err)
	}

	_, err = tx.ExecContext(ctx, r.rebind(
		`INSERT INTO sharing_records
			(id, file_type, file_reference, file_reference_name, user_type, user_reference,
			 email, status, notify, submitted, submitted_at, cancelled_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.FileType, rec.FileReference, rec.FileReferenceName, rec.UserType,
		rec.UserReference, rec.Email, string(rec.Status), rec.Notify, rec.Submitted,
		rec.SubmittedAt, rec.CancelledAt, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	for i := range rec.Items {
		item := &rec.Items[i]
		_, err = tx.ExecContext(ctx, r.rebind(
			`INSERT INTO sharing_items
				(id, record_id, idx, user_reference, file_reference, file_url, is_private,
				 date_based_sharing, expiration_date, view_based_sharing, views_allowed,
				 views_remaining, submitted, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			item.ID, rec.ID, item.Idx, rec.UserReference, rec.FileReference, item.FileURL,
			item.IsPrivate, item.DateBasedSharing, item.ExpirationDate, item.ViewBasedSharing,
			item.ViewsAllowed, item.ViewsRemaining, rec.Submitted, string(item.Status))
		if err != nil {
			return fmt.Errorf("insert item %d: %w", item.Idx, err)
		}
	}

	return tx.Commit()
}

// GetRecord loads a record with its items in insertion order.
func (r *Repository) GetRecord(ctx context.Context, id string) (*models.SharingRecord, error) {
	rec := &models.SharingRecord{}
	var status string
	err := r.db.QueryRowContext(ctx, r.rebind(
		`SELECT id, file_type, file_reference, file_reference_name, user_type, user_reference,
			email, status, notify, submitted, submitted_at, cancelled_at, created_at, updated_at
		 FROM sharing_records WHERE id = ?`), id).Scan(
		&rec.ID, &rec.FileType, &rec.FileReference, &rec.FileReferenceName, &rec.UserType,
		&rec.UserReference, &rec.Email, &status, &rec.Notify, &rec.Submitted,
		&rec.SubmittedAt, &rec.CancelledAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	rec.Status = models.ShareStatus(status)

	rows, err := r.db.QueryContext(ctx, r.rebind(
		`SELECT id, record_id, idx, file_url, is_private, date_based_sharing, expiration_date,
			view_based_sharing, views_allowed, views_remaining, status
		 FROM sharing_items WHERE record_id = ? ORDER BY idx`), id)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.SharingItem
		var itemStatus string
		if err := rows.Scan(&item.ID, &item.RecordID, &item.Idx, &item.FileURL, &item.IsPrivate,
			&item.DateBasedSharing, &item.ExpirationDate, &item.ViewBasedSharing,
			&item.ViewsAllowed, &item.ViewsRemaining, &itemStatus); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.Status = models.ShareStatus(itemStatus)
		rec.Items = append(rec.Items, item)
	}
	return rec, rows.Err()
}

// UpdateStatuses writes the record status together with every item status in
// one transaction, so parent and children never diverge.
func (r *Repository) UpdateStatuses(ctx context.Context, rec *models.SharingRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, r.rebind(
		`UPDATE sharing_records SET status = ?, submitted = ?, submitted_at = ?,
			cancelled_at = ?, updated_at = ? WHERE id = ?`),
		string(rec.Status), rec.Submitted, rec.SubmittedAt, rec.CancelledAt,
		rec.UpdatedAt, rec.ID)
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}

	for i := range rec.Items {
		item := &rec.Items[i]
		_, err = tx.ExecContext(ctx, r.rebind(
			`UPDATE sharing_items SET status = ?, submitted = ?, views_remaining = ?
			 WHERE id = ?`),
			string(item.Status), rec.Submitted, item.ViewsRemaining, item.ID)
		if err != nil {
			return fmt.Errorf("update item status: %w", err)
		}
	}

	return tx.Commit()
}

// ActiveSharedFileURLs collects file URLs of shared, submitted items granted
// to the same user for the same owning reference across all records.
func (r *Repository) ActiveSharedFileURLs(ctx context.Context, userRef, fileRef string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(
		`SELECT i.file_url
		 FROM sharing_items i
		 JOIN sharing_records p ON p.id = i.record_id
		 WHERE p.user_reference = ? AND p.file_reference = ?
		   AND p.status = 'Shared' AND p.submitted
		   AND i.status = 'Shared' AND i.submitted`), userRef, fileRef)
	if err != nil {
		return nil, fmt.Errorf("query active shares: %w", err)
	}
	defer rows.Close()

	urls := make(map[string]bool)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan active share: %w", err)
		}
		urls[url] = true
	}
	return urls, rows.Err()
}

// GetItem loads a single item row.
func (r *Repository) GetItem(ctx context.Context, itemID string) (*models.SharingItem, error) {
	var item models.SharingItem
	var status string
	err := r.db.QueryRowContext(ctx, r.rebind(
		`SELECT id, record_id, idx, file_url, is_private, date_based_sharing, expiration_date,
			view_based_sharing, views_allowed, views_remaining, status
		 FROM sharing_items WHERE id = ?`), itemID).Scan(
		&item.ID, &item.RecordID, &item.Idx, &item.FileURL, &item.IsPrivate,
		&item.DateBasedSharing, &item.ExpirationDate, &item.ViewBasedSharing,
		&item.ViewsAllowed, &item.ViewsRemaining, &status)
	if err == sql.ErrNoRows {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load item: %w", err)
	}
	item.Status = models.ShareStatus(status)
	return &item, nil
}

// InsertViewLog appends one audit row. View logs are never updated or
// deleted.
func (r *Repository) InsertViewLog(ctx context.Context, entry *models.ViewLogEntry) error {
	_, err := r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO view_logs (id, viewed_by, record_id, item_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`),
		entry.ID, entry.ViewedBy, entry.RecordID, entry.ItemID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert view log: %w", err)
	}
	return nil
}

// DecrementViews atomically takes one view off a view-limited item, flooring
// at zero. It reports whether a decrement happened and the remaining count.
func (r *Repository) DecrementViews(ctx context.Context, itemID string) (int, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin decrement: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.rebind(
		`UPDATE sharing_items SET views_remaining = views_remaining - 1
		 WHERE id = ? AND view_based_sharing AND views_remaining > 0`), itemID)
	if err != nil {
		return 0, false, fmt.Errorf("decrement views: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("decrement views: %w", err)
	}

	var remaining int
	err = tx.QueryRowContext(ctx, r.rebind(
		`SELECT views_remaining FROM sharing_items WHERE id = ?`), itemID).Scan(&remaining)
	if err != nil {
		return 0, false, fmt.Errorf("read remaining views: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit decrement: %w", err)
	}
	return remaining, n > 0, nil
}

// ExpireItem marks a single item Expired.
func (r *Repository) ExpireItem(ctx context.Context, itemID string) error {
	_, err := r.db.ExecContext(ctx, r.rebind(
		`UPDATE sharing_items SET status = 'Expired' WHERE id = ?`), itemID)
	if err != nil {
		return fmt.Errorf("expire item: %w", err)
	}
	return nil
}

// ExpireDateBasedItems bulk-expires shared, submitted, date-limited items
// whose expiration date lies strictly before the cutoff.
func (r *Repository) ExpireDateBasedItems(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.rebind(
		`UPDATE sharing_items SET status = 'Expired'
		 WHERE date_based_sharing AND status = 'Shared' AND submitted
		   AND expiration_date < ?`), before)
	if err != nil {
		return 0, fmt.Errorf("expire date based items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire date based items: %w", err)
	}
	return n, nil
}

// SharedSubmittedRecordIDs lists records still in Shared status.
func (r *Repository) SharedSubmittedRecordIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM sharing_records WHERE status = 'Shared' AND submitted`)
	if err != nil {
		return nil, fmt.Errorf("query shared records: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ItemStatuses returns the status of every item belonging to a record.
func (r *Repository) ItemStatuses(ctx context.Context, recordID string) ([]models.ShareStatus, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(
		`SELECT status FROM sharing_items WHERE record_id = ?`), recordID)
	if err != nil {
		return nil, fmt.Errorf("query item statuses: %w", err)
	}
	defer rows.Close()

	var statuses []models.ShareStatus
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan item status: %w", err)
		}
		statuses = append(statuses, models.ShareStatus(s))
	}
	return statuses, rows.Err()
}

// SetRecordStatus updates only the parent status, used by expiry cascades.
func (r *Repository) SetRecordStatus(ctx context.Context, recordID string, status models.ShareStatus) error {
	_, err := r.db.ExecContext(ctx, r.rebind(
		`UPDATE sharing_records SET status = ?, updated_at = ? WHERE id = ?`),
		string(status), time.Now().UTC(), recordID)
	if err != nil {
		return fmt.Errorf("set record status: %w", err)
	}
	return nil
}

// CountViewLogs reports how many views were logged for an item.
func (r *Repository) CountViewLogs(ctx context.Context, itemID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.rebind(
		`SELECT COUNT(*) FROM view_logs WHERE item_id = ?`), itemID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count view logs: %w", err)
	}
	return n, nil
}
