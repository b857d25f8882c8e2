package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/resotel/tariff-conventions/internal/engine"
	"github.com/resotel/tariff-conventions/internal/model"
)

// scopeLockTimeout bounds how long a writer waits for the per-scope
// advisory lock before giving up with ErrScopeLockTimeout.
const scopeLockTimeout = 10 * time.Second

// querier is the subset of database operations shared by *sql.DB,
// *sql.Conn and *sql.Tx.  Store methods are written against it so the
// same code serves both direct reads and work inside a scope lock.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// monthColumns lists the twelve monthly price columns in calendar
// order.  Index i corresponds to time.Month(i+1).
var monthColumns = [12]string{
	"price_january", "price_february", "price_march", "price_april",
	"price_may", "price_june", "price_july", "price_august",
	"price_september", "price_october", "price_november", "price_december",
}

// conventionColumns is the full column list used by every SELECT so row
// scanning stays in one place.
var conventionColumns = "id, client_id, category_id, hotel_id, validity_start, validity_end, default_price, " +
	strings.Join(monthColumns[:], ", ") +
	", discount_percent, flat_monthly_rate, notes, active, created_at, updated_at"

// conventionStore implements the engine.Store contract over a querier.
// All business validation lives above this layer; these methods are a
// persistence boundary only.
type conventionStore struct {
	q querier
}

// ConventionRepo provides durable storage for conventions and the
// per-scope-key locking the upsert orchestrator requires.  It satisfies
// engine.TxStore.
type ConventionRepo struct {
	conventionStore
	db *sql.DB
}

// NewConventionRepo returns a ConventionRepo bound to the given database.
func NewConventionRepo(db *sql.DB) *ConventionRepo {
	return &ConventionRepo{conventionStore: conventionStore{q: db}, db: db}
}

// scopeLockName derives the advisory lock name for a scope key.  MySQL
// named locks are server-wide, so the same name serializes writers
// across every instance of this service sharing the database.
func scopeLockName(clientID, categoryID uint64) string {
	return fmt.Sprintf("conv_scope:%d:%d", clientID, categoryID)
}

// WithScopeLock runs fn inside a transaction while holding the advisory
// lock for the (clientID, categoryID) scope key.  The lock is acquired
// on a dedicated connection and released only after the transaction
// commits or rolls back, so no other writer can observe the scope
// between this writer's overlap check and its committed write.
func (r *ConventionRepo) WithScopeLock(ctx context.Context, clientID, categoryID uint64, fn func(engine.Store) error) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	name := scopeLockName(clientID, categoryID)
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?)`, name, int(scopeLockTimeout/time.Second)).Scan(&got); err != nil {
		return err
	}
	if !got.Valid || got.Int64 != 1 {
		return ErrScopeLockTimeout
	}
	defer func() {
		// Release on the same session; a held lock would otherwise
		// follow the connection back into the pool.  Use a fresh
		// context so release happens even when ctx is already done.
		var released sql.NullInt64
		_ = conn.QueryRowContext(context.Background(), `SELECT RELEASE_LOCK(?)`, name).Scan(&released)
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&conventionStore{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Insert stores a new convention and populates the generated ID and
// timestamps on the provided record.
func (s *conventionStore) Insert(ctx context.Context, c *model.Convention) (uint64, error) {
	query := `INSERT INTO conventions (client_id, category_id, hotel_id, validity_start, validity_end, default_price, ` +
		strings.Join(monthColumns[:], ", ") +
		`, discount_percent, flat_monthly_rate, notes, active) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := make([]any, 0, 22)
	args = append(args, c.ClientID, c.CategoryID, nullUint(c.HotelID), c.ValidityStart, nullDate(c.ValidityEnd), c.DefaultPrice)
	args = append(args, monthArgs(c.MonthlyPrices)...)
	args = append(args, nullDec(c.DiscountPercent), nullDec(c.FlatMonthlyRate), nullStr(c.Notes), c.Active)

	result, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	c.ID = uint64(id)
	// Query back the full row to populate timestamps and defaults.
	stored, err := s.GetByID(ctx, c.ID)
	if err != nil {
		return 0, err
	}
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = stored.UpdatedAt
	return c.ID, nil
}

// Update replaces every mutable field of an existing convention.  All
// twelve monthly columns are written on each call, so months absent
// from c.MonthlyPrices become NULL on the stored row.  updated_at is
// advanced by the schema's ON UPDATE clause.
func (s *conventionStore) Update(ctx context.Context, c *model.Convention) error {
	sets := make([]string, 0, 23)
	sets = append(sets, "client_id = ?", "category_id = ?", "hotel_id = ?",
		"validity_start = ?", "validity_end = ?", "default_price = ?")
	for _, col := range monthColumns {
		sets = append(sets, col+" = ?")
	}
	sets = append(sets, "discount_percent = ?", "flat_monthly_rate = ?", "notes = ?", "active = ?")
	query := "UPDATE conventions SET " + strings.Join(sets, ", ") + " WHERE id = ?"

	args := make([]any, 0, 23)
	args = append(args, c.ClientID, c.CategoryID, nullUint(c.HotelID), c.ValidityStart, nullDate(c.ValidityEnd), c.DefaultPrice)
	args = append(args, monthArgs(c.MonthlyPrices)...)
	args = append(args, nullDec(c.DiscountPercent), nullDec(c.FlatMonthlyRate), nullStr(c.Notes), c.Active, c.ID)

	result, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// RowsAffected is also 0 when the row exists with identical
		// values, so confirm absence before reporting not found.
		if _, err := s.GetByID(ctx, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// GetByID returns the convention with the given id, or
// ErrConventionNotFound when no row matches.
func (s *conventionStore) GetByID(ctx context.Context, id uint64) (*model.Convention, error) {
	query := `SELECT ` + conventionColumns + ` FROM conventions WHERE id = ?`
	c, err := scanConvention(s.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrConventionNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindActiveByScope returns all active conventions for a scope key,
// omitting excludeID when non-zero so an update does not conflict with
// itself.
func (s *conventionStore) FindActiveByScope(ctx context.Context, clientID, categoryID, excludeID uint64) ([]model.Convention, error) {
	query := `SELECT ` + conventionColumns + `
			  FROM conventions
			  WHERE client_id = ? AND category_id = ? AND active = 1`
	args := []any{clientID, categoryID}
	if excludeID != 0 {
		query += ` AND id <> ?`
		args = append(args, excludeID)
	}
	query += ` ORDER BY validity_start`
	return s.queryConventions(ctx, query, args...)
}

// FindCovering returns the active conventions for a scope key whose
// validity window contains the given date.  Open-ended windows count as
// extending to unbounded future.
func (s *conventionStore) FindCovering(ctx context.Context, clientID, categoryID uint64, on time.Time) ([]model.Convention, error) {
	const where = ` FROM conventions
			  WHERE client_id = ? AND category_id = ? AND active = 1
				AND validity_start <= ?
				AND (validity_end IS NULL OR validity_end >= ?)
			  ORDER BY id DESC`
	query := `SELECT ` + conventionColumns + where
	return s.queryConventions(ctx, query, clientID, categoryID, on, on)
}

// ListByClient returns all conventions for a client ordered by validity
// start descending (newest agreement first).  When activeOnly is true,
// inactive records are omitted.
func (r *ConventionRepo) ListByClient(ctx context.Context, clientID uint64, activeOnly bool) ([]model.Convention, error) {
	query := `SELECT ` + conventionColumns + ` FROM conventions WHERE client_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY validity_start DESC, id DESC`
	return r.queryConventions(ctx, query, clientID)
}

// ListByPeriod returns the active conventions whose validity window
// intersects [from, to], optionally filtered by hotel and category.
func (r *ConventionRepo) ListByPeriod(ctx context.Context, from, to time.Time, hotelID, categoryID *uint64) ([]model.Convention, error) {
	query := `SELECT ` + conventionColumns + `
			  FROM conventions
			  WHERE active = 1
				AND validity_start <= ?
				AND (validity_end IS NULL OR validity_end >= ?)`
	args := []any{to, from}
	if hotelID != nil {
		query += ` AND hotel_id = ?`
		args = append(args, *hotelID)
	}
	if categoryID != nil {
		query += ` AND category_id = ?`
		args = append(args, *categoryID)
	}
	query += ` ORDER BY client_id, category_id, validity_start`
	return r.queryConventions(ctx, query, args...)
}

// Delete removes a convention row.  Administrative deletion is an
// external concern; the engine only requires that a deleted record stop
// participating in resolution and overlap checks, which row removal
// trivially satisfies.  No scope lock is taken: removing a row can only
// widen the free windows other writers observe.
func (r *ConventionRepo) Delete(ctx context.Context, id uint64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM conventions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConventionNotFound
	}
	return nil
}

// queryConventions runs a SELECT built on conventionColumns and scans
// every row.
func (s *conventionStore) queryConventions(ctx context.Context, query string, args ...any) ([]model.Convention, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Convention, 0)
	for rows.Next() {
		c, err := scanConvention(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanConvention reads one row in conventionColumns order.
func scanConvention(row rowScanner) (*model.Convention, error) {
	var (
		c        model.Convention
		hotelID  sql.NullInt64
		end      sql.NullTime
		months   [12]decimal.NullDecimal
		discount decimal.NullDecimal
		flat     decimal.NullDecimal
		notes    sql.NullString
	)
	dest := make([]any, 0, 24)
	dest = append(dest, &c.ID, &c.ClientID, &c.CategoryID, &hotelID, &c.ValidityStart, &end, &c.DefaultPrice)
	for i := range months {
		dest = append(dest, &months[i])
	}
	dest = append(dest, &discount, &flat, &notes, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if hotelID.Valid {
		h := uint64(hotelID.Int64)
		c.HotelID = &h
	}
	if end.Valid {
		e := end.Time
		c.ValidityEnd = &e
	}
	for i, m := range months {
		if m.Valid {
			if c.MonthlyPrices == nil {
				c.MonthlyPrices = make(model.MonthlyPrices)
			}
			c.MonthlyPrices[time.Month(i+1)] = m.Decimal
		}
	}
	if discount.Valid {
		d := discount.Decimal
		c.DiscountPercent = &d
	}
	if flat.Valid {
		f := flat.Decimal
		c.FlatMonthlyRate = &f
	}
	if notes.Valid {
		n := notes.String
		c.Notes = &n
	}
	return &c, nil
}

// monthArgs produces the twelve monthly column values in calendar
// order, NULL for months without an override.
func monthArgs(m model.MonthlyPrices) []any {
	args := make([]any, 12)
	for i := 0; i < 12; i++ {
		if p, ok := m[time.Month(i+1)]; ok {
			args[i] = decimal.NullDecimal{Decimal: p, Valid: true}
		} else {
			args[i] = decimal.NullDecimal{}
		}
	}
	return args
}

func nullUint(v *uint64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullDate(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullDec(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
