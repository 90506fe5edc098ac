package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	drv "github.com/go-sql-driver/mysql"

	"cleaning_booking/internal/domain"
)

const errDuplicateEntry = 1062

func valStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// SaveBooking writes the booking and its extras in one transaction. A second booking
// for the same draft is reported as ErrAlreadySubmitted.
func (r *Repo) SaveBooking(ctx context.Context, b domain.BookingRecord) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	p, c := b.Property, b.Contact
	_, err = tx.ExecContext(ctx, insertBookingSQL,
		b.ID, b.DraftID, string(b.ServiceType),
		p.SizeSquareMeters, p.Bedrooms, p.Bathrooms, p.DirtinessLevel, p.LastProfessionalCleaning, string(p.CleaningPace),
		b.Hours, string(b.Frequency), b.HourlyRate, b.BasePrice, b.ExtrasTotal, b.TotalPrice,
		b.ScheduledDate, b.TimeSlot,
		c.Name, c.Email, c.Phone, c.Address, c.PostalCode, c.City, valStr(c.Notes),
		b.CreatedAt.UTC(),
	)
	if err != nil {
		var me *drv.MySQLError
		if errors.As(err, &me) && me.Number == errDuplicateEntry {
			return fmt.Errorf("booking for draft %s: %w", b.DraftID, domain.ErrAlreadySubmitted)
		}
		return fmt.Errorf("insert booking: %w", err)
	}

	if len(b.Extras) > 0 {
		values := make([]string, 0, len(b.Extras))
		args := make([]any, 0, len(b.Extras)*5)
		for _, e := range b.Extras {
			values = append(values, "(?,?,?,?,?)")
			args = append(args, b.ID, e.ExtraID, e.Units, e.Minutes, e.Amount)
		}
		if _, err = tx.ExecContext(ctx, insertExtrasPrefix+strings.Join(values, ","), args...); err != nil {
			return fmt.Errorf("insert booking extras: %w", err)
		}
	}
	return tx.Commit()
}

// MarkSynced stamps a booking as pushed. Already synced rows keep their first stamp.
func (r *Repo) MarkSynced(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, markSyncedSQL, at.UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var one int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

func (r *Repo) GetBooking(ctx context.Context, id string) (domain.BookingRecord, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, getBookingSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.BookingRecord{}, domain.ErrNotFound
		}
		return domain.BookingRecord{}, err
	}
	if b.Extras, err = r.extras(ctx, b.ID); err != nil {
		return domain.BookingRecord{}, err
	}
	return b, nil
}

func (r *Repo) ListUnsynced(ctx context.Context, limit int) ([]domain.BookingRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, listUnsyncedSQL, limit)
	if err != nil {
		return nil, err
	}
	var out []domain.BookingRecord
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// extras are loaded after the cursor is closed so the pool is not held twice
	for i := range out {
		if out[i].Extras, err = r.extras(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repo) extras(ctx context.Context, bookingID string) ([]domain.BookingExtra, error) {
	rows, err := r.db.QueryContext(ctx, listExtrasSQL, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.BookingExtra{}
	for rows.Next() {
		var e domain.BookingExtra
		if err := rows.Scan(&e.ExtraID, &e.Units, &e.Minutes, &e.Amount); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(s scanner) (domain.BookingRecord, error) {
	var (
		b                  domain.BookingRecord
		serviceType, pace  string
		frequency          string
		scheduled, created time.Time
		notes              sql.NullString
		synced             sql.NullTime
	)
	err := s.Scan(
		&b.ID, &b.DraftID, &serviceType,
		&b.Property.SizeSquareMeters, &b.Property.Bedrooms, &b.Property.Bathrooms,
		&b.Property.DirtinessLevel, &b.Property.LastProfessionalCleaning, &pace,
		&b.Hours, &frequency, &b.HourlyRate, &b.BasePrice, &b.ExtrasTotal, &b.TotalPrice,
		&scheduled, &b.TimeSlot,
		&b.Contact.Name, &b.Contact.Email, &b.Contact.Phone, &b.Contact.Address, &b.Contact.PostalCode,
		&b.Contact.City, &notes, &created, &synced,
	)
	if err != nil {
		return domain.BookingRecord{}, err
	}
	b.ServiceType = domain.ServiceType(serviceType)
	b.Property.CleaningPace = domain.CleaningPace(pace)
	b.Frequency = domain.FrequencyTier(frequency)
	b.ScheduledDate = scheduled.Format("2006-01-02")
	b.Contact.Notes = notes.String
	b.CreatedAt = created.UTC()
	if synced.Valid {
		t := synced.Time.UTC()
		b.SyncedAt = &t
	}
	return b, nil
}
