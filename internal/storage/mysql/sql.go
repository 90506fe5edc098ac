package mysql

const insertBookingSQL = `
INSERT INTO bookings
  (id, draft_id, service_type, size_sqm, bedrooms, bathrooms, dirtiness_level, last_cleaning, cleaning_pace,
   hours, frequency, hourly_rate, base_price, extras_total, total_price, scheduled_date, time_slot,
   contact_name, contact_email, contact_phone, address, postal_code, city, notes, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const insertExtrasPrefix = "INSERT INTO booking_extras\n  (booking_id, extra_id, units, minutes, amount)\nVALUES "

const markSyncedSQL = `
UPDATE bookings SET synced_at = ? WHERE id = ? AND synced_at IS NULL
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

// Column order must match scanBooking.
const bookingColumns = `
  b.id, b.draft_id, b.service_type, b.size_sqm, b.bedrooms, b.bathrooms, b.dirtiness_level, b.last_cleaning,
  b.cleaning_pace, b.hours, b.frequency, b.hourly_rate, b.base_price, b.extras_total, b.total_price,
  b.scheduled_date, b.time_slot, b.contact_name, b.contact_email, b.contact_phone, b.address, b.postal_code,
  b.city, b.notes, b.created_at, b.synced_at
`

const getBookingSQL = `SELECT` + bookingColumns + `FROM bookings b WHERE b.id = ?`

// Oldest first so the syncer drains in submission order.
const listUnsyncedSQL = `SELECT` + bookingColumns + `FROM bookings b
WHERE b.synced_at IS NULL
ORDER BY b.created_at ASC, b.id ASC
LIMIT ?`

const listExtrasSQL = `
SELECT extra_id, units, minutes, amount
FROM booking_extras
WHERE booking_id = ?
ORDER BY extra_id
`
