package cache

import (
	"context"
	"database/sql"
	"errors"
	"fleet-route-engine/internal/domain"
	"fleet-route-engine/internal/platform/obs"
	"fmt"
	"math"
	"strings"
	"time"
)

// maxLookupKeys bounds the IN list of one lookup query.
const maxLookupKeys = 500

// geocodedAtLayout is fixed width so stored stamps compare as strings.
const geocodedAtLayout = "2006-01-02T15:04:05.000000Z"

// GeocodeCache remembers where stop addresses geocoded to. Keys ignore case
// and repeated whitespace, so "12 Main St,  Newark" and "12 main st, newark"
// share a row. Entries older than MaxAge count as misses; zero keeps them
// forever.
type GeocodeCache struct {
	DB     *sql.DB
	MaxAge time.Duration

	now func() time.Time
}

func NewGeocodeCache(db *sql.DB, maxAge time.Duration) *GeocodeCache {
	return &GeocodeCache{DB: db, MaxAge: maxAge, now: time.Now}
}

func addressKey(a string) string {
	return strings.ToLower(strings.Join(strings.Fields(a), " "))
}

func (s *GeocodeCache) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

// GetMany looks up addresses and returns hits keyed by the caller's own
// spelling. Misses and blank addresses are absent from the result.
func (s *GeocodeCache) GetMany(
	ctx context.Context,
	addresses []string,
) (_ map[string]domain.Coordinates, err error) {
	defer obs.Time(ctx, "geocode.cache.GetMany")(&err)

	if s.DB == nil {
		return nil, errors.New("geocode cache: db is nil")
	}

	// One key can stand for several spellings of the same address.
	spellings := make(map[string][]string, len(addresses))
	keys := make([]string, 0, len(addresses))
	for _, a := range addresses {
		k := addressKey(a)
		if k == "" {
			continue
		}
		if _, ok := spellings[k]; !ok {
			keys = append(keys, k)
		}
		spellings[k] = append(spellings[k], a)
	}

	out := make(map[string]domain.Coordinates, len(addresses))
	for start := 0; start < len(keys); start += maxLookupKeys {
		chunk := keys[start:min(start+maxLookupKeys, len(keys))]
		found, err := s.lookup(ctx, chunk)
		if err != nil {
			return nil, err
		}
		for k, c := range found {
			for _, a := range spellings[k] {
				out[a] = c
			}
		}
	}

	return out, nil
}

func (s *GeocodeCache) lookup(ctx context.Context, keys []string) (map[string]domain.Coordinates, error) {
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		args = append(args, k)
	}

	q := `SELECT address, lon, lat FROM geocode_cache WHERE address IN (` + placeholders(1, len(keys)) + `)`
	if s.MaxAge > 0 {
		args = append(args, s.clock().Add(-s.MaxAge).Format(geocodedAtLayout))
		q += fmt.Sprintf(` AND geocoded_at >= $%d`, len(args))
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("get geocode cache: query geocode_cache table: %w", err)
	}
	defer rows.Close()

	found := make(map[string]domain.Coordinates, len(keys))
	for rows.Next() {
		var key string
		var c domain.Coordinates
		if err := rows.Scan(&key, &c.Lon, &c.Lat); err != nil {
			return nil, fmt.Errorf("get geocode cache: scan rows: %w", err)
		}
		found[key] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get geocode cache: row iteration: %w", err)
	}
	return found, nil
}

// PutMany records fresh geocoding results and refreshes their timestamp.
// Coordinates outside the valid lon/lat range are rejected so a bad geocoder
// answer is never served from the cache.
func (s *GeocodeCache) PutMany(ctx context.Context, results map[string]domain.Coordinates) (err error) {
	defer obs.Time(ctx, "geocode.cache.PutMany")(&err)

	if s.DB == nil {
		return errors.New("geocode cache: db is nil")
	}
	if len(results) == 0 {
		return nil
	}

	rows := make(map[string]domain.Coordinates, len(results))
	for addr, c := range results {
		k := addressKey(addr)
		if k == "" {
			return errors.New("insert geocode cache: empty address key")
		}
		if !validCoordinates(c) {
			return fmt.Errorf("insert geocode cache address=%q: coordinates out of range (lon=%v lat=%v)", addr, c.Lon, c.Lat)
		}
		rows[k] = c
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert geocode cache: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO geocode_cache (address, lon, lat, geocoded_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (address) DO UPDATE
	SET lon = EXCLUDED.lon,
		lat = EXCLUDED.lat,
		geocoded_at = EXCLUDED.geocoded_at
	`)
	if err != nil {
		return fmt.Errorf("insert geocode cache: db prepare: %w", err)
	}
	defer stmt.Close()

	stamp := s.clock().Format(geocodedAtLayout)
	for k, c := range rows {
		if _, err := stmt.ExecContext(ctx, k, c.Lon, c.Lat, stamp); err != nil {
			return fmt.Errorf("insert geocode cache address=%q: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert geocode cache commit: %w", err)
	}

	return nil
}

// Purge deletes entries older than MaxAge and reports how many went.
func (s *GeocodeCache) Purge(ctx context.Context) (int64, error) {
	if s.DB == nil {
		return 0, errors.New("geocode cache: db is nil")
	}
	if s.MaxAge <= 0 {
		return 0, nil
	}

	cutoff := s.clock().Add(-s.MaxAge).Format(geocodedAtLayout)
	res, err := s.DB.ExecContext(ctx, `DELETE FROM geocode_cache WHERE geocoded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge geocode cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge geocode cache: rows affected: %w", err)
	}
	return n, nil
}

func validCoordinates(c domain.Coordinates) bool {
	if math.IsNaN(c.Lon) || math.IsNaN(c.Lat) {
		return false
	}
	return c.Lon >= -180 && c.Lon <= 180 && c.Lat >= -90 && c.Lat <= 90
}

// placeholders renders "$from, $from+1, ..." for n arguments.
func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ", ")
}
