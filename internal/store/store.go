package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-tuya/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-tuya/internal/tuya"
)

// Store provides session and device snapshot persistence.
//
// Thread Safety: all methods are safe for concurrent use; SQLite access is
// serialized by the database wrapper's single-connection pool.
type Store struct {
	db *database.DB
}

// New creates a store backed by an opened, migrated database.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// ─── Session ─────────────────────────────────────────────────────────────

// SaveSession persists the cloud session as the single session row.
func (s *Store) SaveSession(ctx context.Context, sess tuya.Session) error {
	query := `
		INSERT INTO cloud_session (id, access_token, refresh_token, uid, endpoint, expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			uid = excluded.uid,
			endpoint = excluded.endpoint,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		sess.AccessToken, sess.RefreshToken, sess.UID, sess.Endpoint,
		sess.ExpiresAt.Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// LoadSession returns the persisted session, or a zero session when none
// was ever saved.
func (s *Store) LoadSession(ctx context.Context) (tuya.Session, error) {
	query := `
		SELECT access_token, refresh_token, uid, endpoint, expires_at
		FROM cloud_session WHERE id = 1
	`
	var sess tuya.Session
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, query).Scan(
		&sess.AccessToken, &sess.RefreshToken, &sess.UID, &sess.Endpoint, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tuya.Session{}, nil
	}
	if err != nil {
		return tuya.Session{}, fmt.Errorf("loading session: %w", err)
	}
	if expiresAt > 0 {
		sess.ExpiresAt = time.Unix(expiresAt, 0)
	}
	return sess, nil
}

// ─── Devices ─────────────────────────────────────────────────────────────

// UpsertDevice stores a device snapshot, replacing any previous row.
// The state column is preserved across upserts; discovery must not wipe
// the last-known attribute values.
func (s *Store) UpsertDevice(ctx context.Context, dev tuya.Device) error {
	functions, statuses, err := encodeSpec(dev.Spec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO devices (id, name, category, product_key, online, functions, statuses, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			product_key = excluded.product_key,
			online = excluded.online,
			functions = excluded.functions,
			statuses = excluded.statuses,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		dev.ID, dev.Name, dev.Category, dev.ProductKey, boolToInt(dev.Online),
		functions, statuses, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", dev.ID, err)
	}
	return nil
}

// ReplaceDevices swaps the entire snapshot set in one transaction,
// dropping devices no longer present on the account. Used after a full
// device-list refresh.
func (s *Store) ReplaceDevices(ctx context.Context, devices []tuya.Device) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning device replace: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after successful commit

	ids := make([]any, 0, len(devices))
	now := time.Now().Unix()
	for _, dev := range devices {
		functions, statuses, encErr := encodeSpec(dev.Spec)
		if encErr != nil {
			return encErr
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO devices (id, name, category, product_key, online, functions, statuses, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				category = excluded.category,
				product_key = excluded.product_key,
				online = excluded.online,
				functions = excluded.functions,
				statuses = excluded.statuses,
				updated_at = excluded.updated_at
		`, dev.ID, dev.Name, dev.Category, dev.ProductKey, boolToInt(dev.Online),
			functions, statuses, now)
		if err != nil {
			return fmt.Errorf("replacing device %s: %w", dev.ID, err)
		}
		ids = append(ids, dev.ID)
	}

	// Remove rows not in the fresh set.
	if len(ids) == 0 {
		if _, err = tx.ExecContext(ctx, `DELETE FROM devices`); err != nil {
			return fmt.Errorf("clearing devices: %w", err)
		}
	} else {
		placeholders := ""
		for i := range ids {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
		}
		query := fmt.Sprintf(`DELETE FROM devices WHERE id NOT IN (%s)`, placeholders)
		if _, err = tx.ExecContext(ctx, query, ids...); err != nil {
			return fmt.Errorf("pruning stale devices: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing device replace: %w", err)
	}
	return nil
}

// GetDevice returns one device snapshot.
func (s *Store) GetDevice(ctx context.Context, id string) (tuya.Device, error) {
	query := `
		SELECT id, name, category, product_key, online, functions, statuses
		FROM devices WHERE id = ?
	`
	dev, err := scanDevice(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return tuya.Device{}, ErrNotFound
	}
	if err != nil {
		return tuya.Device{}, fmt.Errorf("loading device %s: %w", id, err)
	}
	return dev, nil
}

// ListDevices returns every stored device snapshot, ordered by name.
func (s *Store) ListDevices(ctx context.Context) ([]tuya.Device, error) {
	query := `
		SELECT id, name, category, product_key, online, functions, statuses
		FROM devices ORDER BY name, id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows

	var devices []tuya.Device
	for rows.Next() {
		dev, scanErr := scanDevice(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning device row: %w", scanErr)
		}
		devices = append(devices, dev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// SetOnline updates a device's online flag.
func (s *Store) SetOnline(ctx context.Context, id string, online bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET online = ?, updated_at = ? WHERE id = ?`,
		boolToInt(online), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("updating online flag for %s: %w", id, err)
	}
	return requireRow(res, id)
}

// Rename updates a device's name.
func (s *Store) Rename(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("renaming device %s: %w", id, err)
	}
	return requireRow(res, id)
}

// Delete removes a device snapshot.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}
	return nil
}

// SaveState merges normalized attribute values into the device's state
// column. Existing attributes not present in the update are kept.
func (s *Store) SaveState(ctx context.Context, id string, attrs map[string]any) error {
	current, err := s.GetState(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if current == nil {
		current = make(map[string]any)
	}
	for k, v := range attrs {
		current[k] = v
	}

	encoded, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encoding state for %s: %w", id, err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET state = ?, updated_at = ? WHERE id = ?`,
		string(encoded), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("saving state for %s: %w", id, err)
	}
	return requireRow(res, id)
}

// GetState returns the device's last-known attribute map.
func (s *Store) GetState(ctx context.Context, id string) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM devices WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading state for %s: %w", id, err)
	}

	state := make(map[string]any)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			return nil, fmt.Errorf("decoding state for %s: %w", id, err)
		}
	}
	return state, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────

// scanTarget abstracts sql.Row and sql.Rows for shared scanning.
type scanTarget interface {
	Scan(dest ...any) error
}

func scanDevice(row scanTarget) (tuya.Device, error) {
	var dev tuya.Device
	var online int
	var functions, statuses string
	if err := row.Scan(&dev.ID, &dev.Name, &dev.Category, &dev.ProductKey,
		&online, &functions, &statuses); err != nil {
		return tuya.Device{}, err
	}
	dev.Online = online != 0

	spec, err := decodeSpec(dev.Category, functions, statuses)
	if err != nil {
		return tuya.Device{}, err
	}
	dev.Spec = spec
	return dev, nil
}

func encodeSpec(spec tuya.Specification) (functions, statuses string, err error) {
	f, err := json.Marshal(spec.Functions)
	if err != nil {
		return "", "", fmt.Errorf("encoding functions: %w", err)
	}
	st, err := json.Marshal(spec.Status)
	if err != nil {
		return "", "", fmt.Errorf("encoding statuses: %w", err)
	}
	return string(f), string(st), nil
}

func decodeSpec(category, functions, statuses string) (tuya.Specification, error) {
	spec := tuya.Specification{Category: category}
	if functions != "" && functions != "{}" {
		if err := json.Unmarshal([]byte(functions), &spec.Functions); err != nil {
			return tuya.Specification{}, fmt.Errorf("decoding functions: %w", err)
		}
	}
	if statuses != "" && statuses != "{}" {
		if err := json.Unmarshal([]byte(statuses), &spec.Status); err != nil {
			return tuya.Specification{}, fmt.Errorf("decoding statuses: %w", err)
		}
	}
	return spec, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows for %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
