package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDirectory is the typed facade over the shared ecosystem directory
// table. The apps_active and permissions columns are JSONB arrays of strings.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (s *PostgresDirectory) DB() *sql.DB {
	return s.db
}

func (s *PostgresDirectory) GetIdentity(ctx context.Context, id string) (GlobalIdentity, error) {
	const query = `
		SELECT id, username, display_name, apps_active, bio, avatar_url, profile_pic_id, privacy_settings, permissions, created_at, updated_at
		FROM directory_users WHERE id = $1
	`
	var (
		identity    GlobalIdentity
		appsActive  []byte
		permissions []byte
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&identity.ID,
		&identity.Username,
		&identity.DisplayName,
		&appsActive,
		&identity.Bio,
		&identity.AvatarURL,
		&identity.ProfilePicID,
		&identity.PrivacySettings,
		&permissions,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return GlobalIdentity{}, ErrNotFound
	}
	if err != nil {
		return GlobalIdentity{}, fmt.Errorf("get identity: %w", err)
	}
	if err := decodeStrings(appsActive, &identity.AppsActive); err != nil {
		return GlobalIdentity{}, fmt.Errorf("decode apps_active: %w", err)
	}
	if err := decodeStrings(permissions, &identity.Permissions); err != nil {
		return GlobalIdentity{}, fmt.Errorf("decode permissions: %w", err)
	}
	return identity, nil
}

func (s *PostgresDirectory) CreateIdentity(ctx context.Context, identity GlobalIdentity) error {
	appsActive, err := json.Marshal(identity.AppsActive)
	if err != nil {
		return fmt.Errorf("encode apps_active: %w", err)
	}
	permissions, err := json.Marshal(identity.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO directory_users (id, username, display_name, apps_active, bio, avatar_url, profile_pic_id, privacy_settings, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		identity.ID,
		strings.ToLower(identity.Username),
		identity.DisplayName,
		appsActive,
		identity.Bio,
		identity.AvatarURL,
		identity.ProfilePicID,
		identity.PrivacySettings,
		permissions,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

// AddActiveApp appends app to the identity's active set. The containment
// guard makes the statement idempotent: a second append for the same app
// affects zero rows, which is success.
func (s *PostgresDirectory) AddActiveApp(ctx context.Context, id, app string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE directory_users
		SET apps_active = apps_active || to_jsonb($2::text), updated_at = NOW()
		WHERE id = $1 AND NOT (apps_active ? $2)
	`, id, app)
	if err != nil {
		return fmt.Errorf("add active app: %w", err)
	}
	return nil
}

// ListIdentities matches username by case-insensitive prefix or display_name
// by full-text search. An empty query matches everything, which the search
// reindexer relies on; limit <= 0 selects a reindex-sized batch.
func (s *PostgresDirectory) ListIdentities(ctx context.Context, query string, limit int) ([]GlobalIdentity, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, display_name, apps_active, bio, avatar_url, profile_pic_id, privacy_settings, permissions, created_at, updated_at
		FROM directory_users
		WHERE username LIKE $1
			OR to_tsvector('simple', display_name) @@ plainto_tsquery('simple', $2)
		ORDER BY username
		LIMIT $3
	`, escapeLike(strings.ToLower(query))+"%", query, limit)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	items := make([]GlobalIdentity, 0)
	for rows.Next() {
		var (
			identity    GlobalIdentity
			appsActive  []byte
			permissions []byte
		)
		if err := rows.Scan(
			&identity.ID,
			&identity.Username,
			&identity.DisplayName,
			&appsActive,
			&identity.Bio,
			&identity.AvatarURL,
			&identity.ProfilePicID,
			&identity.PrivacySettings,
			&permissions,
			&identity.CreatedAt,
			&identity.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		if err := decodeStrings(appsActive, &identity.AppsActive); err != nil {
			return nil, fmt.Errorf("decode apps_active: %w", err)
		}
		if err := decodeStrings(permissions, &identity.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
		items = append(items, identity)
	}
	return items, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE metacharacters in user-supplied input so a
// query like "%" matches a literal percent sign, not every row.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func decodeStrings(raw []byte, target *[]string) error {
	if len(raw) == 0 {
		*target = []string{}
		return nil
	}
	return json.Unmarshal(raw, target)
}
