// Package persistence provides Postgres adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"guard_server/core/domain"
	"guard_server/core/port/out"
	"guard_server/pkg/crypto"
)

// DefaultProfile is the settings row used by a single-tenant deployment.
const DefaultProfile = "default"

const settingsSchema = `
	CREATE TABLE IF NOT EXISTS guard_settings (
		profile            TEXT PRIMARY KEY,
		enabled            BOOLEAN NOT NULL DEFAULT TRUE,
		enabled_categories TEXT[] NOT NULL DEFAULT '{}',
		threshold          DOUBLE PRECISION NOT NULL,
		use_remote         BOOLEAN NOT NULL DEFAULT FALSE,
		api_token          TEXT NOT NULL DEFAULT '',
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// SettingsAdapter implements out.SettingsStore using PostgreSQL.
type SettingsAdapter struct {
	db       *sqlx.DB
	profile  string
	defaults domain.Settings
	enc      *crypto.Encryptor
}

var _ out.SettingsStore = (*SettingsAdapter)(nil)

// NewSettingsAdapter creates a settings adapter. Get returns defaults until
// the profile row is first saved.
func NewSettingsAdapter(db *sqlx.DB, profile string, defaults domain.Settings) *SettingsAdapter {
	if profile == "" {
		profile = DefaultProfile
	}
	return &SettingsAdapter{db: db, profile: profile, defaults: defaults.Clone()}
}

// WithEncryptor seals the API token at rest.
func (a *SettingsAdapter) WithEncryptor(enc *crypto.Encryptor) *SettingsAdapter {
	a.enc = enc
	return a
}

// EnsureSchema creates the settings table if it does not exist.
func (a *SettingsAdapter) EnsureSchema(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, settingsSchema)
	return err
}

// settingsRow represents the database row for settings.
type settingsRow struct {
	Profile           string         `db:"profile"`
	Enabled           bool           `db:"enabled"`
	EnabledCategories pq.StringArray `db:"enabled_categories"`
	Threshold         float64        `db:"threshold"`
	UseRemote         bool           `db:"use_remote"`
	APIToken          string         `db:"api_token"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (r *settingsRow) toDomain() domain.Settings {
	cats := make([]domain.Category, 0, len(r.EnabledCategories))
	for _, name := range r.EnabledCategories {
		cats = append(cats, domain.Category(name))
	}
	return domain.Settings{
		Enabled:           r.Enabled,
		EnabledCategories: domain.NewCategorySet(cats...),
		Threshold:         r.Threshold,
		UseRemote:         r.UseRemote,
		APIToken:          r.APIToken,
	}
}

// Get returns the stored settings or the defaults.
func (a *SettingsAdapter) Get(ctx context.Context) (domain.Settings, error) {
	const query = `
		SELECT profile, enabled, enabled_categories, threshold,
		       use_remote, api_token, updated_at
		FROM guard_settings
		WHERE profile = $1
	`

	var row settingsRow
	if err := a.db.GetContext(ctx, &row, query, a.profile); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a.defaults.Clone(), nil
		}
		return domain.Settings{}, err
	}

	settings := row.toDomain()
	if a.enc != nil {
		token, err := a.enc.Open(settings.APIToken)
		if err != nil {
			return domain.Settings{}, fmt.Errorf("open api token: %w", err)
		}
		settings.APIToken = token
	}
	return settings, nil
}

// Save upserts the settings row.
func (a *SettingsAdapter) Save(ctx context.Context, settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO guard_settings (
			profile, enabled, enabled_categories, threshold,
			use_remote, api_token, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW()
		)
		ON CONFLICT (profile) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			enabled_categories = EXCLUDED.enabled_categories,
			threshold = EXCLUDED.threshold,
			use_remote = EXCLUDED.use_remote,
			api_token = EXCLUDED.api_token,
			updated_at = NOW()
	`

	token := settings.APIToken
	if a.enc != nil {
		sealed, err := a.enc.Seal(token)
		if err != nil {
			return fmt.Errorf("seal api token: %w", err)
		}
		token = sealed
	}

	names := make([]string, 0, len(settings.EnabledCategories))
	for _, c := range settings.EnabledCategories.List() {
		names = append(names, string(c))
	}

	_, err := a.db.ExecContext(ctx, query,
		a.profile,
		settings.Enabled,
		pq.Array(names),
		settings.Threshold,
		settings.UseRemote,
		token,
	)
	return err
}
