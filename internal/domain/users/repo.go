package users

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const userColumns = `id, telegram_id, username, first_name, last_name,
	api_user_id, api_token, display_name, roles, customers,
	selected_lab_id, default_entity_id, first_time_setup, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var customers []byte
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName,
		&u.APIUserID, &u.APIToken, &u.DisplayName, &u.Roles, &customers,
		&u.SelectedLabID, &u.DefaultEntityID, &u.FirstTimeSetup, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if len(customers) > 0 {
		_ = json.Unmarshal(customers, &u.Customers)
	}
	return &u, nil
}

func (r *Repo) GetByTelegramID(ctx context.Context, tgID int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, tgID)
	u, err := scanUser(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// UpsertFromTelegram refreshes the Telegram profile fields and leaves the
// linked API session untouched.
func (r *Repo) UpsertFromTelegram(ctx context.Context, tg Telegram) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (telegram_id, username, first_name, last_name)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (telegram_id)
		DO UPDATE SET
			username   = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name  = EXCLUDED.last_name,
			updated_at = now()
		RETURNING `+userColumns, tg.ID, tg.Username, tg.FirstName, tg.LastName)
	return scanUser(row)
}

// SaveSession stores the API token and the profile returned by the lab API.
func (r *Repo) SaveSession(ctx context.Context, tgID int64, token string, apiUserID int64, name string, roles []string, customers []Customer) error {
	raw, err := json.Marshal(customers)
	if err != nil {
		return err
	}
	if roles == nil {
		roles = []string{}
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE users SET
			api_token = $2, api_user_id = $3, display_name = $4,
			roles = $5, customers = $6, updated_at = now()
		WHERE telegram_id = $1
	`, tgID, token, apiUserID, name, roles, raw)
	return err
}

func (r *Repo) ClearSession(ctx context.Context, tgID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET
			api_token = '', api_user_id = 0, roles = '{}', customers = '[]',
			selected_lab_id = 0, updated_at = now()
		WHERE telegram_id = $1
	`, tgID)
	return err
}

func (r *Repo) SetSelectedLab(ctx context.Context, tgID, labID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET selected_lab_id = $2, updated_at = now() WHERE telegram_id = $1`, tgID, labID)
	return err
}

// SetDefaultEntity stores the sticky default lab/office and closes the
// first-time setup.
func (r *Repo) SetDefaultEntity(ctx context.Context, tgID, entityID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET default_entity_id = $2, first_time_setup = FALSE, updated_at = now()
		WHERE telegram_id = $1
	`, tgID, entityID)
	return err
}
