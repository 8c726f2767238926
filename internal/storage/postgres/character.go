package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/fibula/internal/game/world"
)

// ErrCharacterNotFound is returned when a character lookup yields no results.
var ErrCharacterNotFound = errors.New("character not found")

// ErrCharacterNameTaken is returned when creating a character with a name already in use.
var ErrCharacterNameTaken = errors.New("character name already taken")

// Character is the persisted part of a player creature: where it stood, how
// hurt it was, and what it carried when it last logged out.
type Character struct {
	ID        int64
	AccountID int64
	Name      string
	Location  world.Location
	HitPoints int
	Items     map[string]int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CharacterRepository provides character persistence operations.
type CharacterRepository struct {
	db *pgxpool.Pool
}

// NewCharacterRepository creates a CharacterRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewCharacterRepository(db *pgxpool.Pool) *CharacterRepository {
	return &CharacterRepository{db: db}
}

const characterColumns = `id, account_id, name, pos_x, pos_y, pos_z, hit_points, items, created_at, updated_at`

// Create inserts a new character and returns it with ID and timestamps set.
//
// Precondition: c.AccountID must reference an existing account; c.Name must be non-empty.
// Postcondition: Returns the created character, or ErrCharacterNameTaken on duplicate.
func (r *CharacterRepository) Create(ctx context.Context, c Character) (Character, error) {
	items, err := encodeItems(c.Items)
	if err != nil {
		return Character{}, err
	}
	out, err := scanCharacter(r.db.QueryRow(ctx, `
		INSERT INTO characters (account_id, name, pos_x, pos_y, pos_z, hit_points, items)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+characterColumns,
		c.AccountID, c.Name, c.Location.X, c.Location.Y, c.Location.Z, c.HitPoints, items,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return Character{}, ErrCharacterNameTaken
		}
		return Character{}, fmt.Errorf("inserting character: %w", err)
	}
	return out, nil
}

// GetByAccount returns the character owned by accountID. An account owns at
// most one playable character; the oldest one wins if several exist.
//
// Postcondition: Returns the Character or ErrCharacterNotFound.
func (r *CharacterRepository) GetByAccount(ctx context.Context, accountID int64) (Character, error) {
	out, err := scanCharacter(r.db.QueryRow(ctx, `
		SELECT `+characterColumns+`
		FROM characters WHERE account_id = $1
		ORDER BY id LIMIT 1`,
		accountID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Character{}, ErrCharacterNotFound
		}
		return Character{}, fmt.Errorf("querying character for account %d: %w", accountID, err)
	}
	return out, nil
}

// SaveState records the character's location, hit points and carried items.
//
// Precondition: hp >= 0.
// Postcondition: UpdatedAt is advanced; returns ErrCharacterNotFound if no row matched.
func (r *CharacterRepository) SaveState(ctx context.Context, id int64, loc world.Location, hp int, items map[string]int) error {
	encoded, err := encodeItems(items)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE characters
		SET pos_x = $2, pos_y = $3, pos_z = $4, hit_points = $5, items = $6, updated_at = NOW()
		WHERE id = $1`,
		id, loc.X, loc.Y, loc.Z, hp, encoded,
	)
	if err != nil {
		return fmt.Errorf("saving character %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCharacterNotFound
	}
	return nil
}

func scanCharacter(row pgx.Row) (Character, error) {
	var (
		c     Character
		items []byte
	)
	err := row.Scan(
		&c.ID, &c.AccountID, &c.Name,
		&c.Location.X, &c.Location.Y, &c.Location.Z,
		&c.HitPoints, &items, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Character{}, err
	}
	c.Items = map[string]int{}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &c.Items); err != nil {
			return Character{}, fmt.Errorf("decoding items of character %d: %w", c.ID, err)
		}
	}
	return c, nil
}

func encodeItems(items map[string]int) ([]byte, error) {
	if items == nil {
		items = map[string]int{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encoding items: %w", err)
	}
	return b, nil
}
