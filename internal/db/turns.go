package db

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/RichardoC/studypad/internal/models"
)

// SaveTurn appends a turn to its conversation and fills in ID and CreatedAt.
// CreatedAt is strictly greater than that of every earlier turn in the conversation.
func (db *Database) SaveTurn(turn *models.Turn) error {
	if strings.TrimSpace(turn.Content) == "" {
		return ErrEmptyContent
	}

	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var last sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(created_at) FROM turns WHERE conversation_id = ?`, turn.ConvID).Scan(&last); err != nil {
		return err
	}
	created := db.now().UnixNano()
	if last.Valid && created <= last.Int64 {
		created = last.Int64 + 1
	}

	query := `
        INSERT INTO turns (conversation_id, content, from_assistant, created_at)
        VALUES (?, ?, ?, ?)
        RETURNING id`
	if err := tx.QueryRow(query, turn.ConvID, turn.Content, turn.FromAssistant, created).Scan(&turn.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	turn.CreatedAt = fromNanos(created)
	return nil
}

// GetTurns returns every turn of the conversation, oldest first.
func (db *Database) GetTurns(conversationID int64) ([]models.Turn, error) {
	return db.RecentTurns(conversationID, 0)
}

// RecentTurns returns the most recent limit turns, oldest first.
// A limit of zero or less returns every turn.
func (db *Database) RecentTurns(conversationID int64, limit int) ([]models.Turn, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
        SELECT id, conversation_id, content, from_assistant, created_at FROM (
            SELECT id, conversation_id, content, from_assistant, created_at
            FROM turns
            WHERE conversation_id = ?
            ORDER BY created_at DESC, id DESC
            LIMIT ?
        )
        ORDER BY created_at ASC, id ASC`

	rows, err := db.db.Query(query, conversationID, limit)
	if err != nil {
		return []models.Turn{}, err
	}
	defer rows.Close()

	turns := make([]models.Turn, 0)
	for rows.Next() {
		var (
			turn    models.Turn
			created int64
		)
		if err := rows.Scan(&turn.ID, &turn.ConvID, &turn.Content, &turn.FromAssistant, &created); err != nil {
			return []models.Turn{}, err
		}
		turn.CreatedAt = fromNanos(created)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// CountTurns counts the turns of one origin in a conversation.
func (db *Database) CountTurns(conversationID int64, fromAssistant bool) (int, error) {
	var n int
	err := db.db.QueryRow(`SELECT COUNT(*) FROM turns WHERE conversation_id = ? AND from_assistant = ?`,
		conversationID, fromAssistant).Scan(&n)
	return n, err
}

// DeleteTurnsFrom deletes the turn and every later turn of the same
// conversation, returning how many were removed.
func (db *Database) DeleteTurnsFrom(conversationID, turnID int64) (int64, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var created int64
	err = tx.QueryRow(`SELECT created_at FROM turns WHERE id = ? AND conversation_id = ?`, turnID, conversationID).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	res, err := tx.Exec(`DELETE FROM turns WHERE conversation_id = ? AND created_at >= ?`, conversationID, created)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
