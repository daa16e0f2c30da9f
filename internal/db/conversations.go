package db

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/RichardoC/studypad/internal/models"
)

// CreateConversation inserts a conversation; an empty title becomes models.DefaultTitle.
func (db *Database) CreateConversation(title string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = models.DefaultTitle
	}
	query := `
        INSERT INTO conversations (title, created_at)
        VALUES (?, ?)
        RETURNING id, created_at`

	var created int64
	conv := &models.Conversation{Title: title}
	if err := db.db.QueryRow(query, title, db.now().UnixNano()).Scan(&conv.ID, &created); err != nil {
		return nil, err
	}
	conv.CreatedAt = fromNanos(created)
	return conv, nil
}

func (db *Database) GetConversation(id int64) (*models.Conversation, error) {
	var (
		conv    models.Conversation
		created int64
	)
	err := db.db.QueryRow(`SELECT id, title, created_at FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.Title, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	conv.CreatedAt = fromNanos(created)
	return &conv, nil
}

// GetConversations lists conversations, newest first.
func (db *Database) GetConversations() ([]models.Conversation, error) {
	query := `
        SELECT id, title, created_at
        FROM conversations
        ORDER BY created_at DESC, id DESC`

	rows, err := db.db.Query(query)
	if err != nil {
		return []models.Conversation{}, err
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		var (
			conv    models.Conversation
			created int64
		)
		if err := rows.Scan(&conv.ID, &conv.Title, &created); err != nil {
			return []models.Conversation{}, err
		}
		conv.CreatedAt = fromNanos(created)
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (db *Database) UpdateConversationTitle(id int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	res, err := db.db.Exec("UPDATE conversations SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return err
	}
	return expectRows(res)
}

// DeleteConversation removes the conversation and all of its turns. Documents
// uploaded into it are kept but unlinked.
func (db *Database) DeleteConversation(id int64) error {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Delete turns
	if _, err := tx.Exec("DELETE FROM turns WHERE conversation_id = ?", id); err != nil {
		return err
	}

	if _, err := tx.Exec("UPDATE documents SET conversation_id = NULL WHERE conversation_id = ?", id); err != nil {
		return err
	}

	res, err := tx.Exec("DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return err
	}
	if err := expectRows(res); err != nil {
		return err
	}

	return tx.Commit()
}

func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
