package db

import (
	"database/sql"
	"errors"
	"strings"
	"unicode"

	"github.com/RichardoC/studypad/internal/models"
)

const documentColumns = `id, object_key, filename, content_type, size, description, conversation_id, created_at`

// SaveDocument stores document metadata and fills in ID and CreatedAt.
func (db *Database) SaveDocument(doc *models.Document) error {
	created := db.now().UnixNano()
	query := `
        INSERT INTO documents (object_key, filename, content_type, size, description, conversation_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        RETURNING id`
	var convID sql.NullInt64
	if doc.ConvID != nil {
		convID = sql.NullInt64{Int64: *doc.ConvID, Valid: true}
	}
	if err := db.db.QueryRow(query, doc.Key, doc.Filename, doc.ContentType, doc.Size, doc.Description, convID, created).Scan(&doc.ID); err != nil {
		return err
	}
	doc.CreatedAt = fromNanos(created)
	return nil
}

func (db *Database) GetDocument(id int64) (*models.Document, error) {
	row := db.db.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

// SearchDocuments matches query against document filenames and extracted text,
// best matches first. A query without any searchable terms matches nothing.
func (db *Database) SearchDocuments(query string, limit int) ([]models.Document, error) {
	match := ftsQuery(query)
	if match == "" {
		return []models.Document{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	q := `
        SELECT d.id, d.object_key, d.filename, d.content_type, d.size, d.description, d.conversation_id, d.created_at
        FROM documents_fts f
        JOIN documents d ON d.id = f.docid
        WHERE documents_fts MATCH ?
        ORDER BY d.created_at DESC
        LIMIT ?`

	rows, err := db.db.Query(q, match, limit)
	if err != nil {
		return []models.Document{}, err
	}
	defer rows.Close()

	docs := make([]models.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return []models.Document{}, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (db *Database) DeleteDocument(id int64) error {
	res, err := db.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectRows(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*models.Document, error) {
	var (
		doc     models.Document
		convID  sql.NullInt64
		created int64
	)
	if err := s.Scan(&doc.ID, &doc.Key, &doc.Filename, &doc.ContentType, &doc.Size, &doc.Description, &convID, &created); err != nil {
		return nil, err
	}
	if convID.Valid {
		id := convID.Int64
		doc.ConvID = &id
	}
	doc.CreatedAt = fromNanos(created)
	return &doc, nil
}

// ftsQuery turns free text into a conjunction of prefix terms, dropping
// anything FTS would parse as syntax.
func ftsQuery(query string) string {
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, w := range words {
		terms = append(terms, strings.ToLower(w)+"*")
	}
	return strings.Join(terms, " ")
}
