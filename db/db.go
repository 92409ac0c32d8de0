package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"nofuture/models"
	"strings"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned by lookups that match no row
var ErrNotFound = errors.New("not found")

const writeTimeout = 30 * time.Second

// DB handles all database operations with a shared connection pool
type DB struct {
	db     *sql.DB
	flavor sqlbuilder.Flavor
}

// Open connects to the database behind dsn. Migrations are not applied.
func Open(dsn string) (*DB, error) {
	conn, flavor, err := connection(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return &DB{db: conn, flavor: flavor}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

var authorColumns = []string{
	"authors.id", "authors.platform_id", "authors.name", "authors.username", "authors.avatar_url",
}

func scanAuthor(row scanner) (models.Author, error) {
	var author models.Author
	err := row.Scan(&author.Id, &author.PlatformId, &author.Name, &author.Username, &author.AvatarUrl)
	return author, err
}

// UpsertAuthor inserts the author or refreshes name, handle and avatar of the
// row with the same platform id.
func (db *DB) UpsertAuthor(ctx context.Context, profile models.AuthorProfile) (models.Author, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	ib := db.flavor.NewInsertBuilder()
	ib.InsertInto("authors").
		Cols("platform_id", "name", "username", "avatar_url").
		Values(profile.PlatformId, profile.Name, profile.Username, profile.AvatarUrl)
	ib.SQL("ON CONFLICT (platform_id) DO UPDATE SET name = excluded.name, username = excluded.username, avatar_url = excluded.avatar_url")
	ib.SQL("RETURNING id")

	query, args := ib.Build()

	author := models.Author{
		PlatformId: profile.PlatformId,
		Name:       profile.Name,
		Username:   profile.Username,
		AvatarUrl:  profile.AvatarUrl,
	}
	if err := db.db.QueryRowContext(ctx, query, args...).Scan(&author.Id); err != nil {
		return models.Author{}, fmt.Errorf("upsert error: %w", err)
	}

	log.WithFields(log.Fields{
		"id":         author.Id,
		"platformId": author.PlatformId,
		"username":   author.Username,
	}).Debug("Upserted author")

	return author, nil
}

func (db *DB) ListAuthors(ctx context.Context) ([]models.Author, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(authorColumns...).From("authors").OrderBy("authors.id").Asc()
	return db.queryAuthors(ctx, sb)
}

func (db *DB) GetAuthorByID(ctx context.Context, id int64) (models.Author, error) {
	return db.getAuthor(ctx, "authors.id", id)
}

func (db *DB) GetAuthorByPlatformID(ctx context.Context, platformID int64) (models.Author, error) {
	return db.getAuthor(ctx, "authors.platform_id", platformID)
}

// GetAuthorByUsername matches the handle case-insensitively
func (db *DB) GetAuthorByUsername(ctx context.Context, username string) (models.Author, error) {
	return db.getAuthor(ctx, "LOWER(authors.username)", strings.ToLower(strings.TrimPrefix(username, "@")))
}

func (db *DB) getAuthor(ctx context.Context, field string, value interface{}) (models.Author, error) {
	sb := db.flavor.NewSelectBuilder()
	sb.Select(authorColumns...).From("authors").Where(sb.Equal(field, value)).Limit(1)

	query, args := sb.Build()
	author, err := scanAuthor(db.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Author{}, ErrNotFound
	}
	if err != nil {
		return models.Author{}, fmt.Errorf("query error: %w", err)
	}
	return author, nil
}

func (db *DB) queryAuthors(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]models.Author, error) {
	query, args := sb.Build()
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	authors := []models.Author{}
	for rows.Next() {
		author, err := scanAuthor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		authors = append(authors, author)
	}
	return authors, rows.Err()
}
