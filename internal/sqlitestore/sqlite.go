// Package sqlitestore persists the story corpus in a local SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DeafMist/fin-news-radar/internal/models"
	"github.com/DeafMist/fin-news-radar/internal/store"
)

// fixed-width so that text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a SQLite-backed corpus store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	// sqlite allows one writer; keep every statement on one connection
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS articles (
			id           TEXT PRIMARY KEY,
			seq          INTEGER NOT NULL,
			cluster_id   INTEGER NOT NULL,
			title        TEXT NOT NULL,
			body         TEXT NOT NULL,
			source       TEXT NOT NULL,
			published_at TEXT NOT NULL,
			embedding    TEXT NOT NULL,
			entities     TEXT NOT NULL,
			sentiment    TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_articles_seq ON articles(seq);
		CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at DESC);

		CREATE TABLE IF NOT EXISTS clusters (
			id                INTEGER PRIMARY KEY,
			members           TEXT NOT NULL,
			representative_id TEXT NOT NULL,
			centroid          TEXT NOT NULL,
			updates           INTEGER NOT NULL DEFAULT 0
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveArticle upserts an article.
func (s *Store) SaveArticle(ctx context.Context, a models.Article) error {
	embedding, err := json.Marshal(a.Embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	entities, err := json.Marshal(a.Entities)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}
	sentiment, err := json.Marshal(a.Sentiment)
	if err != nil {
		return fmt.Errorf("marshal sentiment: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO articles (id, seq, cluster_id, title, body, source, published_at, embedding, entities, sentiment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			seq = excluded.seq,
			cluster_id = excluded.cluster_id,
			title = excluded.title,
			body = excluded.body,
			source = excluded.source,
			published_at = excluded.published_at,
			embedding = excluded.embedding,
			entities = excluded.entities,
			sentiment = excluded.sentiment
	`, a.ID, a.Seq, a.ClusterID, a.Title, a.Body, a.Source, formatTime(a.PublishedAt),
		string(embedding), string(entities), string(sentiment))
	if err != nil {
		return fmt.Errorf("upserting article %s: %w", a.ID, err)
	}
	return nil
}

// SaveCluster upserts a cluster.
func (s *Store) SaveCluster(ctx context.Context, c models.StoryCluster) error {
	members, err := json.Marshal(c.Members)
	if err != nil {
		return fmt.Errorf("marshal members: %w", err)
	}
	centroid, err := json.Marshal(c.Centroid)
	if err != nil {
		return fmt.Errorf("marshal centroid: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clusters (id, members, representative_id, centroid, updates)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			members = excluded.members,
			representative_id = excluded.representative_id,
			centroid = excluded.centroid,
			updates = excluded.updates
	`, c.ID, string(members), c.RepresentativeID, string(centroid), c.Updates)
	if err != nil {
		return fmt.Errorf("upserting cluster %d: %w", c.ID, err)
	}
	return nil
}

const articleColumns = `id, seq, cluster_id, title, body, source, published_at, embedding, entities, sentiment`

// LoadArticles returns every article in ingestion order.
func (s *Store) LoadArticles(ctx context.Context) ([]models.Article, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY seq, id`)
	if err != nil {
		return nil, fmt.Errorf("querying articles: %w", err)
	}
	defer rows.Close()

	var out []models.Article
	for rows.Next() {
		a, err := scanArticle(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LoadClusters returns every cluster in ID order.
func (s *Store) LoadClusters(ctx context.Context) ([]models.StoryCluster, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, members, representative_id, centroid, updates FROM clusters ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying clusters: %w", err)
	}
	defer rows.Close()

	var out []models.StoryCluster
	for rows.Next() {
		var (
			c                 models.StoryCluster
			members, centroid string
		)
		if err := rows.Scan(&c.ID, &members, &c.RepresentativeID, &centroid, &c.Updates); err != nil {
			return nil, fmt.Errorf("scanning cluster: %w", err)
		}
		if err := json.Unmarshal([]byte(members), &c.Members); err != nil {
			return nil, fmt.Errorf("decoding members of cluster %d: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(centroid), &c.Centroid); err != nil {
			return nil, fmt.Errorf("decoding centroid of cluster %d: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// likeEscaper makes user text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchArticles runs a LIKE search over title and body. Every query word must
// appear; results are newest first and carry no embedding.
func (s *Store) SearchArticles(ctx context.Context, params store.SearchParams) (*store.SearchResult, error) {
	params = params.Normalize()

	var (
		where []string
		args  []interface{}
	)
	for _, word := range strings.Fields(params.Query) {
		where = append(where, `(title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\')`)
		term := "%" + likeEscaper.Replace(word) + "%"
		args = append(args, term, term)
	}
	if params.Source != "" {
		where = append(where, "source = ?")
		args = append(args, params.Source)
	}
	if params.Company != "" {
		quoted, _ := json.Marshal(params.Company)
		where = append(where, `entities LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(string(quoted))+"%")
	}
	if params.Start != nil {
		where = append(where, "published_at >= ?")
		args = append(args, formatTime(*params.Start))
	}
	if params.End != nil {
		where = append(where, "published_at <= ?")
		args = append(args, formatTime(*params.End))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting articles: %w", err)
	}

	query := `SELECT ` + articleColumns + ` FROM articles` + clause + ` ORDER BY published_at DESC, id LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, params.Size, params.From)...)
	if err != nil {
		return nil, fmt.Errorf("searching articles: %w", err)
	}
	defer rows.Close()

	res := &store.SearchResult{Total: total}
	for rows.Next() {
		a, err := scanArticle(rows, false)
		if err != nil {
			return nil, err
		}
		res.Items = append(res.Items, a)
	}
	return res, rows.Err()
}

// DeleteCluster removes one cluster row.
func (s *Store) DeleteCluster(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM clusters WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting cluster %d: %w", id, err)
	}
	return nil
}

// Purge deletes every article and cluster.
func (s *Store) Purge(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM articles`); err != nil {
		return fmt.Errorf("deleting articles: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM clusters`); err != nil {
		return fmt.Errorf("deleting clusters: %w", err)
	}
	return tx.Commit()
}

func scanArticle(rows *sql.Rows, withEmbedding bool) (models.Article, error) {
	var (
		a                                         models.Article
		published, embedding, entities, sentiment string
	)
	if err := rows.Scan(&a.ID, &a.Seq, &a.ClusterID, &a.Title, &a.Body, &a.Source,
		&published, &embedding, &entities, &sentiment); err != nil {
		return models.Article{}, fmt.Errorf("scanning article: %w", err)
	}

	ts, err := time.Parse(timeLayout, published)
	if err != nil {
		return models.Article{}, fmt.Errorf("parsing published_at of %s: %w", a.ID, err)
	}
	a.PublishedAt = ts

	if withEmbedding {
		if err := json.Unmarshal([]byte(embedding), &a.Embedding); err != nil {
			return models.Article{}, fmt.Errorf("decoding embedding of %s: %w", a.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(entities), &a.Entities); err != nil {
		return models.Article{}, fmt.Errorf("decoding entities of %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(sentiment), &a.Sentiment); err != nil {
		return models.Article{}, fmt.Errorf("decoding sentiment of %s: %w", a.ID, err)
	}
	return a, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
