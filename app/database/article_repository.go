package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lysyi3m/debunkd/app/content"
)

// ArticleRepository archives generated articles. The archive is write-only
// from the worker's point of view; the section cache never reads it back.
type ArticleRepository struct {
	db *DB
}

func NewArticleRepository(db *DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// SaveArticle stores an article, ignoring ids that are already archived.
func (r *ArticleRepository) SaveArticle(ctx context.Context, article content.Article) error {
	body, err := json.Marshal(article.Body)
	if err != nil {
		return fmt.Errorf("failed to encode article body: %w", err)
	}

	createdAt := article.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO articles (
			id, section, headline, title, summary, category,
			body, origin_url, image_url, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, article.ID, article.Section, article.Headline, article.Title, article.Summary, string(article.Category),
		string(body), article.OriginURL, article.ImageURL, createdAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save article: %w", err)
	}

	return nil
}

// GetRecentArticles returns the newest archived articles, optionally limited
// to one section.
func (r *ArticleRepository) GetRecentArticles(ctx context.Context, section string, limit int) ([]content.Article, error) {
	query := `
		SELECT id, section, headline, title, summary, category,
		       body, origin_url, image_url, created_at
		FROM articles`
	args := []any{}

	if section != "" {
		query += ` WHERE section = ?`
		args = append(args, section)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []content.Article
	for rows.Next() {
		var row ArchivedArticle
		var createdAt int64

		if err := rows.Scan(&row.ID, &row.Section, &row.Headline, &row.Title, &row.Summary, &row.Category,
			&row.Body, &row.OriginURL, &row.ImageURL, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		row.CreatedAt = time.UnixMilli(createdAt).UTC()

		article, err := row.toArticle()
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %w", err)
	}

	return articles, nil
}

func (r *ArticleRepository) GetArticleCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return count, nil
}

func (row ArchivedArticle) toArticle() (content.Article, error) {
	var body content.Body
	if err := json.Unmarshal([]byte(row.Body), &body); err != nil {
		return content.Article{}, fmt.Errorf("failed to decode body of article %s: %w", row.ID, err)
	}

	return content.Article{
		ID:        row.ID,
		Section:   row.Section,
		Headline:  row.Headline,
		Title:     row.Title,
		Summary:   row.Summary,
		Category:  content.Category(row.Category),
		Body:      body,
		OriginURL: row.OriginURL,
		ImageURL:  row.ImageURL,
		CreatedAt: row.CreatedAt,
	}, nil
}
