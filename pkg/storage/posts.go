package storage

import (
	"database/sql"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Post statuses.
const (
	PostStatusDraft     = "draft"
	PostStatusPublished = "published"
)

// Post is a content record created by the content actions.
type Post struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	SEOTitle       string    `json:"seoTitle,omitempty"`
	SEODescription string    `json:"seoDescription,omitempty"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// CreatePost inserts a post, minting its ID.
func (s *Store) CreatePost(post *Post) error {
	if post.ID == "" {
		post.ID = strings.ToLower(ulid.Make().String())
	}
	if post.Status == "" {
		post.Status = PostStatusDraft
	}
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now

	query := `
		INSERT INTO posts (id, title, body, seo_title, seo_description, image_url, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		post.ID,
		post.Title,
		post.Body,
		post.SEOTitle,
		post.SEODescription,
		post.ImageURL,
		post.Status,
		now.Format("2006-01-02 15:04:05"),
		now.Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return err
	}

	s.notify(Event{
		Type:      EventPostCreated,
		EntityID:  post.ID,
		Data:      map[string]any{"title": post.Title},
		Timestamp: time.Now(),
	})
	return nil
}

// GetPost retrieves one post by ID.
func (s *Store) GetPost(id string) (*Post, error) {
	query := `
		SELECT id, title, body, seo_title, seo_description, image_url, status, created_at, updated_at
		FROM posts WHERE id = ?
	`
	var post Post
	err := s.db.QueryRow(query, id).Scan(
		&post.ID,
		&post.Title,
		&post.Body,
		&post.SEOTitle,
		&post.SEODescription,
		&post.ImageURL,
		&post.Status,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// UpdatePostSEO sets the SEO fields on an existing post.
func (s *Store) UpdatePostSEO(id, seoTitle, seoDescription string) error {
	query := `
		UPDATE posts SET seo_title = ?, seo_description = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.Exec(query, seoTitle, seoDescription,
		time.Now().UTC().Format("2006-01-02 15:04:05"), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.notify(Event{Type: EventPostUpdated, EntityID: id, Timestamp: time.Now()})
	return nil
}

// SetPostImage records the generated image URL for a post.
func (s *Store) SetPostImage(id, imageURL string) error {
	query := `UPDATE posts SET image_url = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.Exec(query, imageURL,
		time.Now().UTC().Format("2006-01-02 15:04:05"), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.notify(Event{Type: EventPostUpdated, EntityID: id, Timestamp: time.Now()})
	return nil
}

// ListPosts returns the newest posts first.
func (s *Store) ListPosts(limit int) ([]*Post, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, title, body, seo_title, seo_description, image_url, status, created_at, updated_at
		FROM posts ORDER BY created_at DESC, id DESC LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		var post Post
		if err := rows.Scan(
			&post.ID,
			&post.Title,
			&post.Body,
			&post.SEOTitle,
			&post.SEODescription,
			&post.ImageURL,
			&post.Status,
			&post.CreatedAt,
			&post.UpdatedAt,
		); err != nil {
			return nil, err
		}
		posts = append(posts, &post)
	}
	return posts, rows.Err()
}
