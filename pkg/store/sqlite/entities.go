package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/civicsync/civicsync/pkg/domain"
)

// PostRepository implements store.PostRepository over posts.
type PostRepository struct{ s *Store }

func NewPostRepository(s *Store) *PostRepository { return &PostRepository{s: s} }

func (r *PostRepository) CreatePost(ctx context.Context, p domain.Post) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = domain.PostStatusPendingApproval
	}
	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO posts (id, website_id, title, description, status, revision_of_post_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.WebsiteID, p.Title, p.Description, p.Status, p.RevisionOfPostID)
	return err
}

func (r *PostRepository) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT id, website_id, title, description, status, revision_of_post_id, created_at, updated_at
		FROM posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *PostRepository) ListPostsByWebsite(ctx context.Context, websiteID string) ([]domain.Post, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT id, website_id, title, description, status, revision_of_post_id, created_at, updated_at
		FROM posts WHERE website_id = ? AND revision_of_post_id IS NULL`, websiteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

func (r *PostRepository) UpdatePostStatus(ctx context.Context, id string, status domain.PostStatus) error {
	_, err := r.s.db.ExecContext(ctx, `
		UPDATE posts SET status = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`, status, id)
	return err
}

func (r *PostRepository) FindRevisionForPost(ctx context.Context, postID string) (*domain.Post, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT id, website_id, title, description, status, revision_of_post_id, created_at, updated_at
		FROM posts WHERE revision_of_post_id = ? ORDER BY created_at DESC LIMIT 1`, postID)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *PostRepository) ReplaceRevisionContent(ctx context.Context, revisionID, title, description string) error {
	_, err := r.s.db.ExecContext(ctx, `
		UPDATE posts SET title = ?, description = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`,
		title, description, revisionID)
	return err
}

func (r *PostRepository) DeletePost(ctx context.Context, id string) error {
	_, err := r.s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	return err
}

func scanPost(row scannable) (*domain.Post, error) {
	var p domain.Post
	var revisionOf sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.WebsiteID, &p.Title, &p.Description, &p.Status, &revisionOf, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if revisionOf.Valid {
		p.RevisionOfPostID = &revisionOf.String
	}
	p.CreatedAt = mustParseTime(createdAt)
	p.UpdatedAt = mustParseTime(updatedAt)
	return &p, nil
}

// NoteRepository implements store.NoteRepository over notes.
type NoteRepository struct{ s *Store }

func NewNoteRepository(s *Store) *NoteRepository { return &NoteRepository{s: s} }

func (r *NoteRepository) CreateNote(ctx context.Context, n domain.Note) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = domain.PostStatusPendingApproval
	}
	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO notes (id, website_id, post_id, body, status) VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.WebsiteID, n.PostID, n.Body, n.Status)
	return err
}

func (r *NoteRepository) DeleteNote(ctx context.Context, id string) error {
	_, err := r.s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	return err
}
