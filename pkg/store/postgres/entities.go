package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/civicsync/civicsync/pkg/domain"
)

// PostRepository implements store.PostRepository over posts.
type PostRepository struct{ db querier }

func NewPostRepository(s *Store) *PostRepository { return &PostRepository{db: s.pool} }

// WithTx returns a PostRepository bound to an in-flight transaction, so
// a ProposalHandler can create a draft/revision in the same
// transaction that stages its proposal.
func (r *PostRepository) WithTx(tx pgx.Tx) *PostRepository { return &PostRepository{db: tx} }

func (r *PostRepository) CreatePost(ctx context.Context, p domain.Post) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = domain.PostStatusPendingApproval
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO posts (id, website_id, title, description, status, revision_of_post_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.WebsiteID, p.Title, p.Description, p.Status, p.RevisionOfPostID)
	return err
}

func (r *PostRepository) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, website_id, title, description, status, revision_of_post_id, created_at, updated_at
		FROM posts WHERE id = $1`, id)
	var p domain.Post
	err := row.Scan(&p.ID, &p.WebsiteID, &p.Title, &p.Description, &p.Status, &p.RevisionOfPostID, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostRepository) ListPostsByWebsite(ctx context.Context, websiteID string) ([]domain.Post, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, website_id, title, description, status, revision_of_post_id, created_at, updated_at
		FROM posts WHERE website_id = $1 AND revision_of_post_id IS NULL`, websiteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var p domain.Post
		if err := rows.Scan(&p.ID, &p.WebsiteID, &p.Title, &p.Description, &p.Status, &p.RevisionOfPostID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (r *PostRepository) UpdatePostStatus(ctx context.Context, id string, status domain.PostStatus) error {
	_, err := r.db.Exec(ctx, `UPDATE posts SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

func (r *PostRepository) FindRevisionForPost(ctx context.Context, postID string) (*domain.Post, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, website_id, title, description, status, revision_of_post_id, created_at, updated_at
		FROM posts WHERE revision_of_post_id = $1 ORDER BY created_at DESC LIMIT 1`, postID)
	var p domain.Post
	err := row.Scan(&p.ID, &p.WebsiteID, &p.Title, &p.Description, &p.Status, &p.RevisionOfPostID, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostRepository) ReplaceRevisionContent(ctx context.Context, revisionID, title, description string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE posts SET title = $2, description = $3, updated_at = now() WHERE id = $1`,
		revisionID, title, description)
	return err
}

func (r *PostRepository) DeletePost(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	return err
}

// NoteRepository implements store.NoteRepository over notes.
type NoteRepository struct{ db querier }

func NewNoteRepository(s *Store) *NoteRepository { return &NoteRepository{db: s.pool} }

func (r *NoteRepository) WithTx(tx pgx.Tx) *NoteRepository { return &NoteRepository{db: tx} }

func (r *NoteRepository) CreateNote(ctx context.Context, n domain.Note) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = domain.PostStatusPendingApproval
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO notes (id, website_id, post_id, body, status)
		VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.WebsiteID, n.PostID, n.Body, n.Status)
	return err
}

func (r *NoteRepository) DeleteNote(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM notes WHERE id = $1`, id)
	return err
}
