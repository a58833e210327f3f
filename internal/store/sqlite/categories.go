package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/likeshelf/likeshelf-server/internal/domain"
	"github.com/likeshelf/likeshelf-server/internal/store"
)

// categoryColumns must match the scan order in scanCategory.
const categoryColumns = `id, owner_id, name, color, created_at, updated_at`

func scanCategory(scanner interface{ Scan(dest ...any) error }) (*domain.Category, error) {
	var c domain.Category

	var (
		createdAt string
		updatedAt string
	)

	err := scanner.Scan(
		&c.ID,
		&c.OwnerID,
		&c.Name,
		&c.Color,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCategory inserts a new category.
// Returns store.ErrAlreadyExists when the owner already has the name.
func (s *Store) CreateCategory(ctx context.Context, c *domain.Category) error {
	return insertCategory(ctx, s.db, c)
}

func insertCategory(ctx context.Context, q querier, c *domain.Category) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.OwnerID,
		c.Name,
		c.Color,
		formatTime(c.CreatedAt),
		formatTime(c.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return store.DuplicateCategory(c.Name).WithCause(err)
	}
	return err
}

// SeedCategories inserts cats when the owner has none, atomically.
func (s *Store) SeedCategories(ctx context.Context, ownerID string, cats []*domain.Category) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM categories WHERE owner_id = ?`, ownerID).Scan(&n); err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	for _, c := range cats {
		c.OwnerID = ownerID
		if err := insertCategory(ctx, tx, c); err != nil {
			return false, fmt.Errorf("seed category %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

// GetCategory retrieves a category owned by ownerID.
func (s *Store) GetCategory(ctx context.Context, ownerID, categoryID string) (*domain.Category, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ? AND owner_id = ?`, categoryID, ownerID)

	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithMessage("category not found")
	}
	return c, err
}

// UpdateCategory saves name and color changes.
func (s *Store) UpdateCategory(ctx context.Context, c *domain.Category) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET name = ?, color = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		c.Name,
		c.Color,
		formatTime(c.UpdatedAt),
		c.ID,
		c.OwnerID,
	)
	if isUniqueViolation(err) {
		return store.DuplicateCategory(c.Name).WithCause(err)
	}
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound.WithMessage("category not found")
	}
	return nil
}

// DeleteCategory removes the category and every membership that references it.
// The membership delete is explicit so the cascade holds even on a connection
// where foreign keys are off.
func (s *Store) DeleteCategory(ctx context.Context, ownerID, categoryID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND owner_id = ?`, categoryID, ownerID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound.WithMessage("category not found")
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM item_categories WHERE category_id = ?`, categoryID); err != nil {
		return fmt.Errorf("delete item_categories: %w", err)
	}

	return tx.Commit()
}

// ListCategories returns the owner's categories ordered by name.
func (s *Store) ListCategories(ctx context.Context, ownerID string) ([]*domain.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE owner_id = ? ORDER BY name ASC, id ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cats := []*domain.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// CategoryStats counts memberships per category in a single read.
func (s *Store) CategoryStats(ctx context.Context, ownerID string) ([]domain.CategoryStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.color, COUNT(ic.item_id)
		FROM categories c
		LEFT JOIN item_categories ic ON ic.category_id = c.id
		WHERE c.owner_id = ?
		GROUP BY c.id, c.name, c.color`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []domain.CategoryStat{}
	for rows.Next() {
		var st domain.CategoryStat
		if err := rows.Scan(&st.ID, &st.Name, &st.Color, &st.Count); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	domain.SortCategoryStats(stats)
	return stats, nil
}
