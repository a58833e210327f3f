package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/likeshelf/likeshelf-server/internal/domain"
	"github.com/likeshelf/likeshelf-server/internal/id"
	"github.com/likeshelf/likeshelf-server/internal/store"
)

// itemColumns is the ordered list of columns selected in item queries.
// Must match the scan order in scanItem.
const itemColumns = `id, owner_id, external_id, content,
	author_handle, author_display_name, author_avatar_url,
	liked_at, like_count, repost_count, reply_count, has_media,
	created_at, updated_at`

// scanItem scans a sql.Row (or sql.Rows via its Scan method) into a domain.LikedItem.
// CategoryIDs are left empty; callers attach them with loadCategoryIDs.
func scanItem(scanner interface{ Scan(dest ...any) error }) (*domain.LikedItem, error) {
	var it domain.LikedItem

	var (
		likedAt   string
		hasMedia  int
		createdAt string
		updatedAt string
	)

	err := scanner.Scan(
		&it.ID,
		&it.OwnerID,
		&it.ExternalID,
		&it.Content,
		&it.Author.Handle,
		&it.Author.DisplayName,
		&it.Author.AvatarURL,
		&likedAt,
		&it.Metrics.LikeCount,
		&it.Metrics.RepostCount,
		&it.Metrics.ReplyCount,
		&hasMedia,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	it.HasMedia = hasMedia != 0
	if it.LikedAt, err = parseTime(likedAt); err != nil {
		return nil, err
	}
	if it.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if it.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	it.CategoryIDs = []string{}

	return &it, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// UpsertItems writes the batch in a single transaction.
func (s *Store) UpsertItems(ctx context.Context, ownerID string, items []*domain.LikedItem) (*store.UpsertResult, error) {
	res := &store.UpsertResult{Items: make([]*domain.LikedItem, 0, len(items))}
	if len(items) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.ExternalID == "" {
			return nil, store.ErrInvalidInput.WithMessage("item has no external id")
		}

		var existingID string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM liked_items WHERE owner_id = ? AND external_id = ?`,
			ownerID, item.ExternalID,
		).Scan(&existingID)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			newID := item.ID
			if newID == "" {
				newID = id.MustGenerate(id.PrefixLike)
			}
			createdAt := item.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now()
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO liked_items (`+itemColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				newID,
				ownerID,
				item.ExternalID,
				item.Content,
				item.Author.Handle,
				item.Author.DisplayName,
				item.Author.AvatarURL,
				formatTime(item.LikedAt),
				item.Metrics.LikeCount,
				item.Metrics.RepostCount,
				item.Metrics.ReplyCount,
				boolToInt(item.HasMedia),
				formatTime(createdAt),
				formatTime(updatedAtOrNow(item.UpdatedAt)),
			)
			if err != nil {
				return nil, fmt.Errorf("insert liked item %s: %w", item.ExternalID, err)
			}
			res.Inserted++
			ids = append(ids, newID)

		case err != nil:
			return nil, fmt.Errorf("lookup liked item %s: %w", item.ExternalID, err)

		default:
			_, err = tx.ExecContext(ctx, `
				UPDATE liked_items SET
					content = ?,
					author_handle = ?,
					author_display_name = ?,
					author_avatar_url = ?,
					liked_at = ?,
					like_count = ?,
					repost_count = ?,
					reply_count = ?,
					has_media = ?,
					updated_at = ?
				WHERE id = ?`,
				item.Content,
				item.Author.Handle,
				item.Author.DisplayName,
				item.Author.AvatarURL,
				formatTime(item.LikedAt),
				item.Metrics.LikeCount,
				item.Metrics.RepostCount,
				item.Metrics.ReplyCount,
				boolToInt(item.HasMedia),
				formatTime(updatedAtOrNow(item.UpdatedAt)),
				existingID,
			)
			if err != nil {
				return nil, fmt.Errorf("update liked item %s: %w", item.ExternalID, err)
			}
			res.Updated++
			ids = append(ids, existingID)
		}
	}

	for _, itemID := range ids {
		stored, err := getItem(ctx, tx, ownerID, itemID)
		if err != nil {
			return nil, fmt.Errorf("reload liked item: %w", err)
		}
		res.Items = append(res.Items, stored)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return res, nil
}

func updatedAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// GetItem retrieves an item owned by ownerID.
// Returns store.ErrNotFound if it does not exist or has another owner.
func (s *Store) GetItem(ctx context.Context, ownerID, itemID string) (*domain.LikedItem, error) {
	return getItem(ctx, s.db, ownerID, itemID)
}

func getItem(ctx context.Context, q querier, ownerID, itemID string) (*domain.LikedItem, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM liked_items WHERE id = ? AND owner_id = ?`, itemID, ownerID)

	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithMessage("liked item not found")
	}
	if err != nil {
		return nil, err
	}

	cats, err := loadCategoryIDs(ctx, q, []string{it.ID})
	if err != nil {
		return nil, err
	}
	if ids := cats[it.ID]; ids != nil {
		it.CategoryIDs = ids
	}
	return it, nil
}

// GetItemsByIDs returns the owner's items among itemIDs in input order.
// Unknown ids are skipped.
func (s *Store) GetItemsByIDs(ctx context.Context, ownerID string, itemIDs []string) ([]*domain.LikedItem, error) {
	if len(itemIDs) == 0 {
		return []*domain.LikedItem{}, nil
	}

	args := make([]any, 0, len(itemIDs)+1)
	args = append(args, ownerID)
	for _, itemID := range itemIDs {
		args = append(args, itemID)
	}

	items, err := s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM liked_items
		WHERE owner_id = ? AND id IN (`+placeholders(len(itemIDs))+`)`, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.LikedItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	ordered := make([]*domain.LikedItem, 0, len(items))
	for _, itemID := range itemIDs {
		if it, ok := byID[itemID]; ok {
			ordered = append(ordered, it)
			delete(byID, itemID)
		}
	}
	return ordered, nil
}

// ListItems returns every item the owner has, ordered by external id.
func (s *Store) ListItems(ctx context.Context, ownerID string) ([]*domain.LikedItem, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM liked_items WHERE owner_id = ? ORDER BY external_id ASC`, ownerID)
}

// ListAllItems returns every stored item across owners. Used to rebuild the search index.
func (s *Store) ListAllItems(ctx context.Context) ([]*domain.LikedItem, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM liked_items ORDER BY owner_id ASC, external_id ASC`)
}

// CountItems returns how many items the owner has.
func (s *Store) CountItems(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM liked_items WHERE owner_id = ?`, ownerID).Scan(&n)
	return n, err
}

// SetItemCategories replaces the item's categories in one transaction.
func (s *Store) SetItemCategories(ctx context.Context, ownerID, itemID string, categoryIDs []string) (*domain.LikedItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM liked_items WHERE id = ? AND owner_id = ?`, itemID, ownerID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithMessage("liked item not found")
	}
	if err != nil {
		return nil, err
	}

	wanted := dedupe(categoryIDs)
	for _, catID := range wanted {
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM categories WHERE id = ? AND owner_id = ?`, catID, ownerID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound.WithMessage(fmt.Sprintf("category %s not found", catID))
		}
		if err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM item_categories WHERE item_id = ?`, itemID); err != nil {
		return nil, fmt.Errorf("delete item_categories: %w", err)
	}

	now := formatTime(time.Now())
	for _, catID := range wanted {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO item_categories (item_id, category_id, created_at)
			VALUES (?, ?, ?)`,
			itemID,
			catID,
			now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert item_category: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE liked_items SET updated_at = ? WHERE id = ?`, now, itemID); err != nil {
		return nil, fmt.Errorf("touch liked item: %w", err)
	}

	item, err := getItem(ctx, tx, ownerID, itemID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return item, nil
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]*domain.LikedItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*domain.LikedItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(items) == 0 {
		return items, nil
	}

	itemIDs := make([]string, len(items))
	for i, it := range items {
		itemIDs[i] = it.ID
	}
	cats, err := loadCategoryIDs(ctx, s.db, itemIDs)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if ids := cats[it.ID]; ids != nil {
			it.CategoryIDs = ids
		}
	}
	return items, nil
}

// loadCategoryIDs maps item id to its category ids, sorted ascending.
// Large id sets are queried in chunks to stay under SQLite's variable limit.
func loadCategoryIDs(ctx context.Context, q querier, itemIDs []string) (map[string][]string, error) {
	const chunkSize = 500

	out := make(map[string][]string, len(itemIDs))
	for chunk := range slices.Chunk(itemIDs, chunkSize) {
		args := make([]any, len(chunk))
		for i, v := range chunk {
			args[i] = v
		}

		rows, err := q.QueryContext(ctx, `
			SELECT item_id, category_id FROM item_categories
			WHERE item_id IN (`+placeholders(len(chunk))+`)
			ORDER BY item_id, category_id`, args...)
		if err != nil {
			return nil, fmt.Errorf("load item categories: %w", err)
		}

		for rows.Next() {
			var itemID, catID string
			if err := rows.Scan(&itemID, &catID); err != nil {
				rows.Close()
				return nil, err
			}
			out[itemID] = append(out[itemID], catID)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// dedupe returns the distinct ids in ascending order.
func dedupe(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
