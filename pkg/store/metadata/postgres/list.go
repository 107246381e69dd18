package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/dittofiles/pkg/files"
)

// orderColumns maps sort keys to SQL expressions. Text columns use the "C"
// collation so ordering is bytewise on the lowercased value, the same order
// files.ListQuery.Compare produces.
var orderColumns = map[files.SortKey]string{
	files.SortByFilename:    `LOWER(filename) COLLATE "C"`,
	files.SortByCreatedAt:   `created_at`,
	files.SortByUpdatedAt:   `updated_at`,
	files.SortBySize:        `size`,
	files.SortByContentType: `LOWER(content_type) COLLATE "C"`,
	files.SortByTag:         `COALESCE(tags[1], '') COLLATE "C"`,
}

// buildListWhere builds the WHERE clause shared by the page and count
// queries.
func buildListWhere(query files.ListQuery) (string, []any) {
	conditions := []string{`status = 'READY'`}
	var args []any

	if query.Scope.Public {
		conditions = append(conditions, `visibility = 'PUBLIC'`)
	} else {
		args = append(args, query.Scope.OwnerID)
		conditions = append(conditions, fmt.Sprintf(`owner_id = $%d`, len(args)))
	}

	if query.Tag != "" {
		args = append(args, query.Tag)
		conditions = append(conditions, fmt.Sprintf(`$%d = ANY(tags)`, len(args)))
	}

	if query.Q != "" {
		args = append(args, strings.ToLower(query.Q))
		conditions = append(conditions, fmt.Sprintf(`strpos(LOWER(filename), $%d) > 0`, len(args)))
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// buildOrderBy returns a whitelisted ORDER BY clause. Ties are broken by id
// ascending regardless of direction.
func buildOrderBy(query files.ListQuery) string {
	column, ok := orderColumns[query.Sort]
	if !ok {
		column = orderColumns[files.SortByCreatedAt]
	}

	dir := "ASC"
	if query.Dir == files.SortDesc {
		dir = "DESC"
	}

	return fmt.Sprintf(`ORDER BY %s %s, id COLLATE "C" ASC`, column, dir)
}

// List returns one page of READY records matching the query.
func (s *PostgresMetadataStore) List(ctx context.Context, query files.ListQuery) (files.Page, error) {
	where, args := buildListWhere(query)

	page := files.Page{Page: query.Page, Size: query.Size, Items: []files.FileRecord{}}

	if err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM files %s`, where), args...,
	).Scan(&page.Total); err != nil {
		return files.Page{}, mapError("count files", err)
	}

	if page.Total == 0 || query.Offset() >= page.Total {
		return page, nil
	}

	n := len(args)
	dataQuery := fmt.Sprintf(`SELECT %s FROM files %s %s LIMIT $%d OFFSET $%d`,
		fileColumns, where, buildOrderBy(query), n+1, n+2)
	args = append(args, query.Size, query.Offset())

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return files.Page{}, mapError("list files", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return files.Page{}, mapError("scan file", err)
		}
		page.Items = append(page.Items, *rec)
	}
	if err := rows.Err(); err != nil {
		return files.Page{}, mapError("list files", err)
	}

	return page, nil
}

// ListStalePending returns PENDING records created before olderThan.
func (s *PostgresMetadataStore) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]files.FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM files
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at ASC, id COLLATE "C" ASC`, fileColumns)
	args := []any{olderThan}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("list stale pending", err)
	}
	defer rows.Close()

	var stale []files.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, mapError("scan file", err)
		}
		stale = append(stale, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list stale pending", err)
	}
	return stale, nil
}
