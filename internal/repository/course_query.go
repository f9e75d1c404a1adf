package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"coursecatalog/internal/models"

	"gorm.io/gorm"
)

// FilterColumns are the course columns that can be filtered and faceted.
var FilterColumns = []string{"provider", "platform", "difficulty", "skill_level", "hands_on", "track"}

// SearchColumns are matched by the free-text search term.
var SearchColumns = []string{"course_name", "summary", "provider", "platform", "track"}

// CourseFilter narrows a course listing. Search is a lower-cased substring,
// Filters maps a filter column to the lower-cased values it accepts.
type CourseFilter struct {
	Search  string
	Filters map[string][]string
}

// likeEscaper makes LIKE wildcards in a search term match literally. '!'
// is used as the escape character since MySQL treats a backslash in a
// string literal as an escape of its own.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func isFilterColumn(column string) bool {
	for _, c := range FilterColumns {
		if c == column {
			return true
		}
	}
	return false
}

func (f CourseFilter) apply(db *gorm.DB) *gorm.DB {
	if f.Search != "" {
		pattern := "%" + likeEscaper.Replace(f.Search) + "%"
		clauses := make([]string, 0, len(SearchColumns))
		args := make([]interface{}, 0, len(SearchColumns))
		for _, col := range SearchColumns {
			clauses = append(clauses, fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '!'", col))
			args = append(args, pattern)
		}
		db = db.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}

	columns := make([]string, 0, len(f.Filters))
	for col := range f.Filters {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	for _, col := range columns {
		values := f.Filters[col]
		if !isFilterColumn(col) || len(values) == 0 {
			continue
		}
		db = db.Where(fmt.Sprintf("LOWER(TRIM(%s)) IN ?", col), values)
	}
	return db
}

func (r *courseRepository) Count(ctx context.Context, filter CourseFilter) (int64, error) {
	var total int64
	err := filter.apply(r.db.WithContext(ctx).Model(&models.Course{})).
		Count(&total).
		Error
	return total, err
}

func (r *courseRepository) Find(ctx context.Context, filter CourseFilter, offset, limit int) ([]models.Course, error) {
	var courses []models.Course
	err := filter.apply(r.db.WithContext(ctx)).
		Order("LOWER(course_name), id").
		Offset(offset).
		Limit(limit).
		Find(&courses).
		Error
	return courses, err
}

// DistinctValues returns the trimmed, non-empty distinct values of a
// filter column across the whole table, sorted case-insensitively.
func (r *courseRepository) DistinctValues(ctx context.Context, column string) ([]string, error) {
	if !isFilterColumn(column) {
		return nil, fmt.Errorf("%w: %q is not a filterable column", models.ErrInvalidInput, column)
	}

	var raw []string
	err := r.db.WithContext(ctx).
		Model(&models.Course{}).
		Distinct(fmt.Sprintf("TRIM(%s)", column)).
		Where(fmt.Sprintf("TRIM(%s) <> ''", column)).
		Pluck(fmt.Sprintf("TRIM(%s)", column), &raw).
		Error
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(raw))
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		li, lj := strings.ToLower(values[i]), strings.ToLower(values[j])
		if li != lj {
			return li < lj
		}
		return values[i] < values[j]
	})
	return values, nil
}
