// Package repository holds the relational and document stores behind the
// service layer.
package repository

import (
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ErrVersionConflict is returned by ReplaceDocument when the stored version
// no longer matches the one the caller read.
var ErrVersionConflict = errors.New("wave version conflict")

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func clampPage(limit, offset int) (int, int) {
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	return limit, max(offset, 0)
}

// isDuplicate reports a unique violation from either store. Postgres errors
// are matched on SQLSTATE 23505 since the driver error is not translated.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || mongo.IsDuplicateKeyError(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}

// duplicateColumn names which of columns a unique violation hit, judged by
// the constraint name in the driver message. It returns "" when unsure.
func duplicateColumn(err error, columns ...string) string {
	msg := err.Error()
	const marker = `constraint "`
	i := strings.Index(msg, marker)
	if i < 0 {
		return ""
	}
	name := msg[i+len(marker):]
	if j := strings.IndexByte(name, '"'); j >= 0 {
		name = name[:j]
	}
	for _, col := range columns {
		if strings.Contains(name, col) {
			return col
		}
	}
	return ""
}
