package models

import (
	"encoding/base64"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

type PageInfo struct {
	StartCursor string `json:"startCursor"`
	EndCursor   string `json:"endCursor"`
	HasNextPage *bool  `json:"hasNextPage,omitempty"`
}

func DecodeCursor(cursor *string) (string, error) {
	decodedCursor := ""
	if cursor != nil {
		b, err := base64.StdEncoding.DecodeString(*cursor)
		if err != nil {
			return decodedCursor, err
		}
		decodedCursor = string(b)
	}
	return decodedCursor, nil
}

func EncodeCursor(cursor string) string {
	return base64.StdEncoding.EncodeToString([]byte(cursor))
}

// OrderFilter narrows an order listing. Date bounds are inclusive; a DateTo
// at midnight covers the whole day.
type OrderFilter struct {
	DateFrom     *time.Time `form:"date_from" time_format:"2006-01-02"`
	DateTo       *time.Time `form:"date_to" time_format:"2006-01-02"`
	Counterparty *string    `form:"counterparty"`
	Status       *string    `form:"status"`
	OperatorId   *string    `form:"operator_id"`
	Limit        *int       `form:"limit"`
	After        *string    `form:"after"`
}

func (f OrderFilter) pageSize() int {
	if f.Limit == nil || *f.Limit <= 0 {
		return defaultPageSize
	}
	if *f.Limit > maxPageSize {
		return maxPageSize
	}
	return *f.Limit
}

func (f OrderFilter) apply(dbCtx *gorm.DB, dateColumn string, counterpartyColumn string) *gorm.DB {
	if f.DateFrom != nil {
		dbCtx = dbCtx.Where(dateColumn+" >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		to := *f.DateTo
		if to.Hour() == 0 && to.Minute() == 0 && to.Second() == 0 && to.Nanosecond() == 0 {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		dbCtx = dbCtx.Where(dateColumn+" <= ?", to)
	}
	if f.Counterparty != nil && strings.TrimSpace(*f.Counterparty) != "" {
		dbCtx = dbCtx.Where(counterpartyColumn+" LIKE ?", "%"+strings.TrimSpace(*f.Counterparty)+"%")
	}
	if f.Status != nil && *f.Status != "" {
		dbCtx = dbCtx.Where("current_status = ?", *f.Status)
	}
	if f.OperatorId != nil && *f.OperatorId != "" {
		dbCtx = dbCtx.Where("operator_id = ?", *f.OperatorId)
	}
	return dbCtx
}
