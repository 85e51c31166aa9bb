package models

import (
	"bitbucket.org/mmdatafocus/trade_backend/utils"
	"gorm.io/gorm"
)

type Cursor interface {
	GetCursor() string
}

type Edge[N Cursor] struct {
	Node   *N     `json:"node"`
	Cursor string `json:"cursor"`
}

type Connection[N Cursor] struct {
	Edges    []Edge[N] `json:"edges"`
	PageInfo *PageInfo `json:"pageInfo"`
}

// FetchPagePureCursor reads limit rows after the cursor, ordered by cursorColumn.
// cmpOperator ">" pages ascending, "<" descending.
func FetchPagePureCursor[T Cursor](dbCtx *gorm.DB,
	limit int,
	after *string,
	cursorColumn string,
	cmpOperator string,
) (*Connection[T], error) {

	nodes := make([]*T, 0)

	if cmpOperator == ">" {
		dbCtx = dbCtx.Order(cursorColumn)
	} else if cmpOperator == "<" {
		dbCtx = dbCtx.Order(cursorColumn + " DESC")
	}

	decodedCursor, err := DecodeCursor(after)
	if err != nil {
		return nil, newValidationError("invalid cursor")
	}
	if decodedCursor != "" {
		dbCtx = dbCtx.Where(cursorColumn+" "+cmpOperator+" ?", decodedCursor)
	}

	if err = dbCtx.Limit(limit + 1).Find(&nodes).Error; err != nil {
		return nil, err
	}

	count := 0
	hasNextPage := false
	edges := make([]Edge[T], 0, len(nodes))
	for _, node := range nodes {
		if count == limit {
			hasNextPage = true
		}
		if count < limit {
			edges = append(edges, Edge[T]{
				Node:   node,
				Cursor: EncodeCursor((*node).GetCursor()),
			})
			count++
		}
	}

	pageInfo := PageInfo{
		HasNextPage: utils.NewFalse(),
	}
	if count > 0 {
		pageInfo = PageInfo{
			StartCursor: edges[0].Cursor,
			EndCursor:   edges[count-1].Cursor,
			HasNextPage: &hasNextPage,
		}
	}

	return &Connection[T]{Edges: edges, PageInfo: &pageInfo}, nil
}
