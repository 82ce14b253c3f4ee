package loom

import "time"

// Work statuses reported on an element's associated background works and on
// its upload. Anything other than complete marks the element as in flight.
const (
	WorkStatusWait     = "wait"
	WorkStatusProgress = "progress"
	WorkStatusComplete = "complete"
)

// ElementWork is the status of one background work attached to an element.
type ElementWork struct {
	Status string `json:"status"`
}

// Element is the scope-dependent view of a deletable object returned by the
// search adapter. It is transient: fetched per batch, never persisted by this
// subsystem.
type Element struct {
	ID           string        `json:"id"`
	InternalID   string        `json:"internal_id"`
	EntityType   string        `json:"entity_type"`
	UpdatedAt    time.Time     `json:"updated_at"`
	UploadStatus string        `json:"uploadStatus,omitempty"`
	Works        []ElementWork `json:"works,omitempty"`
}

// InFlight reports whether the element has an incomplete upload or any
// incomplete associated work. In-flight elements must never be deleted: the
// pending operation protects its target until it completes and the element
// reappears in a later retention window.
func (e *Element) InFlight() bool {
	if e.UploadStatus != "" && e.UploadStatus != WorkStatusComplete {
		return true
	}
	for _, w := range e.Works {
		if w.Status != WorkStatusComplete {
			return true
		}
	}
	return false
}

// ElementEdge pairs an element with its pagination cursor.
type ElementEdge struct {
	Node   *Element `json:"node"`
	Cursor string   `json:"cursor"`
}

// PageInfo is the pagination metadata of a search result. GlobalCount is the
// total number of elements matching the criteria, independent of page size.
type PageInfo struct {
	EndCursor   string `json:"endCursor"`
	HasNextPage bool   `json:"hasNextPage"`
	GlobalCount int    `json:"globalCount"`
}

// ElementConnection is one page of search results.
type ElementConnection struct {
	Edges    []ElementEdge `json:"edges"`
	PageInfo PageInfo      `json:"pageInfo"`
}
