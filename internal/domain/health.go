package domain

// ============================================================
// Health & Stats API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// OperationStats is returned by GET /api/admin/stats.
type OperationStats struct {
	TransfersCompleted int64   `json:"transfersCompleted"`
	TransfersRejected  int64   `json:"transfersRejected"`
	BlockRequests      int64   `json:"blockRequests"`
	CardsActivated     int64   `json:"cardsActivated"`
	CardsBlocked       int64   `json:"cardsBlocked"`
	CardsExpired       int64   `json:"cardsExpired"`
	UserCacheHitRate   float64 `json:"userCacheHitRate"`
	TransferRejectRate float64 `json:"transferRejectRate"`
	StoreErrors        int64   `json:"storeErrors"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// Page is a 0-based page request.
type Page struct {
	Number int
	Size   int
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return p.Number * p.Size
}

// PageResponse wraps paginated list results.
type PageResponse[T any] struct {
	Content       []T `json:"content"`
	Page          int `json:"page"`
	Size          int `json:"size"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
}

// NewPageResponse builds a page wrapper; content is never serialized as null.
func NewPageResponse[T any](content []T, p Page, total int) PageResponse[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if p.Size > 0 {
		pages = (total + p.Size - 1) / p.Size
	}
	return PageResponse[T]{
		Content:       content,
		Page:          p.Number,
		Size:          p.Size,
		TotalElements: total,
		TotalPages:    pages,
	}
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
