package types

type ChatRequest struct {
	UserID  string `json:"userId,omitempty"`
	Message string `json:"message"`
}

type ChatResponse struct {
	UserID   string `json:"userId"`
	Response string `json:"response"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// RecordsResponse lists persisted intake records for the sales/support teams.
type RecordsResponse struct {
	Records []RecordView `json:"records"`
}

type RecordView struct {
	ID        int64             `json:"id"`
	UserID    string            `json:"userId"`
	Action    string            `json:"action"`
	Fields    map[string]string `json:"fields"`
	CreatedAt string            `json:"createdAt"`
}
