package dto

// StatsResponse carries the aggregate counters shown on the dashboard and
// polled by the chat client. Absent/zero values are valid: a counter whose
// source is unreachable reports zero rather than failing the request.
type StatsResponse struct {
	ActiveModels  int `json:"active_models"`
	DocCount      int `json:"doc_count"`
	Conversations int `json:"conversations"`
}
