package dto

type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}
