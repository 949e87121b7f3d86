package transport

import "fastfare/internal/tracking/domain"

type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Sessions int    `json:"sessions"`
	Drivers  int    `json:"drivers"`
}

type DriversResponse struct {
	Drivers []domain.DriverPosition `json:"drivers"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
