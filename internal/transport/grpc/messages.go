package grpc

import "spadesk/backend/internal/service/availability"

type GetAvailableSlotsRequest struct {
	Date string `json:"date"`
}

type GetAvailableSlotsResponse struct {
	Date  string                  `json:"date"`
	Slots []availability.TimeSlot `json:"slots"`
}

type GetAvailableDatesRequest struct {
	StartDate string `json:"startDate"`
	Days      int    `json:"days"`
}

type GetAvailableDatesResponse struct {
	Dates []string `json:"dates"`
}

type CreateBookingRequest struct {
	Date        string `json:"date"`
	StartTime   string `json:"startTime"`
	TherapistID string `json:"therapistId,omitempty"`
	ClientName  string `json:"clientName"`
	ClientPhone string `json:"clientPhone,omitempty"`
	ClientEmail string `json:"clientEmail,omitempty"`
	ServiceName string `json:"serviceName,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type Booking struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime,omitempty"`
	TherapistID string `json:"therapistId,omitempty"`
	Status      string `json:"status"`
	ClientName  string `json:"clientName"`
	ServiceName string `json:"serviceName,omitempty"`
}

type CreateBookingResponse struct {
	Booking Booking `json:"booking"`
}
