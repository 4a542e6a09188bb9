package dto

import "time"

type StopResponse struct {
	ID               string  `json:"id"`
	CustomerID       string  `json:"customer_id"`
	SequencePosition int     `json:"sequence_position"`
	Priority         string  `json:"priority"`
	WeightKg         float64 `json:"weight_kg"`
	VolumeM3         float64 `json:"volume_m3"`
	Completed        bool    `json:"completed"`
	Street           string  `json:"street"`
	City             string  `json:"city"`
	State            string  `json:"state"`
}

type RouteResponse struct {
	ID        string         `json:"id"`
	DriverID  *string        `json:"driver_id"`
	VehicleID *string        `json:"vehicle_id"`
	Date      string         `json:"date"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Stops     []StopResponse `json:"stops"`
}

type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
