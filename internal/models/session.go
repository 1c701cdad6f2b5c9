package models

import "time"

// CallSession is the record the booking subsystem creates for a scheduled
// call. The relay only ever reads its RoomID; everything else exists for the
// REST surface and for persisting that a recording happened.
type CallSession struct {
	RoomID         string    `json:"roomId"`
	AppointmentID  int64     `json:"appointmentId"`
	PatientID      string    `json:"patientId"`
	PatientName    string    `json:"patientName"`
	ConsultantID   string    `json:"consultantId"`
	ConsultantName string    `json:"consultantName"`
	ScheduledStart time.Time `json:"scheduledStart"`
	ScheduledEnd   time.Time `json:"scheduledEnd"`

	// pending, active, completed, cancelled
	Status string `json:"status"`

	RecordingURL       string `json:"recordingUrl,omitempty"`
	RecordingSizeBytes int64  `json:"recordingSizeBytes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateSessionRequest is the request body for creating a call session.
type CreateSessionRequest struct {
	AppointmentID  int64     `json:"appointmentId" binding:"required"`
	PatientID      string    `json:"patientId" binding:"required"`
	PatientName    string    `json:"patientName" binding:"required"`
	ConsultantID   string    `json:"consultantId" binding:"required"`
	ConsultantName string    `json:"consultantName" binding:"required"`
	ScheduledStart time.Time `json:"scheduledStart" binding:"required"`
	ScheduledEnd   time.Time `json:"scheduledEnd" binding:"required"`
}

// CreateSessionResponse is the response for creating a call session.
type CreateSessionResponse struct {
	RoomID string `json:"roomId"`
}

// RecordingUpdateRequest persists the recording artifact for a session.
type RecordingUpdateRequest struct {
	RecordingURL       string `json:"recordingUrl" binding:"required"`
	RecordingSizeBytes int64  `json:"recordingSizeBytes"`
}
