package handlers

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/consultly/call-signaling/internal/models"
	"github.com/consultly/call-signaling/internal/redis"
)

// Call-session records are the booking subsystem's surface: they exist before
// a room is ever joined and outlive it. The relay itself never touches them.

const sessionTTL = 24 * time.Hour

func sessionKey(roomID string) string { return "session:" + roomID }

func appointmentKey(apptID int64) string { return fmt.Sprintf("appointment:%d", apptID) }

// newRoomID derives a room id from the appointment, namespaced so it cannot
// collide with a rescheduled call for the same appointment.
func newRoomID(appointmentID int64) string {
	u := uuid.New()
	return fmt.Sprintf("call_%d_%s", appointmentID, hex.EncodeToString(u[:4]))
}

// CreateSession creates the call-session record for an appointment (requires
// authentication). Idempotent per appointment: a second create returns the
// existing record's room id.
func CreateSession(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req models.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	redisClient := redis.GetClient()
	ctx := redis.GetContext()

	// Existing session for this appointment wins.
	if roomID, err := redisClient.Get(ctx, appointmentKey(req.AppointmentID)).Result(); err == nil {
		c.JSON(http.StatusOK, models.CreateSessionResponse{RoomID: roomID})
		return
	}

	now := time.Now()
	session := models.CallSession{
		RoomID:         newRoomID(req.AppointmentID),
		AppointmentID:  req.AppointmentID,
		PatientID:      req.PatientID,
		PatientName:    req.PatientName,
		ConsultantID:   req.ConsultantID,
		ConsultantName: req.ConsultantName,
		ScheduledStart: req.ScheduledStart,
		ScheduledEnd:   req.ScheduledEnd,
		Status:         "pending",
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	data, err := json.Marshal(session)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}
	if err := redisClient.Set(ctx, sessionKey(session.RoomID), data, sessionTTL).Err(); err != nil {
		log.Error().Err(err).Msg("failed to store session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}
	if err := redisClient.Set(ctx, appointmentKey(req.AppointmentID), session.RoomID, sessionTTL).Err(); err != nil {
		log.Error().Err(err).Msg("failed to store appointment mapping")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	log.Info().
		Str("room", session.RoomID).
		Int64("appointment", req.AppointmentID).
		Interface("user", userID).
		Msg("call session created")

	c.JSON(http.StatusCreated, models.CreateSessionResponse{RoomID: session.RoomID})
}

// GetSession fetches a call-session record by room id (public); clients use
// it to learn their slot and display names before joining.
func GetSession(c *gin.Context) {
	roomID := c.Param("roomId")

	redisClient := redis.GetClient()
	ctx := redis.GetContext()

	data, err := redisClient.Get(ctx, sessionKey(roomID)).Result()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	var session models.CallSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to parse session data"})
		return
	}

	c.JSON(http.StatusOK, session)
}

// UpdateRecording persists the recording artifact for a session (requires
// authentication; consultant side only).
func UpdateRecording(c *gin.Context) {
	userType, _ := c.Get("user_type")
	if userType != "consultant" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the consultant can record a call"})
		return
	}

	roomID := c.Param("roomId")

	var req models.RecordingUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	redisClient := redis.GetClient()
	ctx := redis.GetContext()

	data, err := redisClient.Get(ctx, sessionKey(roomID)).Result()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	var session models.CallSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to parse session data"})
		return
	}

	session.RecordingURL = req.RecordingURL
	session.RecordingSizeBytes = req.RecordingSizeBytes
	session.Status = "completed"
	session.UpdatedAt = time.Now()

	updated, err := json.Marshal(session)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update session"})
		return
	}
	if err := redisClient.Set(ctx, sessionKey(roomID), updated, sessionTTL).Err(); err != nil {
		log.Error().Err(err).Msg("failed to update session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update session"})
		return
	}

	log.Info().Str("room", roomID).Str("url", req.RecordingURL).Msg("recording persisted")

	c.JSON(http.StatusOK, session)
}
