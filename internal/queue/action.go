package queue

import (
	"fmt"
	"time"

	"github.com/roach88/syncq/internal/ir"
)

// Collection names.
const (
	CollectionQueue        = "sync_queue"
	CollectionUsers        = "users"
	CollectionDevices      = "devices"
	CollectionReadings     = "device_readings"
	CollectionZones        = "safe_zones"
	CollectionUserActivity = "user_activity"
)

// ActionRecord document fields.
const (
	FieldUserID              = "userId"
	FieldActionType          = "actionType"
	FieldPayload             = "payload"
	FieldDeviceID            = "deviceId"
	FieldPriority            = "priority"
	FieldStatus              = "status"
	FieldRetryCount          = "retryCount"
	FieldEnqueuedAt          = "enqueuedAt"
	FieldLastError           = "lastError"
	FieldCompletedAt         = "completedAt"
	FieldFailedAt            = "failedAt"
	FieldProcessingStartedAt = "processingStartedAt"
	FieldLastRetryAt         = "lastRetryAt"
	FieldResult              = "result"
	FieldSchemaVersion       = "schemaVersion"
)

// DefaultPriority is applied when an action is enqueued with priority 0.
const DefaultPriority = 1

// ActionType selects the dispatcher handler for an action.
type ActionType string

const (
	ActionDeviceReading        ActionType = "device_reading"
	ActionUserPreferenceUpdate ActionType = "user_preference_update"
	ActionDeviceStatusUpdate   ActionType = "device_status_update"
	ActionZoneUpdate           ActionType = "zone_update"
	ActionActivityLog          ActionType = "activity_log"
)

// KnownActionTypes lists every action type with a handler, in a stable order.
func KnownActionTypes() []ActionType {
	return []ActionType{
		ActionDeviceReading,
		ActionUserPreferenceUpdate,
		ActionDeviceStatusUpdate,
		ActionZoneUpdate,
		ActionActivityLog,
	}
}

// Known reports whether t has a handler. Unknown types are still accepted
// at enqueue (older or foreign clients) and fail at dispatch.
func (t ActionType) Known() bool {
	for _, k := range KnownActionTypes() {
		if t == k {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of an ActionRecord.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from -> to is a valid lifecycle edge.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusPending || to == StatusFailed
	default:
		return false
	}
}

// ActionRecord is one queued mutation.
//
// Optional timestamps are zero when unset.
type ActionRecord struct {
	ID                  string
	UserID              string
	ActionType          ActionType
	Payload             ir.Document
	DeviceID            string
	Priority            int
	Status              Status
	RetryCount          int
	EnqueuedAt          time.Time
	LastError           string
	CompletedAt         time.Time
	FailedAt            time.Time
	ProcessingStartedAt time.Time
	LastRetryAt         time.Time
	Result              ir.Document
	SchemaVersion       string
}

// NewAction is the caller-supplied part of an ActionRecord.
type NewAction struct {
	ActionType ActionType
	Payload    ir.Document
	DeviceID   string
	Priority   int
}

// Document converts the record to its stored form.
func (r ActionRecord) Document() ir.Document {
	doc := ir.Document{
		FieldUserID:        r.UserID,
		FieldActionType:    string(r.ActionType),
		FieldPayload:       r.Payload,
		FieldPriority:      int64(r.Priority),
		FieldStatus:        string(r.Status),
		FieldRetryCount:    int64(r.RetryCount),
		FieldEnqueuedAt:    ir.Time(r.EnqueuedAt),
		FieldSchemaVersion: r.SchemaVersion,
	}
	if r.Payload == nil {
		doc[FieldPayload] = ir.Document{}
	}
	if r.DeviceID != "" {
		doc[FieldDeviceID] = r.DeviceID
	}
	if r.LastError != "" {
		doc[FieldLastError] = r.LastError
	}
	if r.Result != nil {
		doc[FieldResult] = r.Result
	}
	putTime(doc, FieldCompletedAt, r.CompletedAt)
	putTime(doc, FieldFailedAt, r.FailedAt)
	putTime(doc, FieldProcessingStartedAt, r.ProcessingStartedAt)
	putTime(doc, FieldLastRetryAt, r.LastRetryAt)
	return doc
}

func putTime(doc ir.Document, field string, t time.Time) {
	if !t.IsZero() {
		doc[field] = ir.Time(t)
	}
}

// RecordFromDocument decodes a stored record.
func RecordFromDocument(id string, doc ir.Document) (ActionRecord, error) {
	r := ActionRecord{
		ID:            id,
		UserID:        doc.String(FieldUserID),
		ActionType:    ActionType(doc.String(FieldActionType)),
		Payload:       doc.Doc(FieldPayload),
		DeviceID:      doc.String(FieldDeviceID),
		Status:        Status(doc.String(FieldStatus)),
		LastError:     doc.String(FieldLastError),
		Result:        doc.Doc(FieldResult),
		SchemaVersion: doc.String(FieldSchemaVersion),
	}
	if r.UserID == "" {
		return ActionRecord{}, fmt.Errorf("record %s: missing %s", id, FieldUserID)
	}
	switch r.Status {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
	default:
		return ActionRecord{}, fmt.Errorf("record %s: invalid status %q", id, r.Status)
	}

	if n, ok := doc.Int64(FieldPriority); ok {
		r.Priority = int(n)
	}
	if n, ok := doc.Int64(FieldRetryCount); ok {
		r.RetryCount = int(n)
	}
	r.EnqueuedAt, _ = doc.Time(FieldEnqueuedAt)
	r.CompletedAt, _ = doc.Time(FieldCompletedAt)
	r.FailedAt, _ = doc.Time(FieldFailedAt)
	r.ProcessingStartedAt, _ = doc.Time(FieldProcessingStartedAt)
	r.LastRetryAt, _ = doc.Time(FieldLastRetryAt)
	return r, nil
}
