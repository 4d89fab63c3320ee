package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/syncq/internal/ir"
	"github.com/roach88/syncq/internal/queue"
	"github.com/roach88/syncq/internal/store"
)

// Fields written by the handlers.
const (
	fieldUserID        = "userId"
	fieldDeviceID      = "deviceId"
	fieldZoneID        = "zoneId"
	fieldReading       = "reading"
	fieldTimestamp     = "timestamp"
	fieldSyncedAt      = "syncedAt"
	fieldActionID      = "actionId"
	fieldLastReading   = "lastReading"
	fieldLastReadingAt = "lastReadingAt"
	fieldLastSeen      = "lastSeen"
	fieldUpdatedAt     = "updatedAt"
	fieldCreatedAt     = "createdAt"
	fieldPreferences   = "preferences"
	fieldStatus        = "status"
	fieldUpdates       = "updates"
	fieldEvent         = "event"
	fieldProperties    = "properties"
	fieldSource        = "source"
)

// ActivitySource tags activity entries written by the queue.
const ActivitySource = "offline_sync"

var (
	errDeviceAccess = errors.New("device not found or access denied")
	errZoneAccess   = errors.New("zone not found or access denied")
)

// deviceReading appends a reading keyed by the action id and refreshes the
// device's last-reading fields.
func (d *Dispatcher) deviceReading(ctx context.Context, rec queue.ActionRecord) (ir.Document, error) {
	deviceID := rec.Payload.String(fieldDeviceID)
	if err := d.checkOwner(ctx, queue.CollectionDevices, deviceID, rec.UserID, errDeviceAccess); err != nil {
		return nil, err
	}

	now := d.clock.Now()
	readAt, err := readingTime(rec.Payload, now)
	if err != nil {
		return nil, err
	}
	reading := rec.Payload[fieldReading]

	b := store.NewBatch()
	b.Set(queue.CollectionReadings, rec.ID, ir.Document{
		fieldDeviceID:  deviceID,
		fieldUserID:    rec.UserID,
		fieldReading:   reading,
		fieldTimestamp: ir.Time(readAt),
		fieldSyncedAt:  ir.Time(now),
		fieldActionID:  rec.ID,
	})
	// A skipped op would not roll back the reading, so this one is
	// unconditional; a device deleted since the check aborts the batch.
	b.Update(queue.CollectionDevices, deviceID, ir.Document{
		fieldLastReading:   reading,
		fieldLastReadingAt: ir.Time(readAt),
		fieldLastSeen:      ir.Time(now),
	})
	if err := d.commitOwned(ctx, b, store.Ref{Collection: queue.CollectionDevices, ID: deviceID}, errDeviceAccess); err != nil {
		return nil, err
	}
	return ir.Document{"readingId": rec.ID}, nil
}

// userPreferenceUpdate shallow-merges the payload preferences into the
// user's preferences. Each key is written on its own path, so replaying
// the same payload leaves the result unchanged.
func (d *Dispatcher) userPreferenceUpdate(ctx context.Context, rec queue.ActionRecord) (ir.Document, error) {
	prefs := rec.Payload.Doc(fieldPreferences)

	user, _, err := store.Lookup(ctx, d.store, queue.CollectionUsers, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("read user: %w", err)
	}
	merged := user.Doc(fieldPreferences).Clone()
	if merged == nil {
		merged = ir.Document{}
	}

	now := d.clock.Now()
	fields := ir.Document{fieldUpdatedAt: ir.Time(now)}
	for k, v := range prefs {
		merged[k] = v
		fields[fieldPreferences+"."+k] = v
	}
	if err := store.Merge(ctx, d.store, queue.CollectionUsers, rec.UserID, fields); err != nil {
		return nil, fmt.Errorf("write preferences: %w", err)
	}
	return ir.Document{"updatedPreferences": merged}, nil
}

// deviceStatusUpdate merges the status fields onto an owned device.
func (d *Dispatcher) deviceStatusUpdate(ctx context.Context, rec queue.ActionRecord) (ir.Document, error) {
	deviceID := rec.Payload.String(fieldDeviceID)
	if err := d.checkOwner(ctx, queue.CollectionDevices, deviceID, rec.UserID, errDeviceAccess); err != nil {
		return nil, err
	}

	status := withoutOwner(rec.Payload.Doc(fieldStatus))
	now := d.clock.Now()
	fields := status.Clone()
	fields[fieldLastSeen] = ir.Time(now)
	fields[fieldUpdatedAt] = ir.Time(now)

	b := store.NewBatch()
	b.UpdateIf(queue.CollectionDevices, deviceID, ir.Document{fieldUserID: rec.UserID}, fields)
	if err := d.commitOwned(ctx, b, store.Ref{Collection: queue.CollectionDevices, ID: deviceID}, errDeviceAccess); err != nil {
		return nil, err
	}
	return ir.Document{"deviceId": deviceID, "updatedStatus": status}, nil
}

// zoneUpdate updates an owned zone, or creates one keyed by the action id
// when no zoneId is given.
func (d *Dispatcher) zoneUpdate(ctx context.Context, rec queue.ActionRecord) (ir.Document, error) {
	updates := withoutOwner(rec.Payload.Doc(fieldUpdates))
	now := d.clock.Now()

	zoneID := rec.Payload.String(fieldZoneID)
	if zoneID != "" {
		if err := d.checkOwner(ctx, queue.CollectionZones, zoneID, rec.UserID, errZoneAccess); err != nil {
			return nil, err
		}
		fields := updates.Clone()
		fields[fieldUpdatedAt] = ir.Time(now)

		b := store.NewBatch()
		b.UpdateIf(queue.CollectionZones, zoneID, ir.Document{fieldUserID: rec.UserID}, fields)
		if err := d.commitOwned(ctx, b, store.Ref{Collection: queue.CollectionZones, ID: zoneID}, errZoneAccess); err != nil {
			return nil, err
		}
		return ir.Document{"zoneId": zoneID, "updates": updates}, nil
	}

	zoneID = rec.ID
	existing, ok, err := store.Lookup(ctx, d.store, queue.CollectionZones, zoneID)
	if err != nil {
		return nil, fmt.Errorf("read zone: %w", err)
	}
	if ok {
		// Replay of a create that already landed.
		if existing.String(fieldUserID) != rec.UserID {
			return nil, errZoneAccess
		}
		return ir.Document{"zoneId": zoneID}, nil
	}

	zone := updates.Clone()
	zone[fieldUserID] = rec.UserID
	zone[fieldCreatedAt] = ir.Time(now)
	if err := store.Set(ctx, d.store, queue.CollectionZones, zoneID, zone); err != nil {
		return nil, fmt.Errorf("create zone: %w", err)
	}
	return ir.Document{"zoneId": zoneID}, nil
}

// activityLog appends an activity entry keyed by the action id.
func (d *Dispatcher) activityLog(ctx context.Context, rec queue.ActionRecord) (ir.Document, error) {
	event := rec.Payload.String(fieldEvent)
	props := rec.Payload.Doc(fieldProperties)
	if props == nil {
		props = ir.Document{}
	}

	err := store.Set(ctx, d.store, queue.CollectionUserActivity, rec.ID, ir.Document{
		fieldUserID:     rec.UserID,
		fieldEvent:      event,
		fieldProperties: props,
		fieldTimestamp:  ir.Time(d.clock.Now()),
		fieldSource:     ActivitySource,
		fieldActionID:   rec.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("write activity: %w", err)
	}
	return ir.Document{"event": event}, nil
}

// checkOwner fails with denied unless collection/id exists and belongs to
// userID.
func (d *Dispatcher) checkOwner(ctx context.Context, collection, id, userID string, denied error) error {
	if id == "" {
		return denied
	}
	doc, ok, err := store.Lookup(ctx, d.store, collection, id)
	if err != nil {
		return fmt.Errorf("read %s: %w", collection, err)
	}
	if !ok || doc.String(fieldUserID) != userID {
		return denied
	}
	return nil
}

// commitOwned commits b and maps a skipped ownership-guarded op on ref to
// denied. The guard catches ownership changes between the check and the
// write.
func (d *Dispatcher) commitOwned(ctx context.Context, b *store.Batch, ref store.Ref, denied error) error {
	res, err := d.store.Commit(ctx, b)
	if errors.Is(err, store.ErrNotFound) {
		return denied
	}
	if err != nil {
		return fmt.Errorf("commit %s: %w", ref.Collection, err)
	}
	if !res.Applied(ref) {
		return denied
	}
	return nil
}

// withoutOwner drops the owner field so an update cannot reassign the
// document.
func withoutOwner(doc ir.Document) ir.Document {
	out := doc.Clone()
	if out == nil {
		return ir.Document{}
	}
	delete(out, fieldUserID)
	return out
}

// readingTime parses the payload timestamp: unix milliseconds or RFC 3339.
// Missing timestamps default to now.
func readingTime(payload ir.Document, now time.Time) (time.Time, error) {
	v, ok := payload[fieldTimestamp]
	if !ok || v == nil {
		return now, nil
	}
	if s, isString := v.(string); isString {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		return t.UTC(), nil
	}
	ms, ok := ir.ToInt64(v)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid timestamp %v", v)
	}
	return time.UnixMilli(ms).UTC(), nil
}
