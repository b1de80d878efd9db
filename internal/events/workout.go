// Package events defines the payloads written to the outbox and consumed
// from the workout events topic.
package events

import "time"

// Event types carried in the event_type header.
const (
	TypeFavoriteAdded   = "favorite.added"
	TypeFavoriteRemoved = "favorite.removed"
	TypeWorkoutDeleted  = "workout.deleted"
)

// AggregateWorkout is the aggregate type recorded for every workout event.
const AggregateWorkout = "workout"

// FavoriteAdded is emitted when a user favorites a workout.
type FavoriteAdded struct {
	FavoriteID string    `json:"favorite_id"`
	UserID     string    `json:"user_id"`
	WorkoutID  string    `json:"workout_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// FavoriteRemoved is emitted when a user removes a favorite.
type FavoriteRemoved struct {
	FavoriteID string    `json:"favorite_id"`
	UserID     string    `json:"user_id"`
	WorkoutID  string    `json:"workout_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WorkoutDeleted is emitted when an owner deletes a workout; its favorites
// and exercises are gone with it.
type WorkoutDeleted struct {
	WorkoutID  string    `json:"workout_id"`
	OwnerID    string    `json:"owner_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DedupeKey identifies one logical event across redeliveries.
func DedupeKey(entityID, eventType string) string {
	return entityID + ":" + eventType
}

// Known reports whether eventType is one the consumers understand.
func Known(eventType string) bool {
	switch eventType {
	case TypeFavoriteAdded, TypeFavoriteRemoved, TypeWorkoutDeleted:
		return true
	}
	return false
}
