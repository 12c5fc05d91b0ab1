// Package activitymap converts credential activity events into a
// transport-agnostic shape for downstream activity feeds and audit logs.
package activitymap

import (
	"strings"
	"time"

	credential "github.com/goliatone/go-credential"
)

const (
	// MetadataKeyFromTier stores the source tier for tier transitions.
	MetadataKeyFromTier = "from_tier"
	// MetadataKeyToTier stores the target tier for tier transitions.
	MetadataKeyToTier = "to_tier"
)

const (
	defaultChannel = "credential"
	defaultActorID = "anonymous"

	// every event in this package describes the lifecycle of the active token
	objectType = "token"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Normalizer flattens credential activity events into feed records. The
// zero value publishes on the "credential" channel and attributes events
// from the anonymous tiers, which carry no user, to "anonymous".
type Normalizer struct {
	// Channel overrides the feed channel.
	Channel string
	// ActorFallback overrides the actor id used when the event has no user.
	ActorFallback string
}

// Normalize flattens event with the zero-value Normalizer.
func Normalize(event credential.ActivityEvent) Normalized {
	return Normalizer{}.Normalize(event)
}

func (n Normalizer) Normalize(event credential.ActivityEvent) Normalized {
	userID := strings.TrimSpace(event.UserID)

	actorID := userID
	if actorID == "" {
		if actorID = strings.TrimSpace(n.ActorFallback); actorID == "" {
			actorID = defaultActorID
		}
	}

	channel := strings.TrimSpace(n.Channel)
	if channel == "" {
		channel = defaultChannel
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   userID,
		Channel:    channel,
		Metadata:   flattenMetadata(event),
		OccurredAt: occurredAt,
	}
}

// flattenMetadata copies the event metadata and folds the tier transition
// into it, leaving the source event untouched.
func flattenMetadata(event credential.ActivityEvent) map[string]any {
	if len(event.Metadata) == 0 && event.FromTier == "" && event.ToTier == "" {
		return nil
	}

	out := make(map[string]any, len(event.Metadata)+2)
	for key, value := range event.Metadata {
		out[key] = value
	}

	if event.FromTier != "" {
		out[MetadataKeyFromTier] = string(event.FromTier)
	}
	if event.ToTier != "" {
		out[MetadataKeyToTier] = string(event.ToTier)
	}

	return out
}
