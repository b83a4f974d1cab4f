package ws

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCatalogLoaded    EventType = "catalog.loaded"
	EventSelectionUpdated EventType = "selection.updated"
	EventImagesUpdated    EventType = "images.updated"
	EventResultCompare    EventType = "result.compare"
	EventResultLiveness   EventType = "result.liveness"
	EventResultAnalyze    EventType = "result.analyze"
	EventNotice           EventType = "notice"
)

type Event struct {
	SessionID uuid.UUID   `json:"-"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}
