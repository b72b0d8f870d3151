// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.


// Package changefeed publishes imported resource changes as events. A
// single leader polls the change table, maps each page to events, hands
// them to a Sink and then advances a persisted watermark.
package changefeed

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cardinalhq/fhirimport/internal/sqlstore"
)

// Event types, keyed by the change type stored with each record.
const (
	EventTypeCreated = "Microsoft.HealthcareApis.FhirResourceCreated"
	EventTypeUpdated = "Microsoft.HealthcareApis.FhirResourceUpdated"
	EventTypeDeleted = "Microsoft.HealthcareApis.FhirResourceDeleted"
)

var eventTypes = map[string]string{
	"Creation": EventTypeCreated,
	"Update":   EventTypeUpdated,
	"Deletion": EventTypeDeleted,
}

// Event follows the Event Grid event schema.
type Event struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic,omitempty"`
	Subject     string    `json:"subject"`
	EventType   string    `json:"eventType"`
	EventTime   time.Time `json:"eventTime"`
	DataVersion string    `json:"dataVersion"`
	Data        EventData `json:"data"`
}

type EventData struct {
	ResourceType        string `json:"resourceType"`
	ResourceFhirAccount string `json:"resourceFhirAccount"`
	ResourceFhirID      string `json:"resourceFhirId"`
	ResourceVersionID   string `json:"resourceVersionId"`
}

// NewEvent maps a change record. It fails for unknown change types.
func NewEvent(rec sqlstore.ChangeRecord, topic, account string) (Event, error) {
	eventType, ok := eventTypes[rec.ChangeType]
	if !ok {
		return Event{}, fmt.Errorf("change %d: unknown change type %q", rec.ID, rec.ChangeType)
	}
	return Event{
		ID:          strconv.FormatInt(rec.ID, 10),
		Topic:       topic,
		Subject:     account + "/" + rec.ResourceType + "/" + rec.ResourceID,
		EventType:   eventType,
		EventTime:   rec.EventTime.UTC(),
		DataVersion: rec.ResourceVersion,
		Data: EventData{
			ResourceType:        rec.ResourceType,
			ResourceFhirAccount: account,
			ResourceFhirID:      rec.ResourceID,
			ResourceVersionID:   rec.ResourceVersion,
		},
	}, nil
}
