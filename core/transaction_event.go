package core

import (
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// EventType names what happened to a transaction.
type EventType string

const (
	EventCheckedOut    EventType = "checked_out"
	EventReturned      EventType = "returned"
	EventRenewed       EventType = "renewed"
	EventHoldPlaced    EventType = "hold_placed"
	EventHoldCancelled EventType = "hold_cancelled"
	EventMarkedOverdue EventType = "marked_overdue"
	EventFeesAdjusted  EventType = "fees_adjusted"
)

// EventPayload is the structured part of an audit row. Only the fields relevant to an event are set.
type EventPayload struct {
	CopyID             string             `json:"copy_id,omitempty"`
	DueDate            *time.Time         `json:"due_date,omitempty"`
	PreviousDueDate    *time.Time         `json:"previous_due_date,omitempty"`
	ReturnDate         *time.Time         `json:"return_date,omitempty"`
	RenewalCount       *int               `json:"renewal_count,omitempty"`
	QueuePosition      *int               `json:"queue_position,omitempty"`
	AvailabilityStatus AvailabilityStatus `json:"availability_status,omitempty"`
	Fees               *Fees              `json:"fees,omitempty"`
	Reason             string             `json:"reason,omitempty"`
	FulfilledHoldID    string             `json:"fulfilled_hold_id,omitempty"`
}

// TransactionEvent is an append-only audit row. It is never updated or deleted.
type TransactionEvent struct {
	ID            string
	LibraryID     uuid.UUID
	TransactionID uuid.UUID
	EventType     EventType
	StaffID       uuid.UUID
	MemberID      uuid.UUID
	OccurredAt    time.Time
	Payload       []byte
}

// BuildTransactionEvent creates the audit row for tx with the encoded payload.
func BuildTransactionEvent(
	id string,
	tx BorrowingTransaction,
	eventType EventType,
	staffID uuid.UUID,
	occurredAt time.Time,
	payload EventPayload,
) (TransactionEvent, error) {
	payloadJSON, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(payload)
	if err != nil {
		return TransactionEvent{}, err
	}

	return TransactionEvent{
		ID:            id,
		LibraryID:     tx.LibraryID,
		TransactionID: tx.ID,
		EventType:     eventType,
		StaffID:       staffID,
		MemberID:      tx.MemberID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       payloadJSON,
	}, nil
}

// DecodePayload unmarshals the payload of e.
func (e TransactionEvent) DecodePayload() (EventPayload, error) {
	var payload EventPayload
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(e.Payload, &payload); err != nil {
		return EventPayload{}, err
	}

	return payload, nil
}
