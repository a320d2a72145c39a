package domain

import (
	"github.com/google/uuid"

	dErrors "examdesk/pkg/domain-errors"
)

// Typed identifiers keep tenants, exams, students and the rest from being
// interchangeable at compile time. Every core operation takes the tenant as
// an explicit argument; there is no ambient tenant context anywhere.
type (
	TenantID      uuid.UUID
	ExamID        uuid.UUID
	StudentID     uuid.UUID
	SubjectID     uuid.UUID
	ClassID       uuid.UUID
	RoomID        uuid.UUID
	InvigilatorID uuid.UUID
	ScheduleID    uuid.UUID
	FeeID         uuid.UUID
	PaymentID     uuid.UUID
)

func (id TenantID) String() string      { return uuid.UUID(id).String() }
func (id ExamID) String() string        { return uuid.UUID(id).String() }
func (id StudentID) String() string     { return uuid.UUID(id).String() }
func (id SubjectID) String() string     { return uuid.UUID(id).String() }
func (id ClassID) String() string       { return uuid.UUID(id).String() }
func (id RoomID) String() string        { return uuid.UUID(id).String() }
func (id InvigilatorID) String() string { return uuid.UUID(id).String() }
func (id ScheduleID) String() string    { return uuid.UUID(id).String() }
func (id FeeID) String() string         { return uuid.UUID(id).String() }
func (id PaymentID) String() string     { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ExamID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id StudentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id SubjectID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ClassID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id RoomID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id InvigilatorID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ScheduleID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id FeeID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id PaymentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// parseUUID enforces the shared invariant: IDs must be valid, non-nil UUIDs.
// Trust boundaries (handlers, webhook payloads) parse through these helpers
// so malformed identifiers never reach a store.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id must not be nil")
	}
	return u, nil
}

func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant")
	return TenantID(u), err
}

func ParseExamID(s string) (ExamID, error) {
	u, err := parseUUID(s, "exam")
	return ExamID(u), err
}

func ParseStudentID(s string) (StudentID, error) {
	u, err := parseUUID(s, "student")
	return StudentID(u), err
}

func ParseSubjectID(s string) (SubjectID, error) {
	u, err := parseUUID(s, "subject")
	return SubjectID(u), err
}

func ParseClassID(s string) (ClassID, error) {
	u, err := parseUUID(s, "class")
	return ClassID(u), err
}

func ParseRoomID(s string) (RoomID, error) {
	u, err := parseUUID(s, "room")
	return RoomID(u), err
}

func ParseInvigilatorID(s string) (InvigilatorID, error) {
	u, err := parseUUID(s, "invigilator")
	return InvigilatorID(u), err
}

func ParseScheduleID(s string) (ScheduleID, error) {
	u, err := parseUUID(s, "schedule")
	return ScheduleID(u), err
}

func ParseFeeID(s string) (FeeID, error) {
	u, err := parseUUID(s, "fee")
	return FeeID(u), err
}

func ParsePaymentID(s string) (PaymentID, error) {
	u, err := parseUUID(s, "payment")
	return PaymentID(u), err
}
