package model

import "time"

// LearningMode is the tagged mode of a tuition assignment.
type LearningMode string

const (
	LearningModeOnline       LearningMode = "Online"
	LearningModeFaceToFace   LearningMode = "Face-to-Face"
	LearningModeHybrid       LearningMode = "Hybrid"
	LearningModeNone         LearningMode = ""
)

// Status is the assignment lifecycle status; see StateMachine for the
// transition graph.
type Status string

const (
	StatusPending Status = "pending"
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
	StatusHidden  Status = "hidden"
	StatusExpired Status = "expired"
	StatusDeleted Status = "deleted"
)

// RateBreakdown captures one tutor-type's rate range parsed from the
// assignment text.
type RateBreakdown struct {
	TutorType  string
	Min        *float64
	Max        *float64
	Currency   string
	Unit       string
	Confidence float64
}

// Rate is the headline rate range, with a raw_text fallback used to detect
// quote-like text that forces Min/Max null.
type Rate struct {
	Min     *float64
	Max     *float64
	RawText string
}

// DayMap is a 7-key map from weekday to a list of "HH:MM-HH:MM" slots. It is
// always fully populated (every weekday present, possibly with an empty
// slice) so callers never need a presence check.
type DayMap map[time.Weekday][]string

// NewDayMap returns a DayMap with all seven weekdays present and empty.
func NewDayMap() DayMap {
	dm := make(DayMap, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		dm[d] = nil
	}
	return dm
}

// TimeAvailability is the fixed output shape of the deterministic time
// parser: explicit and estimated day-maps plus an optional free-text note.
type TimeAvailability struct {
	Explicit DayMap
	Estimated DayMap
	Note     *string
}

// NewTimeAvailability returns a TimeAvailability with both day-maps fully
// populated.
func NewTimeAvailability() TimeAvailability {
	return TimeAvailability{Explicit: NewDayMap(), Estimated: NewDayMap()}
}

// Assignment is the canonical downstream tuition-job record, keyed by
// (AgencyRef, ExternalID).
type Assignment struct {
	AgencyRef             string
	ExternalID            string
	AssignmentCode        string
	AcademicDisplayText   string
	LearningMode          LearningMode
	Addresses             []string
	PostalCodes           []string
	PostalCodesEstimated  []string
	NearestMRT            []string
	LessonSchedule        []string
	StartDate             *time.Time
	TimeAvailability      TimeAvailability
	Rate                  Rate
	AdditionalRemarks     *string
	TutorTypes            []string
	RateBreakdown         []RateBreakdown
	Status                Status
	FreshnessTier         string
	LastSeen              time.Time
	BumpCount             int
}

// BroadcastMessageRef is the back-reference written after a successful
// broadcast send, consulted by the (out-of-scope) expiry sweeper.
type BroadcastMessageRef struct {
	ExternalID      string
	SentChatID      int64
	SentMessageID   int64
	DeletedAt       *time.Time
}
