package domain

import (
	"errors"
	"fmt"
	"time"
)

// Gestational week bounds accepted on session start.
const (
	MinGestationalWeek = 1
	MaxGestationalWeek = 45
)

// SymptomEntry is one recorded answer about a symptom. Entries are never edited
// after they are appended; a re-answer appends a new entry and marks the previous
// one superseded.
type SymptomEntry struct {
	Sequence      int       `json:"sequence"`
	QuestionID    string    `json:"question_id"`
	SymptomID     string    `json:"symptom_id"`
	Severity      Severity  `json:"severity"`
	DurationHours *float64  `json:"duration_hours"`
	FreeText      string    `json:"free_text,omitempty"`
	Superseded    bool      `json:"superseded"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// HasDuration reports whether the duration is known.
func (e SymptomEntry) HasDuration() bool {
	return e.DurationHours != nil
}

// Validate ensures the entry can be appended to a state.
func (e *SymptomEntry) Validate() error {
	if e.SymptomID == "" {
		return NewValidationError("symptom_id", "symptom id is required", e.SymptomID)
	}
	if !e.Severity.IsValid() {
		return NewValidationError("severity", ErrInvalidSeverity.Error(), e.Severity)
	}
	if e.DurationHours != nil && *e.DurationHours < 0 {
		return NewValidationError("duration_hours", "duration cannot be negative", *e.DurationHours)
	}
	return nil
}

// SymptomState is the accumulated answer history of one session.
// Insertion order is question order. At most one entry per symptom is active.
type SymptomState struct {
	SessionID       string         `json:"session_id"`
	UserID          string         `json:"user_id,omitempty"`
	Locale          string         `json:"locale"`
	GestationalWeek *int           `json:"gestational_week"`
	Entries         []SymptomEntry `json:"entries"`
}

// NewSymptomState creates an empty state for a session.
func NewSymptomState(sessionID, userID, locale string, gestationalWeek *int) *SymptomState {
	return &SymptomState{
		SessionID:       sessionID,
		UserID:          userID,
		Locale:          locale,
		GestationalWeek: copyInt(gestationalWeek),
		Entries:         []SymptomEntry{},
	}
}

// ValidateGestationalWeek checks an optional gestational week.
func ValidateGestationalWeek(week *int) error {
	if week == nil {
		return nil
	}
	if *week < MinGestationalWeek || *week > MaxGestationalWeek {
		return NewValidationError("gestational_week",
			fmt.Sprintf("must be between %d and %d", MinGestationalWeek, MaxGestationalWeek), *week)
	}
	return nil
}

// Append records a new entry. Any active entry for the same symptom is marked
// superseded; nothing is removed.
func (s *SymptomState) Append(entry SymptomEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	for i := range s.Entries {
		if s.Entries[i].SymptomID == entry.SymptomID && !s.Entries[i].Superseded {
			s.Entries[i].Superseded = true
		}
	}
	entry.Sequence = len(s.Entries) + 1
	entry.Superseded = false
	entry.DurationHours = copyFloat(entry.DurationHours)
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	s.Entries = append(s.Entries, entry)
	return nil
}

// Active returns the current entry for a symptom.
func (s *SymptomState) Active(symptomID string) (SymptomEntry, bool) {
	for i := len(s.Entries) - 1; i >= 0; i-- {
		if s.Entries[i].SymptomID == symptomID && !s.Entries[i].Superseded {
			return s.Entries[i], true
		}
	}
	return SymptomEntry{}, false
}

// ActiveEntries returns the non-superseded entries in question order.
func (s *SymptomState) ActiveEntries() []SymptomEntry {
	active := make([]SymptomEntry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if !e.Superseded {
			active = append(active, e)
		}
	}
	return active
}

// Answered reports whether a symptom has an active entry.
func (s *SymptomState) Answered(symptomID string) bool {
	_, ok := s.Active(symptomID)
	return ok
}

// Snapshot returns a deep copy that shares no memory with s.
func (s *SymptomState) Snapshot() *SymptomState {
	cp := &SymptomState{
		SessionID:       s.SessionID,
		UserID:          s.UserID,
		Locale:          s.Locale,
		GestationalWeek: copyInt(s.GestationalWeek),
		Entries:         make([]SymptomEntry, len(s.Entries)),
	}
	for i, e := range s.Entries {
		e.DurationHours = copyFloat(e.DurationHours)
		cp.Entries[i] = e
	}
	return cp
}

// Validate checks the structural invariants of a state loaded from storage.
func (s *SymptomState) Validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("symptom state validation: %w", errors.New("session ID is required"))
	}
	if err := ValidateGestationalWeek(s.GestationalWeek); err != nil {
		return fmt.Errorf("symptom state validation: %w", err)
	}
	active := make(map[string]bool)
	for i := range s.Entries {
		if err := s.Entries[i].Validate(); err != nil {
			return fmt.Errorf("symptom state validation: entry %d: %w", i+1, err)
		}
		if s.Entries[i].Superseded {
			continue
		}
		if active[s.Entries[i].SymptomID] {
			return fmt.Errorf("symptom state validation: duplicate active entry for %s", s.Entries[i].SymptomID)
		}
		active[s.Entries[i].SymptomID] = true
	}
	return nil
}

// LogFields returns structured logging fields for audit trails.
func (s *SymptomState) LogFields() map[string]any {
	fields := map[string]any{
		"session_id":     s.SessionID,
		"locale":         s.Locale,
		"entry_count":    len(s.Entries),
		"active_entries": len(s.ActiveEntries()),
	}
	if s.GestationalWeek != nil {
		fields["gestational_week"] = *s.GestationalWeek
	}
	return fields
}

// Float returns a pointer to v, for optional numeric fields.
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v, for optional numeric fields.
func Int(v int) *int {
	return &v
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
