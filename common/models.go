package common

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// SessionStatus is the lifecycle state of a Session. The zero value is
// Queued. Use the ESessionStatus namespace to obtain symbols.
type SessionStatus uint32

var ESessionStatus SessionStatus

func (SessionStatus) Queued() SessionStatus     { return SessionStatus(0) }
func (SessionStatus) Processing() SessionStatus { return SessionStatus(1) }
func (SessionStatus) Completed() SessionStatus  { return SessionStatus(2) }
func (SessionStatus) Failed() SessionStatus     { return SessionStatus(3) }
func (SessionStatus) Cancelled() SessionStatus  { return SessionStatus(4) }

func (s SessionStatus) String() string {
	if name := enums.enumString(s, reflect.TypeOf(s)); name != "" {
		return name
	}
	return fmt.Sprintf("SessionStatus(%d)", uint32(s))
}

func (s *SessionStatus) Parse(str string) error {
	v, err := enums.enumParse(reflect.TypeOf(s), str)
	if err != nil {
		return err
	}
	*s = v.(SessionStatus)
	return nil
}

func (s SessionStatus) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *SessionStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	return s.Parse(str)
}

// IsTerminal reports whether the status admits no further transitions.
func (s SessionStatus) IsTerminal() bool {
	return s == ESessionStatus.Completed() || s == ESessionStatus.Failed() || s == ESessionStatus.Cancelled()
}

// Stage is a position in the fixed seven-stage pipeline plus the two
// terminal pseudo-stages. Stage order is significant: Order gives the
// index used to reject backward transitions.
type Stage uint32

var EStage Stage

func (Stage) Initializing() Stage   { return Stage(0) }
func (Stage) Researching() Stage    { return Stage(1) }
func (Stage) Scripting() Stage      { return Stage(2) }
func (Stage) AssetSourcing() Stage  { return Stage(3) }
func (Stage) AudioGeneration() Stage { return Stage(4) }
func (Stage) VideoAssembly() Stage  { return Stage(5) }
func (Stage) Finalizing() Stage     { return Stage(6) }
func (Stage) Completed() Stage      { return Stage(7) }
func (Stage) Failed() Stage         { return Stage(8) }

func (s Stage) String() string {
	if name := enums.enumString(s, reflect.TypeOf(s)); name != "" {
		return name
	}
	return fmt.Sprintf("Stage(%d)", uint32(s))
}

func (s *Stage) Parse(str string) error {
	v, err := enums.enumParse(reflect.TypeOf(s), str)
	if err != nil {
		return err
	}
	*s = v.(Stage)
	return nil
}

func (s Stage) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *Stage) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	return s.Parse(str)
}

// PipelineStages is the fixed, ordered sequence of real work stages (the
// two terminal pseudo-stages Completed/Failed are not part of it).
var PipelineStages = []Stage{
	EStage.Initializing(),
	EStage.Researching(),
	EStage.Scripting(),
	EStage.AssetSourcing(),
	EStage.AudioGeneration(),
	EStage.VideoAssembly(),
	EStage.Finalizing(),
}

// Order returns the pipeline position of s, or -1 if s is not an ordered
// pipeline stage (i.e. it is Completed or Failed).
func (s Stage) Order() int {
	for i, st := range PipelineStages {
		if st == s {
			return i
		}
	}
	return -1
}

// Priority is queueing priority; lower values are serviced first.
type Priority uint32

var EPriority Priority

func (Priority) Urgent() Priority { return Priority(0) }
func (Priority) High() Priority   { return Priority(1) }
func (Priority) Normal() Priority { return Priority(2) }
func (Priority) Low() Priority    { return Priority(3) }

func (p Priority) String() string {
	if name := enums.enumString(p, reflect.TypeOf(p)); name != "" {
		return name
	}
	return fmt.Sprintf("Priority(%d)", uint32(p))
}

func (p *Priority) Parse(str string) error {
	v, err := enums.enumParse(reflect.TypeOf(p), str)
	if err != nil {
		return err
	}
	*p = v.(Priority)
	return nil
}

func (p Priority) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }

func (p *Priority) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	return p.Parse(str)
}

// QualityTier affects both the processing-time estimate and (conceptually)
// downstream agent fidelity; the core does not interpret it beyond the
// estimate multiplier in processor.EstimateDuration.
type QualityTier uint32

var EQualityTier QualityTier

func (QualityTier) Low() QualityTier    { return QualityTier(0) }
func (QualityTier) Medium() QualityTier { return QualityTier(1) }
func (QualityTier) High() QualityTier   { return QualityTier(2) }
func (QualityTier) Ultra() QualityTier  { return QualityTier(3) }

func (q QualityTier) String() string {
	if name := enums.enumString(q, reflect.TypeOf(q)); name != "" {
		return name
	}
	return fmt.Sprintf("QualityTier(%d)", uint32(q))
}

func (q *QualityTier) Parse(str string) error {
	v, err := enums.enumParse(reflect.TypeOf(q), str)
	if err != nil {
		return err
	}
	*q = v.(QualityTier)
	return nil
}

func (q QualityTier) MarshalJSON() ([]byte, error) { return json.Marshal(q.String()) }

func (q *QualityTier) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	return q.Parse(str)
}

// Multiplier is the quality_multiplier term in the processing-time estimate.
func (q QualityTier) Multiplier() float64 {
	switch q {
	case EQualityTier.Low():
		return 0.5
	case EQualityTier.High():
		return 1.5
	case EQualityTier.Ultra():
		return 2.0
	default:
		return 1.0
	}
}
