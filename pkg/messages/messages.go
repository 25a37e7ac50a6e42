// Package messages defines the typed messages exchanged between actors and the
// replies delivered back to requesters.
package messages

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a message type.
type Kind string

const (
	KindStartProcess      Kind = "start_process"
	KindInitializeSubject Kind = "initialize_subject"
	KindAdvanceSubject    Kind = "advance_subject"
	KindCheckCompletion   Kind = "check_completion"
)

// Kinds lists every message kind known to the engine.
func Kinds() []Kind {
	return []Kind{KindStartProcess, KindInitializeSubject, KindAdvanceSubject, KindCheckCompletion}
}

// Address names the actor that owns a message.
type Address string

const (
	processModelPrefix    = "process-model/"
	processInstancePrefix = "process/"
	subjectPrefix         = "subject/"
)

// ProcessModelAddress is the actor that starts instances of a model.
func ProcessModelAddress(id int64) Address {
	return Address(processModelPrefix + strconv.FormatInt(id, 10))
}

// ProcessAddress is the actor that serializes work on a process instance.
func ProcessAddress(id int64) Address {
	return Address(processInstancePrefix + strconv.FormatInt(id, 10))
}

// SubjectAddress is the actor that serializes work on a subject.
func SubjectAddress(id int64) Address {
	return Address(subjectPrefix + strconv.FormatInt(id, 10))
}

// ParseAddress splits an address into its prefix and numeric id.
func ParseAddress(address Address) (string, int64, error) {
	prefix, rawID, ok := strings.Cut(string(address), "/")
	if !ok || prefix == "" {
		return "", 0, fmt.Errorf("invalid address %q", address)
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", address, err)
	}

	return prefix, id, nil
}

// Message is implemented by every engine message.
type Message interface {
	Kind() Kind
	// Address names the actor that must process the message.
	Address() Address
}

// StartProcess creates a new instance of a released process model.
type StartProcess struct {
	ProcessModelID int64  `json:"process_model_id"`
	StartUserID    string `json:"start_user_id"`
}

func (StartProcess) Kind() Kind         { return KindStartProcess }
func (m StartProcess) Address() Address { return ProcessModelAddress(m.ProcessModelID) }

// InitializeSubject places a subject in its start state.
type InitializeSubject struct {
	ProcessInstanceID int64 `json:"process_instance_id"`
	SubjectID         int64 `json:"subject_id"`
}

func (InitializeSubject) Kind() Kind         { return KindInitializeSubject }
func (m InitializeSubject) Address() Address { return SubjectAddress(m.SubjectID) }

// AdvanceSubject moves a subject along one transition of its state machine.
type AdvanceSubject struct {
	ProcessInstanceID int64 `json:"process_instance_id"`
	SubjectID         int64 `json:"subject_id"`
	ToStateID         int64 `json:"to_state_id"`
}

func (AdvanceSubject) Kind() Kind         { return KindAdvanceSubject }
func (m AdvanceSubject) Address() Address { return SubjectAddress(m.SubjectID) }

// CheckCompletion asks the process actor whether the instance is complete.
type CheckCompletion struct {
	ProcessInstanceID int64 `json:"process_instance_id"`
}

func (CheckCompletion) Kind() Kind         { return KindCheckCompletion }
func (m CheckCompletion) Address() Address { return ProcessAddress(m.ProcessInstanceID) }
