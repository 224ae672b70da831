package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Job is one entry of the portal's available-jobs feed. It only lives for a
// single scan iteration.
type Job struct {
	TaskID               ID          `json:"idTask"`
	TranslationID        ID          `json:"idTranslation"`
	FeePayable           json.Number `json:"FeePayable"`
	ScheduleCompleteTime string      `json:"scheduleCompleteTime"` // e.g. "/Date(1700000000000)/"
}

// AvailableJobs is the GetAvailableJobs response body.
type AvailableJobs struct {
	FutureAllocatedRevisionJobs []Job `json:"FutureAllocatedRevisionJobs"`
}

// AllocateResult is the AllocateTranslation response body.
type AllocateResult struct {
	IsSuccess bool   `json:"IsSuccess"`
	Message   string `json:"Message,omitempty"`
}

// ID is a portal identifier; the portal emits numbers but strings are accepted.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("portal id: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("portal id %s is not an integer", n)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }
