package poll

import "time"

// Phase names, in the order a cycle runs them.
const (
	PhaseOngoing   = "ongoing"
	PhaseAvailable = "available"
	PhaseMail      = "mail"
)

type PhaseStatus struct {
	LastRunAt time.Time `json:"last_run_at"`
	LastOkAt  time.Time `json:"last_ok_at"`
	LastError string    `json:"last_error"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
}

type Status struct {
	StartedAt time.Time              `json:"started_at"`
	Cycles    int                    `json:"cycles"`
	Current   string                 `json:"current"` // phase in flight, "" while sleeping
	Phases    map[string]PhaseStatus `json:"phases"`
}

func (s Status) clone() Status {
	out := s
	out.Phases = make(map[string]PhaseStatus, len(s.Phases))
	for k, v := range s.Phases {
		out.Phases[k] = v
	}
	return out
}
