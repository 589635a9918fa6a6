package service

// OutcomeStatus reports how a best-effort secondary effect fared alongside a
// successful primary operation. Degraded means the primary result stands but
// a side effect (e.g. refresh-token persistence) was lost; tests assert on
// this instead of scraping logs.
type OutcomeStatus string

const (
	OutcomeOK       OutcomeStatus = "ok"
	OutcomeDegraded OutcomeStatus = "degraded"
	OutcomeFatal    OutcomeStatus = "fatal"
)

type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

func OK() Outcome { return Outcome{Status: OutcomeOK} }

func Degraded(reason string) Outcome {
	return Outcome{Status: OutcomeDegraded, Reason: reason}
}

func (o Outcome) Degraded() bool { return o.Status == OutcomeDegraded }
