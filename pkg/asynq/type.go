package asynq

const (
	// SweepTask evaluates every expired, still-open campaign.
	SweepTask = "settlement:sweep:run"
)

type SweepPayload struct {
	JobID       string `json:"job_id"`
	TriggeredBy string `json:"triggered_by"` // scheduler | admin
}
