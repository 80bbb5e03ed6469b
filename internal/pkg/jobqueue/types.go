package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeFulfillWebhook JobType = "fulfill_webhook"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job. For webhook fulfillment the ID is
// deterministic (provider:event_id) so redundant enqueue attempts from
// provider redeliveries collapse into one logical job.
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// FulfillWebhookJobPayload carries one provider webhook event through the
// queue. RawPayload holds the exact bytes the provider sent; the worker
// re-verifies nothing but the ledger, so the receiver must have verified
// the signature before enqueueing.
type FulfillWebhookJobPayload struct {
	Provider  string `json:"provider"`
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	RawPayload string `json:"raw_payload"`
	Signature  string `json:"signature"`
}

// ToMap converts the payload to a map for storage
func (p FulfillWebhookJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"provider":    p.Provider,
		"event_id":    p.EventID,
		"event_type":  p.EventType,
		"raw_payload": p.RawPayload,
		"signature":   p.Signature,
	}
}

// FromMap creates a payload from a map
func FulfillWebhookJobPayloadFromMap(data map[string]interface{}) (*FulfillWebhookJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload FulfillWebhookJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// JobID returns the deterministic queue identity for this event.
func (p FulfillWebhookJobPayload) JobID() string {
	return p.Provider + ":" + p.EventID
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// RetryBackoff returns the delay before the next attempt: exponential,
// starting at RetryBackoffBase (1s, 2s, 4s for the default three attempts).
func (j *Job) RetryBackoff() time.Duration {
	backoff := RetryBackoffBase
	for i := 1; i < j.RetryCount; i++ {
		backoff *= 2
	}
	return backoff
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
