package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeGenerateInvoice JobType = "generate_invoice"
	JobTypeSendInvoiceMail JobType = "send_invoice_mail"
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

// Job represents a background job
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

// GenerateInvoiceJobPayload contains the payload for monthly invoice jobs.
// PeriodStart is RFC3339 so the payload survives the JSON round trip intact.
type GenerateInvoiceJobPayload struct {
	UserID      uint   `json:"user_id"`
	PeriodStart string `json:"period_start"`
}

// ToMap converts the payload to a map for storage
func (p GenerateInvoiceJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      p.UserID,
		"period_start": p.PeriodStart,
	}
}

// GenerateInvoiceJobPayloadFromMap creates a payload from a map
func GenerateInvoiceJobPayloadFromMap(data map[string]interface{}) (*GenerateInvoiceJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload GenerateInvoiceJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// SendInvoiceMailJobPayload contains the payload for invoice notification jobs
type SendInvoiceMailJobPayload struct {
	InvoiceID uint `json:"invoice_id"`
	UserID    uint `json:"user_id"`
}

// ToMap converts the payload to a map for storage
func (p SendInvoiceMailJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"invoice_id": p.InvoiceID,
		"user_id":    p.UserID,
	}
}

// SendInvoiceMailJobPayloadFromMap creates a payload from a map
func SendInvoiceMailJobPayloadFromMap(data map[string]interface{}) (*SendInvoiceMailJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload SendInvoiceMailJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
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
