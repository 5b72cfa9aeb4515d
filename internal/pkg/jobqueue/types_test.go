package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType(t *testing.T) {
	tests := []struct {
		name     string
		jobType  JobType
		expected string
	}{
		{"Generate Invoice", JobTypeGenerateInvoice, "generate_invoice"},
		{"Send Invoice Mail", JobTypeSendInvoiceMail, "send_invoice_mail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.jobType))
		})
	}
}

func TestJob_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		job       *Job
		retryable bool
	}{
		{
			name: "Failed job with retries remaining",
			job: &Job{
				Status:     JobStatusFailed,
				RetryCount: 1,
				MaxRetries: 3,
			},
			retryable: true,
		},
		{
			name: "Failed job with no retries remaining",
			job: &Job{
				Status:     JobStatusFailed,
				RetryCount: 3,
				MaxRetries: 3,
			},
			retryable: false,
		},
		{
			name: "Completed job",
			job: &Job{
				Status:     JobStatusCompleted,
				RetryCount: 1,
				MaxRetries: 3,
			},
			retryable: false,
		},
		{
			name: "Pending job",
			job: &Job{
				Status:     JobStatusPending,
				RetryCount: 0,
				MaxRetries: 3,
			},
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.job.IsRetryable())
		})
	}
}

func TestJob_MarkAsFailed(t *testing.T) {
	job := &Job{
		Status:     JobStatusProcessing,
		RetryCount: 1,
	}

	job.MarkAsFailed("invoice generation failed")

	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "invoice generation failed", job.ErrorMsg)
	assert.Equal(t, 2, job.RetryCount)
}

func TestJob_MarkAsCompleted(t *testing.T) {
	job := &Job{
		Status:   JobStatusProcessing,
		ErrorMsg: "some error",
	}

	job.MarkAsCompleted()

	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)
}

func TestGenerateInvoiceJobPayloadRoundTrip(t *testing.T) {
	original := GenerateInvoiceJobPayload{
		UserID:      42,
		PeriodStart: time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
	}

	data := original.ToMap()
	result, err := GenerateInvoiceJobPayloadFromMap(data)
	require.NoError(t, err)

	assert.Equal(t, &original, result)

	// the wire form is what the processor parses back into a period
	parsed, err := time.Parse(time.RFC3339, result.PeriodStart)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSendInvoiceMailJobPayloadRoundTrip(t *testing.T) {
	original := SendInvoiceMailJobPayload{
		InvoiceID: 7,
		UserID:    42,
	}

	data := original.ToMap()
	result, err := SendInvoiceMailJobPayloadFromMap(data)
	require.NoError(t, err)

	assert.Equal(t, &original, result)
}

func TestGenerateInvoiceJobPayloadFromMap_InvalidData(t *testing.T) {
	data := map[string]interface{}{
		"user_id": make(chan int), // channels can't be marshaled to JSON
	}

	payload, err := GenerateInvoiceJobPayloadFromMap(data)
	assert.Error(t, err)
	assert.Nil(t, payload)
}
