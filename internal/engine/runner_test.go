package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fieldline/automation-engine/internal/engine"
	"github.com/fieldline/automation-engine/internal/models"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentSMS struct {
	To   string
	Body string
}

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

// fakeSender records deliveries and fails on demand.
type fakeSender struct {
	mu     sync.Mutex
	sms    []sentSMS
	emails []sentEmail
	err    error
}

func (f *fakeSender) SendSMS(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sms = append(f.sms, sentSMS{To: to, Body: body})
	return nil
}

func (f *fakeSender) SendEmail(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.emails = append(f.emails, sentEmail{To: to, Subject: subject, Body: body})
	return nil
}

func newRunner(sender *fakeSender) *engine.StepRunner {
	return engine.NewStepRunner(sender, sender, nil, logger.NewForTesting())
}

func TestRunStepsRendersTemplates(t *testing.T) {
	sender := &fakeSender{}
	runner := newRunner(sender)

	execContext := map[string]interface{}{
		"jobs": map[string]interface{}{
			"phone":    "+15550100",
			"customer": "Dana",
			"status":   "completed",
		},
	}

	steps := []models.ActionStep{
		{ID: "s1", Type: models.StepSendSMS, To: "{{jobs.phone}}", Message: "Hi {{jobs.customer}}, job is {{jobs.status}}"},
		{ID: "s2", Type: models.StepSendEmail, To: "office@example.com", Subject: "Job {{jobs.status}}", Message: "Done."},
	}

	results, err := runner.RunSteps(context.Background(), "wf-1", steps, execContext)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Len(t, sender.sms, 1)
	assert.Equal(t, "+15550100", sender.sms[0].To)
	assert.Equal(t, "Hi Dana, job is completed", sender.sms[0].Body)

	require.Len(t, sender.emails, 1)
	assert.Equal(t, "Job completed", sender.emails[0].Subject)

	for _, res := range results {
		assert.Equal(t, models.StepResultSuccess, res.Status)
	}
}

func TestRunStepsFailureAbortsPipeline(t *testing.T) {
	sender := &fakeSender{err: errors.New("provider down")}
	runner := newRunner(sender)

	steps := []models.ActionStep{
		{ID: "s1", Type: models.StepSendSMS, To: "+15550100", Message: "one"},
		{ID: "s2", Type: models.StepSendSMS, To: "+15550100", Message: "two"},
	}

	results, err := runner.RunSteps(context.Background(), "wf-1", steps, nil)
	require.Error(t, err)

	// Only the failed step ran and was recorded.
	require.Len(t, results, 1)
	assert.Equal(t, "s1", results[0].StepID)
	assert.Equal(t, models.StepResultFailed, results[0].Status)
}

func TestRunStepsContinueOnError(t *testing.T) {
	sender := &fakeSender{}
	runner := newRunner(sender)

	// An unknown step type fails; continue_on_error carries the run on.
	steps := []models.ActionStep{
		{ID: "s1", Type: "send-fax", ContinueOnError: true},
		{ID: "s2", Type: models.StepSendSMS, To: "+15550100", Message: "still sent"},
	}

	results, err := runner.RunSteps(context.Background(), "wf-1", steps, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, models.StepResultFailed, results[0].Status)
	assert.Equal(t, models.StepResultSuccess, results[1].Status)
	assert.Len(t, sender.sms, 1)
}

func TestRunStepsBranch(t *testing.T) {
	sender := &fakeSender{}
	runner := newRunner(sender)

	execContext := map[string]interface{}{
		"jobs": map[string]interface{}{"priority": float64(8), "phone": "+15550100"},
	}

	steps := []models.ActionStep{
		{
			ID:   "b1",
			Type: models.StepBranch,
			If:   &models.TriggerCondition{Field: "jobs.priority", Operator: "gte", Value: 5},
			OnTrue: []models.ActionStep{
				{ID: "t1", Type: models.StepSendSMS, To: "{{jobs.phone}}", Message: "urgent"},
			},
			OnFalse: []models.ActionStep{
				{ID: "f1", Type: models.StepSendSMS, To: "{{jobs.phone}}", Message: "routine"},
			},
		},
	}

	results, err := runner.RunSteps(context.Background(), "wf-1", steps, execContext)
	require.NoError(t, err)

	require.Len(t, sender.sms, 1)
	assert.Equal(t, "urgent", sender.sms[0].Body)

	// Branch result plus the nested step result.
	require.Len(t, results, 2)
	assert.Equal(t, "b1", results[0].StepID)
	assert.Equal(t, "branch: true", results[0].Detail)
	assert.Equal(t, "t1", results[1].StepID)
}

func TestRunStepsWait(t *testing.T) {
	runner := newRunner(&fakeSender{})

	steps := []models.ActionStep{
		{ID: "w1", Type: models.StepWait, Delay: "10ms"},
	}

	start := time.Now()
	results, err := runner.RunSteps(context.Background(), "wf-1", steps, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, models.StepResultSuccess, results[0].Status)
}

func TestRunStepsWaitCanceled(t *testing.T) {
	runner := newRunner(&fakeSender{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	steps := []models.ActionStep{
		{ID: "w1", Type: models.StepWait, Delay: "10s"},
	}

	results, err := runner.RunSteps(ctx, "wf-1", steps, nil)
	require.Error(t, err)
	assert.Equal(t, models.StepResultFailed, results[0].Status)
}
