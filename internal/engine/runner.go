package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldline/automation-engine/internal/models"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/fieldline/automation-engine/pkg/metrics"
)

// SMSSender delivers a rendered SMS message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// EmailSender delivers a rendered email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// StepRunner executes a workflow's action pipeline against an execution
// context. It is stateless; all per-run state lives in the results slice.
type StepRunner struct {
	smsSender   SMSSender
	emailSender EmailSender
	evaluator   *ConditionEvaluator
	metrics     *metrics.Metrics
	logger      *logger.Logger
}

// NewStepRunner creates a new step runner
func NewStepRunner(sms SMSSender, email EmailSender, m *metrics.Metrics, log *logger.Logger) *StepRunner {
	return &StepRunner{
		smsSender:   sms,
		emailSender: email,
		evaluator:   NewConditionEvaluator(),
		metrics:     m,
		logger:      log,
	}
}

// RunSteps executes the pipeline in order. A step failure aborts the run
// unless the step is marked continue_on_error, in which case the failure is
// recorded and the pipeline moves on. The returned results cover every step
// that ran, including the failing one.
func (r *StepRunner) RunSteps(
	ctx context.Context,
	workflowID string,
	steps []models.ActionStep,
	execContext map[string]interface{},
) (models.StepResults, error) {
	var results models.StepResults

	for _, step := range steps {
		stepResults, err := r.runStep(ctx, workflowID, step, execContext)
		results = append(results, stepResults...)

		if err != nil {
			if step.ContinueOnError {
				r.logger.Warn("Step failed, continuing",
					logger.String("workflow_id", workflowID),
					logger.String("step_id", step.ID),
					logger.Err(err),
				)
				continue
			}
			return results, fmt.Errorf("step %s failed: %w", step.ID, err)
		}
	}

	return results, nil
}

func (r *StepRunner) runStep(
	ctx context.Context,
	workflowID string,
	step models.ActionStep,
	execContext map[string]interface{},
) (models.StepResults, error) {
	start := time.Now()

	var (
		nested models.StepResults
		detail string
		err    error
	)

	switch step.Type {
	case models.StepSendSMS:
		detail, err = r.runSendSMS(ctx, step, execContext)
	case models.StepSendEmail:
		detail, err = r.runSendEmail(ctx, step, execContext)
	case models.StepWait:
		detail, err = r.runWait(ctx, step)
	case models.StepBranch:
		nested, detail, err = r.runBranch(ctx, workflowID, step, execContext)
	default:
		err = fmt.Errorf("unknown step type: %s", step.Type)
	}

	status := models.StepResultSuccess
	if err != nil {
		status = models.StepResultFailed
		detail = err.Error()
	}

	if r.metrics != nil {
		r.metrics.StepDuration.
			WithLabelValues(workflowID, string(step.Type), string(status)).
			Observe(time.Since(start).Seconds())
	}

	results := models.StepResults{{
		StepID: step.ID,
		Type:   step.Type,
		Status: status,
		Detail: detail,
	}}
	return append(results, nested...), err
}

func (r *StepRunner) runSendSMS(ctx context.Context, step models.ActionStep, execContext map[string]interface{}) (string, error) {
	to := ResolveTemplate(step.To, execContext)
	body := ResolveTemplate(step.Message, execContext)

	if err := r.smsSender.SendSMS(ctx, to, body); err != nil {
		return "", fmt.Errorf("send sms to %s: %w", to, err)
	}
	return fmt.Sprintf("sms sent to %s", to), nil
}

func (r *StepRunner) runSendEmail(ctx context.Context, step models.ActionStep, execContext map[string]interface{}) (string, error) {
	to := ResolveTemplate(step.To, execContext)
	subject := ResolveTemplate(step.Subject, execContext)
	body := ResolveTemplate(step.Message, execContext)

	if err := r.emailSender.SendEmail(ctx, to, subject, body); err != nil {
		return "", fmt.Errorf("send email to %s: %w", to, err)
	}
	return fmt.Sprintf("email sent to %s", to), nil
}

// runWait sleeps for the configured delay. Cancellation cuts the wait short
// and fails the step so the run does not record a partial sleep as success.
func (r *StepRunner) runWait(ctx context.Context, step models.ActionStep) (string, error) {
	delay, err := time.ParseDuration(step.Delay)
	if err != nil {
		return "", fmt.Errorf("invalid delay %q: %w", step.Delay, err)
	}

	select {
	case <-time.After(delay):
		return fmt.Sprintf("waited %s", delay), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *StepRunner) runBranch(
	ctx context.Context,
	workflowID string,
	step models.ActionStep,
	execContext map[string]interface{},
) (models.StepResults, string, error) {
	if step.If == nil {
		return nil, "", fmt.Errorf("branch step %s has no predicate", step.ID)
	}

	taken := r.evaluator.Evaluate(*step.If, execContext)

	var branch []models.ActionStep
	var detail string
	if taken {
		branch = step.OnTrue
		detail = "branch: true"
	} else {
		branch = step.OnFalse
		detail = "branch: false"
	}

	results, err := r.RunSteps(ctx, workflowID, branch, execContext)
	return results, detail, err
}
