package admission

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"gridsim/internal/constants"
	"gridsim/internal/logger"
	apperrors "gridsim/pkg/errors"
	"gridsim/pkg/metrics"
	"gridsim/pkg/models"
)

// Reply is what the delivery side wants written back to the client. A nil
// Body means an empty response.
type Reply struct {
	Status int
	Body   interface{}
}

// Forwarder is the downstream collaborator that receives accepted requests.
type Forwarder interface {
	DeliverNotification(ctx context.Context, desc *RequestDescriptor, events []models.Event) (Reply, error)
	AcknowledgeValidation(ctx context.Context, desc *RequestDescriptor, code string) (Reply, error)
}

// Outcome is the gate's decision for one request. Rejection is nil when the
// request may proceed.
type Outcome struct {
	Kind           RequestKind
	Events         []models.Event
	ValidationCode string
	Rejection      *apperrors.Error
}

func (o Outcome) Accepted() bool {
	return o.Rejection == nil
}

type Pipeline struct {
	credentials *CredentialValidator
	limits      SizeLimits
	forwarder   Forwarder
	logger      logger.Logger
}

type Option func(*Pipeline)

func WithCredentialValidator(v *CredentialValidator) Option {
	return func(p *Pipeline) { p.credentials = v }
}

func WithSizeLimits(l SizeLimits) Option {
	return func(p *Pipeline) { p.limits = l }
}

func NewPipeline(forwarder Forwarder, log logger.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		credentials: NewCredentialValidator(),
		limits:      DefaultSizeLimits(),
		forwarder:   forwarder,
		logger:      log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate runs the checks for one request and returns the first failure.
// It has no side effects beyond logging and metrics, so it may be called on
// the same descriptor any number of times. A non-nil error means ctx ended
// before a decision was reached.
func (p *Pipeline) Evaluate(ctx context.Context, desc *RequestDescriptor) (Outcome, error) {
	start := time.Now()
	kind := Classify(desc.Method, desc.Path, desc.Query, desc.Header)

	var outcome Outcome
	var err error
	switch kind {
	case Notification:
		outcome, err = p.evaluateNotification(ctx, desc)
	case ValidationHandshake:
		outcome = p.evaluateHandshake(desc)
	default:
		outcome = reject(Unsupported, apperrors.ErrUnsupported)
	}
	if err != nil {
		return Outcome{Kind: kind}, err
	}

	result := "accepted"
	if !outcome.Accepted() {
		result = strings.ToLower(outcome.Rejection.Code)
		p.logger.WarnwCtx(ctx, "Request rejected",
			"kind", kind.String(),
			"status", outcome.Rejection.Status,
			"reason", outcome.Rejection.Message,
		)
	}
	metrics.IncAdmissionRequest(desc.Topic.Name, kind.String(), result)
	metrics.ObserveAdmissionDuration(desc.Topic.Name, kind.String(), time.Since(start))

	return outcome, nil
}

func (p *Pipeline) evaluateHandshake(desc *RequestDescriptor) Outcome {
	code, _ := queryValue(desc.Query, constants.ValidationParam)
	if strings.TrimSpace(code) == "" {
		return reject(ValidationHandshake, apperrors.ErrHandshakeMissing)
	}
	return Outcome{Kind: ValidationHandshake, ValidationCode: code}
}

func (p *Pipeline) evaluateNotification(ctx context.Context, desc *RequestDescriptor) (Outcome, error) {
	if err := p.credentials.Validate(desc.Topic, desc.Header); err != nil {
		return rejectErr(Notification, err), nil
	}

	metrics.ObservePayloadSize(desc.Topic.Name, len(desc.Body))
	p.logger.DebugwCtx(ctx, "Payload received", "bytes", len(desc.Body))
	if err := p.limits.CheckPayload(desc.Body); err != nil {
		return rejectErr(Notification, err), nil
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	events, err := DecodeBatch(desc.Body)
	if err != nil {
		p.logger.DebugwCtx(ctx, "Batch could not be decoded", "error", err)
		return rejectErr(Notification, err), nil
	}

	if err := p.limits.CheckEvents(events); err != nil {
		return rejectErr(Notification, err), nil
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	if err := ValidateBatch(events); err != nil {
		return rejectErr(Notification, err), nil
	}

	return Outcome{Kind: Notification, Events: events}, nil
}

// Serve evaluates the request and, only when it is accepted, forwards it to
// the collaborator exactly once.
func (p *Pipeline) Serve(ctx context.Context, desc *RequestDescriptor) (Outcome, Reply, error) {
	outcome, err := p.Evaluate(ctx, desc)
	if err != nil {
		return outcome, Reply{}, err
	}

	if !outcome.Accepted() {
		return outcome, Reply{
			Status: outcome.Rejection.Status,
			Body:   apperrors.ToErrorResponse(outcome.Rejection),
		}, nil
	}

	var reply Reply
	switch outcome.Kind {
	case Notification:
		reply, err = p.forwarder.DeliverNotification(ctx, desc, outcome.Events)
	case ValidationHandshake:
		reply, err = p.forwarder.AcknowledgeValidation(ctx, desc, outcome.ValidationCode)
	}
	if err != nil {
		return outcome, Reply{
			Status: apperrors.ToHTTPStatus(err),
			Body:   apperrors.ToErrorResponse(err),
		}, nil
	}
	if reply.Status == 0 {
		reply.Status = http.StatusOK
	}

	return outcome, reply, nil
}

func reject(kind RequestKind, rejection *apperrors.Error) Outcome {
	return Outcome{Kind: kind, Rejection: rejection}
}

func rejectErr(kind RequestKind, err error) Outcome {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.ErrInternal.WithCause(err)
	}
	return reject(kind, appErr)
}
