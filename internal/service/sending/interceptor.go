package sending

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/mailguard/internal/domain"
	"github.com/ignite/mailguard/internal/metrics"
	"github.com/ignite/mailguard/internal/pkg/logger"
	"github.com/ignite/mailguard/internal/service/maillog"
	"github.com/ignite/mailguard/internal/service/validation"
)

// Policy controls what the interceptor rejects and what it logs.
type Policy struct {
	// SkipValidation lets every recipient through without consulting the
	// store. Logging still applies.
	SkipValidation bool
	// BlockInvalid rejects addresses whose own record is invalid, not only
	// blocked ones.
	BlockInvalid bool
	// LogEnabled turns every mail log write on or off.
	LogEnabled bool
	// LogSuccessful and LogFailed gate the AfterSend status updates.
	LogSuccessful bool
	LogFailed     bool
}

// DefaultPolicy logs everything and only rejects blocked addresses.
func DefaultPolicy() Policy {
	return Policy{LogEnabled: true, LogSuccessful: true, LogFailed: true}
}

// Interceptor is consulted before and after every outbound message.
type Interceptor struct {
	validator *validation.Validator
	store     *validation.Store
	logs      *maillog.Service
	policy    Policy
	newID     func() string
}

// NewInterceptor creates an interceptor over the validator's store and the
// mail log.
func NewInterceptor(v *validation.Validator, logs *maillog.Service, policy Policy) *Interceptor {
	return &Interceptor{
		validator: v,
		store:     v.Store(),
		logs:      logs,
		policy:    policy,
		newID:     uuid.NewString,
	}
}

// BeforeSend decides whether env may go out. A rejected recipient gets a
// 550 log row and a *BlockedRecipientError. An accepted one gets a fresh
// X-Message-ID header and a pending log row.
func (i *Interceptor) BeforeSend(ctx context.Context, env *Envelope) error {
	if env.Headers == nil {
		env.Headers = Headers{}
	}
	email := domain.NormalizeEmail(env.To)
	if email == "" {
		return ErrNoRecipients
	}

	if i.policy.SkipValidation {
		metrics.Intercepted.WithLabelValues("allowed").Inc()
		return i.logPending(ctx, env)
	}

	reason, blocked, err := i.rejection(ctx, email)
	if err != nil {
		metrics.Intercepted.WithLabelValues("error").Inc()
		return err
	}
	if blocked {
		metrics.Intercepted.WithLabelValues("blocked").Inc()
		if err := i.logBlocked(ctx, env, reason); err != nil {
			return err
		}
		logger.Info("send blocked", "recipient", email, "reason", reason)
		return &BlockedRecipientError{Email: email, Reason: reason}
	}

	metrics.Intercepted.WithLabelValues("allowed").Inc()
	return i.logPending(ctx, env)
}

// rejection runs validation when nothing is known yet and reports whether
// the recipient must be rejected, with the reason.
func (i *Interceptor) rejection(ctx context.Context, email string) (string, bool, error) {
	valid, err := i.store.IsValid(ctx, email)
	if err != nil {
		return "", false, err
	}
	blocked, err := i.store.IsBlocked(ctx, email)
	if err != nil {
		return "", false, err
	}
	if !valid && !blocked {
		// the verdict lands in the store; only infrastructure errors matter here
		if err := i.validator.Validate(ctx, email); err != nil && !validation.IsValidationError(err) {
			return "", false, fmt.Errorf("validate recipient: %w", err)
		}
	}

	reason, blocked, err := i.store.BlockReason(ctx, email)
	if err != nil {
		return "", false, err
	}
	if blocked {
		if reason == "" {
			reason = domain.ReasonBlocked
		}
		return reason, true, nil
	}

	if i.policy.BlockInvalid {
		rec, err := i.store.Find(ctx, email)
		if err != nil && !errors.Is(err, validation.ErrNotFound) {
			return "", false, err
		}
		if err == nil && rec.Status == domain.StatusInvalid && i.store.Fresh(rec) {
			return rec.Reason, true, nil
		}
	}
	return "", false, nil
}

func (i *Interceptor) logBlocked(ctx context.Context, env *Envelope, reason string) error {
	if !i.policy.LogEnabled {
		return nil
	}
	entry := env.logEntry()
	entry.StatusCode = domain.StringPtr(domain.CodeRejected)
	entry.ErrorMessage = domain.StringPtr(reason)
	entry.MessageID = domain.StringPtr(env.MessageID())

	err := i.logs.CreateWithSource(ctx, entry, env.Source, false)
	if errors.Is(err, maillog.ErrDuplicateMessageID) {
		// the inbound id already belongs to another attempt; keep the audit row without it
		entry.MessageID = nil
		err = i.logs.CreateWithSource(ctx, entry, env.Source, false)
	}
	if err != nil {
		return fmt.Errorf("log blocked send: %w", err)
	}
	return nil
}

func (i *Interceptor) logPending(ctx context.Context, env *Envelope) error {
	id := i.newID()
	env.Headers.Set(domain.HeaderMessageID, id)
	if !i.policy.LogEnabled {
		return nil
	}

	entry := env.logEntry()
	entry.MessageID = &id
	err := i.logs.CreateWithSource(ctx, entry, env.Source, false)
	if errors.Is(err, maillog.ErrDuplicateMessageID) {
		id = i.newID()
		env.Headers.Set(domain.HeaderMessageID, id)
		entry = env.logEntry()
		entry.MessageID = &id
		err = i.logs.CreateWithSource(ctx, entry, env.Source, false)
	}
	if err != nil {
		return fmt.Errorf("log pending send: %w", err)
	}
	return nil
}

// AfterSend records the synchronous transport outcome for correlationID:
// "200" on success, "500" with the error text on failure. A missing id or
// row is logged and ignored.
func (i *Interceptor) AfterSend(ctx context.Context, correlationID string, success bool, sendErr error) error {
	code := domain.CodeOK
	if !success {
		code = domain.CodeServerErr
	}
	metrics.SendOutcomes.WithLabelValues(code).Inc()

	if !i.policy.LogEnabled ||
		(success && !i.policy.LogSuccessful) ||
		(!success && !i.policy.LogFailed) {
		return nil
	}
	if correlationID == "" {
		logger.Warn("after send without correlation id")
		return nil
	}

	var errMsg *string
	if !success {
		msg := "transport failure"
		if sendErr != nil {
			msg = sendErr.Error()
		}
		errMsg = &msg
	}

	err := i.logs.SetStatus(ctx, correlationID, code, errMsg)
	if errors.Is(err, maillog.ErrNotFound) {
		logger.Warn("after send for unknown message", "message_id", correlationID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("record send outcome: %w", err)
	}
	return nil
}
