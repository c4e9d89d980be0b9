package flow

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"finitefield.org/crm-console/internal/console/authclient"
	"finitefield.org/crm-console/internal/console/i18n"
	"finitefield.org/crm-console/internal/console/observability"
	"finitefield.org/crm-console/internal/console/session"
	"finitefield.org/crm-console/internal/console/validation"
)

// Message keys for flow-level text.
const (
	MsgLoginRejected  = "login.rejected"
	MsgVerifyRejected = "verify.rejected"
	MsgCodeSent       = "login.code_sent"
)

// Authenticator is the network side of the flow.
type Authenticator interface {
	SubmitCredentials(ctx context.Context, email, password string) error
	VerifyCode(ctx context.Context, email, code string) (*session.User, error)
}

// Result is the outcome of one submission.
type Result struct {
	State State
	// Fields carries per-field validation messages; independent of the flow error.
	Fields validation.FieldErrors
	// Notice is an informational message such as "code sent".
	Notice string
}

// Controller applies submissions to a flow state. It keeps no state of its own.
type Controller struct {
	auth  Authenticator
	newID func() string
}

// Option customises a Controller.
type Option func(*Controller)

// WithAttemptIDs overrides the attempt id generator.
func WithAttemptIDs(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// NewController wires the controller to an Authenticator.
func NewController(auth Authenticator, opts ...Option) *Controller {
	if auth == nil {
		panic("flow: authenticator is required")
	}
	c := &Controller{
		auth:  auth,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitCredentials handles the first step. Only EnteringCredentials accepts it; any
// other state is returned unchanged.
func (c *Controller) SubmitCredentials(ctx context.Context, current State, in validation.CredentialsInput, tr validation.Translator) Result {
	tr = translator(tr)
	logger := observability.FromContext(ctx)
	if current == nil {
		current = Start()
	}

	if _, ok := current.(EnteringCredentials); !ok {
		logger.Debug("credentials ignored outside credentials step", zap.String("state", Name(current)))
		return Result{State: current}
	}

	creds, fields := validation.ValidateCredentials(in, tr)
	if !fields.Empty() {
		return Result{State: current, Fields: fields}
	}

	masked := observability.MaskEmail(creds.Email)
	if err := c.auth.SubmitCredentials(ctx, creds.Email, creds.Password); err != nil {
		logger.Warn("credentials rejected", zap.String("email", masked), zap.Error(err))
		return Result{State: EnteringCredentials{Error: loginMessage(err, tr)}}
	}

	pending := PendingVerification{Email: creds.Email, AttemptID: c.newID()}
	logger.Info("credentials accepted, code dispatched",
		zap.String("email", masked),
		zap.String("attempt_id", pending.AttemptID),
	)
	return Result{
		State:  AwaitingCode{Pending: pending},
		Notice: tr.T(MsgCodeSent),
	}
}

// SubmitCode handles the second step. On success the user is written to store and the
// state becomes Authenticated. Outside AwaitingCode nothing is sent upstream.
func (c *Controller) SubmitCode(ctx context.Context, store session.Store, current State, in validation.CodeInput, tr validation.Translator) Result {
	tr = translator(tr)
	logger := observability.FromContext(ctx)
	if current == nil {
		current = Start()
	}

	awaiting, ok := current.(AwaitingCode)
	if !ok {
		logger.Debug("code ignored outside code step", zap.String("state", Name(current)))
		return Result{State: current}
	}

	code, fields := validation.ValidateCode(in, tr)
	if !fields.Empty() {
		return Result{State: awaiting, Fields: fields}
	}

	logger = logger.With(zap.String("attempt_id", awaiting.Pending.AttemptID))
	user, err := c.auth.VerifyCode(ctx, awaiting.Pending.Email, code.Code)
	if err != nil {
		logger.Warn("code verification rejected",
			zap.String("email", observability.MaskEmail(awaiting.Pending.Email)),
			zap.Error(err),
		)
		return Result{State: AwaitingCode{Pending: awaiting.Pending, Error: tr.T(MsgVerifyRejected)}}
	}

	store.SetCurrentUser(user)
	logger.Info("sign-in completed",
		zap.String("user_id", observability.SanitizeUserID(user.ID)),
		zap.String("role", user.Role),
	)
	return Result{State: Authenticated{User: user.Clone()}}
}

// Name returns a short label for a state, used in logs.
func Name(s State) string {
	switch s.(type) {
	case EnteringCredentials:
		return "entering_credentials"
	case AwaitingCode:
		return "awaiting_code"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

func loginMessage(err error, tr validation.Translator) string {
	var rejected *authclient.RejectedError
	if errors.As(err, &rejected) && rejected.Reason != "" {
		return rejected.Reason
	}
	return tr.T(MsgLoginRejected)
}

func translator(tr validation.Translator) validation.Translator {
	if tr == nil {
		return i18n.Default().Localizer(i18n.DefaultLanguage)
	}
	return tr
}
