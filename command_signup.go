package credential

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// SignUpMessage is the command-bus payload for registering an account
// through the manager.
type SignUpMessage struct {
	Email      string        `json:"email"`
	Password   string        `json:"password"`
	Profile    SignUpProfile `json:"profile"`
	UseHashid  bool
	OnResponse func(*SignUpResponse)
}

func (e SignUpMessage) Type() string { return "credential.signup" }

// SignUpResponse reports the outcome back to the dispatching caller.
type SignUpResponse struct {
	RecordID            string `json:"record_id" doc:"Deterministic local record identifier."`
	UserID              string `json:"user_id" doc:"Identity provider user id, empty while confirmation is pending."`
	PendingConfirmation bool   `json:"pending_confirmation" doc:"Is the account waiting on a one time confirmation?"`
}

// SignUpHandler executes SignUpMessage against a Manager.
type SignUpHandler struct {
	manager *Manager
}

func NewSignUpHandler(manager *Manager) *SignUpHandler {
	return &SignUpHandler{manager: manager}
}

func (h *SignUpHandler) Execute(ctx context.Context, event SignUpMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during sign up",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SignUpHandler) execute(ctx context.Context, event SignUpMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*30)
	defer cancel()

	recordID := uuid.New()
	if event.UseHashid {
		if id, err := hashid.NewUUID(event.Email); err == nil {
			recordID = id
		}
	}

	if err := h.manager.SignUp(ctx, event.Email, event.Password, event.Profile); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "sign up failed")
	}

	if event.OnResponse != nil {
		resp := &SignUpResponse{
			RecordID:            recordID.String(),
			PendingConfirmation: h.manager.ConfirmationPending(),
		}
		if user := h.manager.CurrentUser(ctx); user != nil {
			resp.UserID = user.ID
		}
		event.OnResponse(resp)
	}

	return nil
}
