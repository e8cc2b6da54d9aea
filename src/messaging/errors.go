package messaging

import (
	"errors"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
)

// ErrorMsg carries a protocol error over the wire.
type ErrorMsg struct {
	Kind    common.ErrKind
	Message string
}

// ErrorMsgFrom converts err. Errors without a kind are reported as
// InvalidState.
func ErrorMsgFrom(err error) ErrorMsg {
	var e common.Error
	if errors.As(err, &e) {
		return ErrorMsg{Kind: e.Kind, Message: e.Context}
	}
	return ErrorMsg{Kind: common.InvalidState, Message: err.Error()}
}

// Err converts the message back into a common.Error.
func (e ErrorMsg) Err() error {
	return common.NewError(e.Kind, "%s", e.Message)
}
