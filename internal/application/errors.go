package application

import (
	"errors"
	"fmt"
	"strings"

	"bankdapp/internal/contract"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrorKind tells failures apart internally; users only ever see the
// generic error notification.
type ErrorKind string

const (
	KindInvalidAmount ErrorKind = "invalid_amount"
	KindNotConnected  ErrorKind = "not_connected"
	KindUserRejected  ErrorKind = "user_rejected"
	KindReverted      ErrorKind = "reverted"
	KindTransport     ErrorKind = "transport"
	KindRead          ErrorKind = "read"
	KindBusy          ErrorKind = "busy"
)

var (
	ErrBusy     = errors.New("panel is busy")
	ErrReverted = errors.New("transaction reverted")
)

type ActionError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

func newActionError(kind ErrorKind, op string, err error) *ActionError {
	return &ActionError{Kind: kind, Op: op, Err: err}
}

func KindOf(err error) (ErrorKind, bool) {
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		return actionErr.Kind, true
	}
	return "", false
}

func wrapRevert(err error) error {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, ok := revertData(dataErr.ErrorData()); ok {
			if reason, ok := contract.RevertReason(data); ok {
				return fmt.Errorf("%w: %s", ErrReverted, reason)
			}
			return fmt.Errorf("%w: %v", ErrReverted, err)
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "execution reverted") {
		return fmt.Errorf("%w: %v", ErrReverted, err)
	}
	return nil
}

func revertData(data interface{}) ([]byte, bool) {
	raw, ok := data.(string)
	if !ok {
		return nil, false
	}
	decoded, err := hexutil.Decode(raw)
	if err != nil {
		return nil, false
	}
	return decoded, true
}
