package rdm

import (
	"github.com/pkg/errors"
)

type actionHandler func(*endpoint, []interface{}) error

func defaultActions() map[string]actionHandler {
	return map[string]actionHandler{
		ActionNoop:    actionNoopHandler,
		ActionCall:    actionCallHandler,
		ActionRespond: actionRespondHandler,
		ActionClose:   actionCloseHandler,
	}
}

func actionNoopHandler(ep *endpoint, args []interface{}) error {
	return nil
}

// actionCallHandler runs [functionName, requestID, args] and answers with
// a respond action once the outcome is known.
func actionCallHandler(ep *endpoint, args []interface{}) error {
	if len(args) != 3 {
		return errors.Errorf("call: expected 3 arguments, got %d", len(args))
	}
	name, ok := args[0].(string)
	if !ok {
		return errors.Errorf("call: function name is %T", args[0])
	}
	requestID, ok := args[1].(string)
	if !ok {
		return errors.Errorf("call: request id is %T", args[1])
	}
	var callArgs []interface{}
	if args[2] != nil {
		if callArgs, ok = args[2].([]interface{}); !ok {
			return errors.Errorf("call: arguments are %T", args[2])
		}
	}

	var r Result
	if m, found := ep.namespace.Lookup(name); found {
		r = invoke(m, callArgs)
	} else {
		r = Fail(errors.WithStack(ErrUnknownMethod{Name: name}))
	}

	var d *Deferred
	switch r := r.(type) {
	case Pending:
		d = r.Deferred
	case Immediate:
		if r.Err != nil {
			d = Failed(r.Err)
		} else {
			d = Succeed(r.Value)
		}
	}
	if d == nil {
		d = Succeed(nil)
	}

	d.AddBoth(func(v interface{}, err error) Result {
		if err != nil {
			ep.log.WithField("method", name).Debugf("call failed: %v", err)
			ep.AddMessage(NewMessage(ActionRespond, requestID, false, encodeError(err)))
		} else {
			ep.AddMessage(NewMessage(ActionRespond, requestID, true, v))
		}
		return nil
	})
	return nil
}

// actionRespondHandler resolves [requestID, success, result].
func actionRespondHandler(ep *endpoint, args []interface{}) error {
	if len(args) != 3 {
		return errors.Errorf("respond: expected 3 arguments, got %d", len(args))
	}
	requestID, ok := args[0].(string)
	if !ok {
		return errors.Errorf("respond: request id is %T", args[0])
	}
	success, ok := args[1].(bool)
	if !ok {
		return errors.Errorf("respond: success flag is %T", args[1])
	}
	return ep.resolve(requestID, success, args[2])
}

func actionCloseHandler(ep *endpoint, args []interface{}) error {
	if ep.onClose != nil {
		ep.onClose(ErrClosedByRemote)
	}
	return nil
}
