package eventmodels

import "errors"

var (
	ErrTransport       = errors.New("transport error")
	ErrData            = errors.New("malformed upstream data")
	ErrConfig          = errors.New("invalid configuration")
	ErrDelivery        = errors.New("notification delivery failed")
	ErrRuleEvaluation  = errors.New("rule evaluation failed")
	ErrAlertNotFound   = errors.New("alert not found")
	ErrRuleNotFound    = errors.New("alert rule not found")
	ErrUnknownChannel  = errors.New("unknown notification channel")
	ErrNoRecipients    = errors.New("channel has no configured recipients")
	ErrAlreadyRunning  = errors.New("already running")
	ErrMetricNotFound  = errors.New("metric not found")
	ErrUnknownOperator = errors.New("unknown operator")
)
