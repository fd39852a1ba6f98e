package eventmodels

import "fmt"

type Operator string

const (
	OperatorGreaterThan    Operator = ">"
	OperatorLessThan       Operator = "<"
	OperatorGreaterOrEqual Operator = ">="
	OperatorLessOrEqual    Operator = "<="
	OperatorEqual          Operator = "=="
	OperatorNotEqual       Operator = "!="
)

func (o Operator) Evaluate(value, threshold float64) (bool, error) {
	switch o {
	case OperatorGreaterThan:
		return value > threshold, nil
	case OperatorLessThan:
		return value < threshold, nil
	case OperatorGreaterOrEqual:
		return value >= threshold, nil
	case OperatorLessOrEqual:
		return value <= threshold, nil
	case OperatorEqual:
		return value == threshold, nil
	case OperatorNotEqual:
		return value != threshold, nil
	}

	return false, fmt.Errorf("Operator.Evaluate: %q: %w", string(o), ErrUnknownOperator)
}
