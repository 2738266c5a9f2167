package cluster

import (
	"context"
	"errors"
	"net/http"

	"github.com/rahul/kubeask/internal/intent"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// ErrMetricsUnavailable is the error text for top requests when no metrics
// API is configured.
const ErrMetricsUnavailable = "metrics capability unavailable"

// normalize turns a cluster call error into a Result. Status errors from the
// API server keep their HTTP code.
func normalize(err error) intent.Result {
	var status apierrors.APIStatus
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return intent.ErrorResult(err.Error(), http.StatusGatewayTimeout)
	case errors.Is(err, context.Canceled):
		return intent.ErrorResult(err.Error(), 499)
	case errors.As(err, &status):
		code := int(status.Status().Code)
		if code == 0 {
			code = http.StatusInternalServerError
		}
		msg := status.Status().Message
		if msg == "" {
			msg = err.Error()
		}
		return intent.ErrorResult(msg, code)
	}
	return intent.ErrorResult(err.Error(), http.StatusInternalServerError)
}
