package embed

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"

	"github.com/Aman-CERP/foldrank/internal/errors"
)

// statusError builds a provider error from an HTTP status returned by a
// provider. 408, 429 and 5xx stay retryable; 401/403 do not.
func statusError(provider string, status int, body string) error {
	msg := fmt.Sprintf("%s returned status %d", provider, status)
	if body != "" {
		msg += ": " + body
	}

	var fe *errors.FoldError
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		fe = errors.New(errors.ErrCodeProviderAuth, msg, nil).
			WithSuggestion("Check the API key for the embedding provider")
	case status == http.StatusTooManyRequests:
		fe = errors.New(errors.ErrCodeProviderRateLimited, msg, nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		fe = errors.New(errors.ErrCodeNetworkTimeout, msg, nil)
	case status >= 500:
		fe = errors.ProviderError(msg, nil)
	default:
		fe = errors.ProviderError(msg, nil)
		fe.Retryable = false
	}
	return fe.WithDetail("provider", provider).WithDetail("status", fmt.Sprint(status))
}

// transportError converts a client-side failure into a provider error.
// Context errors from the caller pass through untouched.
func transportError(ctx context.Context, provider string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return errors.New(errors.ErrCodeNetworkTimeout,
			fmt.Sprintf("%s request timed out", provider), err).
			WithDetail("provider", provider)
	}
	return errors.ProviderError(fmt.Sprintf("%s request failed", provider), err).
		WithDetail("provider", provider)
}

// shapeError reports a response that does not match the request.
func shapeError(provider string, want, got int) error {
	return errors.ProviderError(
		fmt.Sprintf("%s returned %d embeddings for %d inputs", provider, got, want), nil).
		WithDetail("provider", provider)
}
