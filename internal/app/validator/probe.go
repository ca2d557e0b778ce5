package validator

import (
	"context"
	"errors"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/sifan077/shortener/internal/app/apperror"
)

// probe issues a HEAD request, following redirects. Transport failures are
// validation errors; an error status only marks the URL as not accessible.
func (v *Validator) probe(ctx context.Context, raw string) (*Availability, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, raw, nil)
	if err != nil {
		return nil, apperror.URLValidation("URL is not accessible: "+err.Error(), raw, map[string]any{"error": err.Error()})
	}

	resp, err := v.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, apperror.URLValidation("URL is not accessible (timeout)", raw, map[string]any{"timeout": true})
		}
		v.logger.Debug("availability probe failed", zap.String("url", raw), zap.Error(err))
		return nil, apperror.URLValidation("URL is not accessible: "+err.Error(), raw, map[string]any{"error": err.Error()})
	}
	defer resp.Body.Close()

	return &Availability{
		Accessible:    resp.StatusCode < http.StatusBadRequest,
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.Header.Get("Content-Length"),
		Server:        resp.Header.Get("Server"),
		LastModified:  resp.Header.Get("Last-Modified"),
	}, nil
}
