package ticketing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"go.uber.org/zap"
)

// maxResponseSize bounds how much of a platform response is read (10MB)
const maxResponseSize = 10 * 1024 * 1024

// DefaultTimeout is the per-request timeout used when none is configured
const DefaultTimeout = 30 * time.Second

// apiClient performs authenticated JSON requests against a platform instance
// and classifies failures into the itsm error taxonomy
type apiClient struct {
	httpClient  *http.Client
	credentials CredentialResolver
	logger      *zap.Logger
}

func newAPIClient(httpClient *http.Client, credentials CredentialResolver, logger *zap.Logger) *apiClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &apiClient{httpClient: httpClient, credentials: credentials, logger: logger}
}

// do sends body as JSON and decodes a 2xx response into out when out is not nil
func (c *apiClient) do(ctx context.Context, conn *itsm.Connection, method, path string, body, out any) error {
	creds, err := c.credentials.Resolve(ctx, conn.CredentialRef)
	if err != nil {
		return &itsm.PermissionError{Message: fmt.Sprintf("credential %q: %v", conn.CredentialRef, err)}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return itsm.NewValidationError(itsm.CodeInvalidFieldValue, "", "payload is not serializable: "+err.Error())
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, conn.InstanceURL+path, reader)
	if err != nil {
		return fmt.Errorf("ticketing: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if creds.IsBasic() {
		req.SetBasicAuth(creds.Username, creds.Password)
	} else {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &itsm.TransientError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &itsm.TransientError{StatusCode: resp.StatusCode, Err: err}
	}

	c.logger.Debug("platform request completed",
		zap.String("platform", conn.Platform.String()),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(started)),
	)

	if err := itsm.ClassifyHTTPStatus(resp.StatusCode, string(respBody)); err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return itsm.NewValidationError(itsm.CodeMalformedPayload, "", "unexpected platform response: "+err.Error())
	}
	return nil
}
