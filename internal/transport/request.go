package transport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/opshub/tenantsync/pkg/errors"
)

// DecodeResponse reads and decodes a JSON response into the target
// structure. Non-2xx statuses become APIErrors carrying the body as message.
// A nil target discards the body.
func DecodeResponse(system string, resp *http.Response, target any) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapAPI(system, resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &errors.APIError{
			System:     system,
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	if target == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.Unmarshal(body, target); err != nil {
		return errors.WrapParse("json", system+" response", err)
	}
	return nil
}
