package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// newJSONRequest builds a request for path under base. A nil body sends none; []byte and
// io.Reader bodies are sent as is; anything else is JSON-encoded.
func newJSONRequest(ctx context.Context, method, base, path string, body any) (*http.Request, error) {
	target := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")

	var (
		rdr         io.Reader
		contentType string
	)
	switch v := body.(type) {
	case nil:
	case []byte:
		rdr = bytes.NewReader(v)
	case io.Reader:
		rdr = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		rdr = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}
