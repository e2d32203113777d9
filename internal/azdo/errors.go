package azdo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrorResponse is a non-2xx answer from the Azure DevOps REST API.
type ErrorResponse struct {
	StatusCode int
	Method     string
	// Path is the request path without host or query.
	Path    string
	Message string
	TypeKey string
}

func (e *ErrorResponse) Error() string {
	status := fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return fmt.Sprintf("%s %s: %s", e.Method, e.Path, status)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Method, e.Path, status, msg)
}

func newErrorResponse(req *http.Request, resp *http.Response) *ErrorResponse {
	er := &ErrorResponse{StatusCode: resp.StatusCode}
	if req != nil {
		er.Method = req.Method
		er.Path = req.URL.Path
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Message string `json:"message"`
		TypeKey string `json:"typeKey"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		er.Message = payload.Message
		er.TypeKey = payload.TypeKey
	} else if text := strings.TrimSpace(string(body)); text != "" && len(text) < 512 && !strings.HasPrefix(text, "<") {
		er.Message = text
	}
	return er
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var er *ErrorResponse
	return errors.As(err, &er) && er.StatusCode == http.StatusNotFound
}
