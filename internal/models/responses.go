package models

// ErrorResponse represents an error response from the API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// DataResponse wraps a payload in the API response.
type DataResponse struct {
	Data any `json:"data"`
}
