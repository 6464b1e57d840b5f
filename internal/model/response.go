package model

// EventPage is the envelope for paginated event listings. NextCursor is nil
// when there are no further pages.
type EventPage struct {
	Events     []Event `json:"events"`
	NextCursor *string `json:"nextCursor"`
}

// SuccessResponse acknowledges a mutation that returns no resource.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
type ErrorDetail struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}
