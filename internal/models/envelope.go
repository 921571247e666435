package models

// APIResponse is the uniform JSON envelope wrapped around every HTTP
// response: { success, data, error, meta }.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Error   *string     `json:"error"`
	Meta    interface{} `json:"meta"`
}

// SuccessResponse builds a success envelope around data.
func SuccessResponse(data interface{}) APIResponse {
	return APIResponse{Success: true, Data: data}
}

// ErrorResponse builds an error envelope from a typed scraper error.
func ErrorResponse(err *Error) APIResponse {
	msg := err.Message
	resp := APIResponse{Success: false, Error: &msg}
	if err.Meta != nil {
		resp.Meta = err.Meta
	}
	return resp
}
