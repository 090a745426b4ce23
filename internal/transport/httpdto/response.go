package httpdto

type Response[T any] struct {
	Success bool                `json:"success"`
	Data    T                   `json:"data,omitempty"`
	Error   string              `json:"error,omitempty"`
	Code    string              `json:"code,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
		Code:    code,
	}
}

// NewValidationErrorResponse carries per-field messages.
func NewValidationErrorResponse(err string, fields map[string][]string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
		Code:    "INVALID_REQUEST",
		Errors:  fields,
	}
}

type PagedResponse[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
	TotalPages int `json:"totalPages"`
}
