package handlers

// ErrorResponse - единый формат ошибки API.
// Details содержит исходный текст ошибки нижнего слоя, если он безопасен
// для выдачи наружу.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
