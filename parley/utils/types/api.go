package types

type CreateConversationRequest struct {
	UserID string `json:"user_id"`
}

type CreateConversationResponse struct {
	ID string `json:"id"`
}

type DevLoginRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
