package internal

type SendEmailRequest struct {
	From        string   `json:"from"`
	To          []string `json:"to"`
	Cc          []string `json:"cc"`
	Bcc         []string `json:"bcc"`
	Attachments []string `json:"attachments"`

	Subject string `json:"subject"`
	Body    string `json:"body"`
	Html    bool   `json:"html"`
}

type SendEmailResponse struct {
	Id string `json:"id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
