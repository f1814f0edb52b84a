package email

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/interactive-solutions/go-email/internal"
)

// HttpHandler exposes a Service over HTTP.
type HttpHandler struct {
	service *Service
	logger  logrus.FieldLogger
}

func NewHttpHandler(service *Service, logger logrus.FieldLogger) *HttpHandler {
	return &HttpHandler{service: service, logger: logger}
}

// RegisterRoutes mounts the handler on r.
func (h *HttpHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/emails", h.SendEmail).Methods(http.MethodPost)
}

func (h *HttpHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	body := &internal.SendEmailRequest{}
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		writeJson(w, http.StatusBadRequest, internal.ErrorResponse{Error: "Failed to parse incoming json"})
		return
	}

	result, err := h.service.Send(r.Context(), Message{
		From:        body.From,
		To:          body.To,
		Cc:          body.Cc,
		Bcc:         body.Bcc,
		Attachments: body.Attachments,
		Subject:     body.Subject,
		Body:        body.Body,
		BodyIsHTML:  body.Html,
	})
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			writeJson(w, http.StatusBadRequest, internal.ErrorResponse{Error: ve.Error(), Field: ve.Field})
			return
		}

		h.logger.WithError(err).Warn("email relay request failed")
		writeJson(w, http.StatusBadGateway, internal.ErrorResponse{Error: "Failed to send email"})
		return
	}

	writeJson(w, http.StatusAccepted, internal.SendEmailResponse{Id: result.ID})
}

func writeJson(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Failed to convert to json", 500)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
