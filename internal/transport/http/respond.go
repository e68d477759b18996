package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"mcq-exam-service/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders err as {"error": ...} with a status derived from its class,
// plus whatever detail the typed error carries.
func writeError(w http.ResponseWriter, err error) {
	body := map[string]any{"error": err.Error()}

	var (
		validation *domain.ValidationError
		already    *domain.AlreadyParticipatedError
		schedule   *domain.ScheduleError
		gate       *domain.NotPublishedError
	)
	switch {
	case errors.As(err, &validation):
		body["error"] = "validation failed"
		body["fields"] = validation.Fields
	case errors.As(err, &already):
		body["token"] = already.Token
		body["completed"] = already.Completed
	case errors.As(err, &schedule):
		if schedule.NotStarted {
			body["start_time"] = schedule.At
		} else {
			body["end_time"] = schedule.At
		}
	case errors.As(err, &gate):
		body["error"] = "results are not published yet"
		body["publish_at"] = gate.PublishAt
	}

	status := statusOf(domain.ClassOf(err))
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		body["error"] = "internal error"
	}
	writeJSON(w, status, body)
}

func statusOf(class domain.Class) int {
	switch class {
	case domain.ClassValidation:
		return http.StatusUnprocessableEntity
	case domain.ClassForbidden:
		return http.StatusForbidden
	case domain.ClassConflict:
		return http.StatusConflict
	case domain.ClassNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
