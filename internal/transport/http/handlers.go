package http

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"mcq-exam-service/internal/app"
	"mcq-exam-service/internal/domain"
	"github.com/go-chi/chi/v5"
)

// Handler exposes the exam use cases as JSON endpoints.
type Handler struct {
	service *app.ExamService
}

func NewHandler(service *app.ExamService) *Handler {
	return &Handler{service: service}
}

type startRequest struct {
	ExamID         int64  `json:"exam_id"`
	FullName       string `json:"full_name"`
	Phone          string `json:"phone"`
	Group          string `json:"group"`
	HSCRoll        string `json:"hsc_roll"`
	HSCPassingYear string `json:"hsc_passing_year"`
	Board          string `json:"board"`
	College        string `json:"college"`
}

type answerRequest struct {
	QuestionID int64 `json:"question_id"`
	OptionID   int64 `json:"option_id"`
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badJSON())
		return
	}
	res, err := h.service.Start(r.Context(), app.StartRequest{
		ExamID: req.ExamID,
		Identity: domain.Identity{
			FullName:       req.FullName,
			Phone:          req.Phone,
			Group:          req.Group,
			HSCRoll:        req.HSCRoll,
			HSCPassingYear: req.HSCPassingYear,
			Board:          req.Board,
			College:        req.College,
		},
		IPAddress: clientIP(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"token":           res.Token,
		"total_questions": res.TotalQuestions,
	})
}

func (h *Handler) NextQuestion(w http.ResponseWriter, r *http.Request) {
	question, progress, err := h.service.NextQuestion(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"question": question, "progress": progress})
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badJSON())
		return
	}
	if err := h.service.SubmitAnswer(r.Context(), chi.URLParam(r, "token"), req.QuestionID, req.OptionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) Finish(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Finish(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"score":             res.Score,
		"total_questions":   res.TotalQuestions,
		"result_publish_at": res.ResultPublishAt,
	})
}

func (h *Handler) Rules(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Rules(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) ActiveExam(w http.ResponseWriter, r *http.Request) {
	exam, err := h.service.ActiveExam(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	examID, ok := examIDParam(w, r)
	if !ok {
		return
	}
	lb, err := h.service.Leaderboard(r.Context(), examID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	examID, ok := examIDParam(w, r)
	if !ok {
		return
	}
	outcome, err := h.service.Recalculate(r.Context(), examID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	examID, ok := examIDParam(w, r)
	if !ok {
		return
	}
	shortfalls, err := h.service.ActivateExam(r.Context(), examID)
	if err != nil {
		writeError(w, err)
		return
	}
	if shortfalls == nil {
		shortfalls = []domain.PoolShortfall{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"exam_id": examID, "shortfalls": shortfalls})
}

func examIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "examID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, domain.ErrExamNotFound)
		return 0, false
	}
	return id, true
}

func badJSON() error {
	return &domain.ValidationError{Fields: map[string]string{"body": "invalid json"}}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
