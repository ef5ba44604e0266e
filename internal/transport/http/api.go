package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"lms-quiz-service/internal/app"
	"lms-quiz-service/internal/domain"
)

// APIHandler exposes the quiz use cases over JSON. Session resolution is
// external to the core: the authenticated principal arrives as X-User-Id and
// X-User-Role headers set by the outer auth layer; absent headers mean an
// unauthenticated call.
type APIHandler struct {
	service *app.QuizService
}

func NewAPIHandler(service *app.QuizService) *APIHandler {
	return &APIHandler{service: service}
}

// Register mounts the quiz routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /courses/{courseID}/quizzes", h.createQuiz)
	mux.HandleFunc("GET /courses/{courseID}/quizzes/active", h.activeQuizzes)
	mux.HandleFunc("POST /questions", h.addQuestion)
	mux.HandleFunc("POST /courses/{courseID}/question-bank", h.createQuestionBank)
	mux.HandleFunc("GET /courses/{courseID}/question-bank", h.questionBank)
	mux.HandleFunc("GET /quizzes/{quizID}", h.getQuiz)
	mux.HandleFunc("GET /quizzes/{quizID}/questions", h.quizQuestions)
	mux.HandleFunc("POST /quizzes/{quizID}/submission", h.submit)
	mux.HandleFunc("GET /quizzes/{quizID}/feedback/{studentID}", h.feedback)
	mux.HandleFunc("GET /quizzes/{quizID}/grades", h.grades)
}

func (h *APIHandler) createQuiz(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(w, r, "courseID")
	if !ok {
		return
	}
	qt, err := strconv.Atoi(r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid type")
		return
	}
	quizID, err := h.service.CreateQuiz(r.Context(), principal(r), courseID, domain.QuestionType(qt))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"quizId": quizID})
}

func (h *APIHandler) activeQuizzes(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(w, r, "courseID")
	if !ok {
		return
	}
	report, err := h.service.ActiveQuizzes(r.Context(), principal(r), courseID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *APIHandler) addQuestion(w http.ResponseWriter, r *http.Request) {
	var draft domain.QuestionDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid question payload")
		return
	}
	if err := h.service.AddQuestion(r.Context(), principal(r), draft); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *APIHandler) createQuestionBank(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(w, r, "courseID")
	if !ok {
		return
	}
	var drafts []domain.QuestionDraft
	if err := json.NewDecoder(r.Body).Decode(&drafts); err != nil {
		writeError(w, http.StatusBadRequest, "invalid question bank payload")
		return
	}
	if err := h.service.CreateQuestionBank(r.Context(), principal(r), courseID, drafts); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) questionBank(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(w, r, "courseID")
	if !ok {
		return
	}
	bank, err := h.service.QuestionBank(r.Context(), principal(r), courseID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bank)
}

func (h *APIHandler) getQuiz(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "quizID")
	if !ok {
		return
	}
	quiz, err := h.service.GetQuiz(r.Context(), principal(r), quizID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *APIHandler) quizQuestions(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "quizID")
	if !ok {
		return
	}
	questions, err := h.service.QuizQuestions(r.Context(), principal(r), quizID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *APIHandler) submit(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "quizID")
	if !ok {
		return
	}
	var body struct {
		Answers []string `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid submission payload")
		return
	}
	grade, err := h.service.Submit(r.Context(), principal(r), quizID, body.Answers)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"grade": grade})
}

func (h *APIHandler) feedback(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "quizID")
	if !ok {
		return
	}
	studentID, ok := pathID(w, r, "studentID")
	if !ok {
		return
	}
	grade, err := h.service.Feedback(r.Context(), principal(r), quizID, studentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"grade": grade})
}

func (h *APIHandler) grades(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "quizID")
	if !ok {
		return
	}
	grades, err := h.service.Grades(r.Context(), principal(r), quizID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grades)
}

// principal reconstructs the authenticated caller from headers set by the
// outer session layer. Returns nil when no one is logged in.
func principal(r *http.Request) *domain.Principal {
	userID, err := strconv.ParseInt(r.Header.Get("X-User-Id"), 10, 64)
	if err != nil {
		return nil
	}
	var role domain.Role
	switch r.Header.Get("X-User-Role") {
	case "admin":
		role = domain.RoleAdmin
	case "student":
		role = domain.RoleStudent
	case "instructor":
		role = domain.RoleInstructor
	default:
		return nil
	}
	return &domain.Principal{UserID: userID, Role: role}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrAuthorizationDenied), errors.Is(err, domain.ErrUnauthorizedAccess):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrCourseNotFound), errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrQuestionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicateQuestion), errors.Is(err, domain.ErrDuplicateSubmission):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrQuizClosed):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, domain.ErrInvalidQuizType), errors.Is(err, domain.ErrMalformedSubmission):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInsufficientQuestions), errors.Is(err, domain.ErrGradingNotAvailable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
