package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/genimage/internal/models"
	"github.com/example/genimage/internal/service"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid json"})
		return
	}
	if req.Username == "" || req.Password == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "username and password are required"})
		return
	}

	err := s.auth.Register(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusCreated, map[string]any{"message": "user registered"})
	case errors.Is(err, service.ErrUsernameTaken):
		s.writeJSON(w, http.StatusConflict, errorResponse{Message: err.Error()})
	case errors.Is(err, service.ErrUsernameLength), errors.Is(err, service.ErrPasswordTooShort):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
	default:
		s.log.Error("register failed", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid json"})
		return
	}

	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]string{"token": token})
	case errors.Is(err, service.ErrInvalidCredentials):
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Message: err.Error()})
	default:
		s.log.Error("login failed", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
	}
}

type textToImageRequest struct {
	Prompt string `json:"prompt"`
}

type submitResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ImageURL  string `json:"imageUrl"`
	RequestID int64  `json:"requestId"`
}

func (s *Server) handleTextToImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "unauthorized"})
		return
	}

	var req textToImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid json"})
		return
	}

	s.submit(w, r, userID, service.SubmitInput{
		Mode:   models.ModeTextToImage,
		Prompt: req.Prompt,
	})
}

func (s *Server) handleImageToImage(w http.ResponseWriter, r *http.Request) {
	s.handleMultipartGenerate(w, r, models.ModeImageToImage)
}

func (s *Server) handleTextAndImageToImage(w http.ResponseWriter, r *http.Request) {
	s.handleMultipartGenerate(w, r, models.ModeTextAndImageToImage)
}

func (s *Server) handleMultipartGenerate(w http.ResponseWriter, r *http.Request, mode models.RequestMode) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "unauthorized"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid multipart form or file too large"})
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "image file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "read uploaded image"})
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	s.submit(w, r, userID, service.SubmitInput{
		Mode:      mode,
		Prompt:    r.FormValue("prompt"),
		ImageData: data,
		ImageMIME: mimeType,
	})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, userID int64, in service.SubmitInput) {
	result, err := s.images.Submit(r.Context(), userID, in)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, submitResponse{
		Success:   true,
		Message:   "image generated",
		ImageURL:  result.OutputImageRef,
		RequestID: result.RequestID,
	})
}

type requestView struct {
	ID             int64  `json:"id"`
	Mode           string `json:"mode"`
	InputText      string `json:"inputText,omitempty"`
	OutputImageURL string `json:"outputImageUrl,omitempty"`
	Status         string `json:"status"`
	ErrorDetail    string `json:"errorDetail,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

func toRequestView(req models.GenerationRequest) requestView {
	return requestView{
		ID:             req.ID,
		Mode:           string(req.Mode),
		InputText:      req.InputText,
		OutputImageURL: req.OutputImageRef,
		Status:         string(req.Status),
		ErrorDetail:    req.ErrorDetail,
		CreatedAt:      req.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "unauthorized"})
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	history, err := s.requests.List(r.Context(), userID, page, limit, q.Get("sortBy"), q.Get("sortOrder"))
	if err != nil {
		s.log.Error("list requests", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
		return
	}

	views := make([]requestView, 0, len(history.Requests))
	for _, req := range history.Requests {
		views = append(views, toRequestView(req))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"total":      history.Total,
		"page":       history.Page,
		"limit":      history.Limit,
		"totalPages": history.TotalPages,
		"requests":   views,
	})
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "unauthorized"})
		return
	}

	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request id"})
		return
	}

	request, err := s.requests.Get(r.Context(), userID, id)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "request": toRequestView(*request)})
	case errors.Is(err, service.ErrRequestNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Message: "request not found"})
	default:
		s.log.Error("get request", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
	}
}

func (s *Server) handleRequestStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "unauthorized"})
		return
	}

	stats, err := s.requests.Stats(r.Context(), userID)
	if err != nil {
		s.log.Error("request stats", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats": map[string]any{
			"totalRequests": stats.Total,
			"byType": map[string]int{
				"textToImage":         stats.TextToImage,
				"imageToImage":        stats.ImageToImage,
				"textAndImageToImage": stats.TextAndImageToImage,
			},
			"byStatus": map[string]int{
				"completed": stats.Completed,
				"failed":    stats.Failed,
				"pending":   stats.Pending,
			},
		},
	})
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}
