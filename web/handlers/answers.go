package handlers

import (
	"net/http"

	"answer-engine/answers"
	"answer-engine/engine"
	"answer-engine/web/format"
	"answer-engine/web/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AnswerHandler serves the question-answering endpoints.
type AnswerHandler struct {
	engine *engine.Engine
	cache  *answers.Cache
	logger *zap.Logger
}

func NewAnswerHandler(eng *engine.Engine, cache *answers.Cache, logger *zap.Logger) *AnswerHandler {
	return &AnswerHandler{engine: eng, cache: cache, logger: logger}
}

type answerRequest struct {
	Question       string  `json:"question" binding:"required"`
	Platform       string  `json:"platform"`
	Version        string  `json:"version"`
	UploadedFileID *string `json:"uploaded_file_id"`
}

// Ask handles POST /api/answer.
func (h *AnswerHandler) Ask(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondWithClientError(c, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "question is required")
		return
	}

	engineReq := engine.Request{
		Question: req.Question,
		UserID:   userID,
		Platform: req.Platform,
		Version:  req.Version,
	}
	if req.UploadedFileID != nil && *req.UploadedFileID != "" {
		fileID, err := uuid.Parse(*req.UploadedFileID)
		if err != nil {
			respondWithClientError(c, http.StatusBadRequest, "invalid uploaded_file_id")
			return
		}
		engineReq.UploadedFileID = &fileID
	}

	resp, err := h.engine.Answer(c.Request.Context(), engineReq)
	if err != nil {
		status := statusFromError(err)
		if isClientError(status) {
			respondWithClientError(c, status, err.Error())
			return
		}
		respondWithError(c, status, err, "failed to answer question", h.logger,
			zap.String("user_id", userID.String()))
		return
	}

	c.JSON(http.StatusOK, resp)
}

type voteRequest struct {
	Up     *bool  `json:"up" binding:"required"`
	Reason string `json:"reason"`
}

// Vote handles POST /api/answers/:id/vote.
func (h *AnswerHandler) Vote(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondWithClientError(c, http.StatusUnauthorized, "missing user identity")
		return
	}

	answerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, "invalid answer id")
		return
	}

	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "vote direction is required")
		return
	}

	tally, err := h.engine.Vote(c.Request.Context(), answerID, userID, *req.Up, req.Reason)
	if err != nil {
		status := statusFromError(err)
		if isClientError(status) {
			respondWithClientError(c, status, "answer not found")
			return
		}
		respondWithError(c, status, err, "failed to record vote", h.logger,
			zap.String("answer_id", answerID.String()))
		return
	}

	c.JSON(http.StatusOK, tally)
}

type publishRequest struct {
	URL string `json:"url" binding:"required"`
}

// Publish handles POST /api/answers/:id/publish. Records where the answer
// was published, once it has cleared the community-vote thresholds.
func (h *AnswerHandler) Publish(c *gin.Context) {
	answerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, "invalid answer id")
		return
	}

	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "url is required")
		return
	}

	entry, err := h.cache.Publish(c.Request.Context(), answerID, req.URL)
	if err != nil {
		status := statusFromError(err)
		if isClientError(status) {
			respondWithClientError(c, status, err.Error())
			return
		}
		respondWithError(c, status, err, "failed to publish answer", h.logger,
			zap.String("answer_id", answerID.String()))
		return
	}

	c.JSON(http.StatusOK, entry)
}

// Show handles GET /answers/:id, the public rendered answer page. Only
// answers that have cleared the community-vote thresholds are exposed.
func (h *AnswerHandler) Show(c *gin.Context) {
	answerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, "invalid answer id")
		return
	}

	entry, err := h.cache.Get(c.Request.Context(), answerID)
	if err != nil {
		status := statusFromError(err)
		if isClientError(status) {
			respondWithClientError(c, status, "answer not found")
			return
		}
		respondWithError(c, status, err, "failed to load answer", h.logger,
			zap.String("answer_id", answerID.String()))
		return
	}

	if !answers.Publishable(entry) {
		respondWithClientError(c, http.StatusNotFound, "answer not found")
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(format.RenderAnswerPage(entry)))
}
