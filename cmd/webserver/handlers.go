package main

import (
	"net/http"
	"strings"

	"quizbank"

	"github.com/gin-gonic/gin"
)

type questionIDsRequest struct {
	QuestionIDs []string `json:"questionIds"`
	AdminID     string   `json:"adminId"`
	Reason      string   `json:"reason"`
}

func (s *Server) bindQuestionIDs(c *gin.Context) (*questionIDsRequest, bool) {
	var req questionIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return nil, false
	}
	if len(req.QuestionIDs) == 0 {
		respondBadRequest(c, "questionIds must be a non-empty array")
		return nil, false
	}
	return &req, true
}

func (s *Server) handleGenerateBatch(c *gin.Context) {
	var req quizbank.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}
	if req.Interest == "" || req.Level == "" || req.GameMode == "" {
		respondBadRequest(c, "Missing required fields: interest, level, gameMode")
		return
	}
	req.GeneratedBy = adminID(c)

	batch, questions, err := s.generator.GenerateTemplateBatch(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"batchId":            batch.ID,
		"questionsGenerated": len(questions),
		"batch":              batch,
	})
}

func (s *Server) handleApproveQuestions(c *gin.Context) {
	req, ok := s.bindQuestionIDs(c)
	if !ok {
		return
	}
	approver := req.AdminID
	if approver == "" {
		approver = adminID(c)
	}
	result, err := s.moderator.Approve(c.Request.Context(), req.QuestionIDs, approver)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "approvedCount": result.Applied, "result": result})
}

func (s *Server) handleRejectQuestions(c *gin.Context) {
	req, ok := s.bindQuestionIDs(c)
	if !ok {
		return
	}
	result, err := s.moderator.Reject(c.Request.Context(), req.QuestionIDs, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "rejectedCount": result.Applied, "result": result})
}

func (s *Server) handleUnapproveQuestions(c *gin.Context) {
	req, ok := s.bindQuestionIDs(c)
	if !ok {
		return
	}
	result, err := s.moderator.Unapprove(c.Request.Context(), req.QuestionIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	if result.Applied == 0 {
		respondBadRequest(c, "No approved questions found in the provided IDs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "unapprovedCount": result.Applied, "result": result})
}

type updateQuestionRequest struct {
	QuestionID string                  `json:"questionId"`
	Updates    quizbank.QuestionUpdate `json:"updates"`
}

func (s *Server) handleUpdateQuestion(c *gin.Context) {
	var req updateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}
	q, err := s.moderator.UpdateQuestion(c.Request.Context(), req.QuestionID, req.Updates)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "question": q})
}

func (s *Server) handleReconcile(c *gin.Context) {
	n, err := s.moderator.ReconcileBatchStatuses(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "repaired": n})
}

func (s *Server) handleListBatches(c *gin.Context) {
	batches, err := s.db.ListBatches(c.Request.Context(), quizbank.BatchFilter{
		Interest: c.Query("interest"),
		Level:    quizbank.Level(c.Query("level")),
		GameMode: c.Query("gameMode"),
		Status:   quizbank.BatchStatus(c.Query("status")),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "batches": batches})
}

func (s *Server) handleGetBatch(c *gin.Context) {
	batch, err := s.db.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "batch": batch})
}

func (s *Server) handleListBatchQuestions(c *gin.Context) {
	ctx := c.Request.Context()
	batchID := c.Param("id")
	if _, err := s.db.GetBatch(ctx, batchID); err != nil {
		respondError(c, err)
		return
	}
	questions, err := s.db.ListBatchQuestions(ctx, batchID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "questions": questions})
}

func (s *Server) handleListPools(c *gin.Context) {
	pools, err := s.db.ListPools(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pools": pools})
}

func (s *Server) handleFetchQuiz(c *gin.Context) {
	var req quizbank.FetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}
	questions, err := s.pool.FetchQuiz(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "questions": questions, "count": len(questions)})
}

type upsertUserRequest struct {
	Email     string   `json:"email"`
	Interests []string `json:"interests"`
}

func (s *Server) handleUpsertUser(c *gin.Context) {
	var req upsertUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return
	}
	user := &quizbank.User{ID: c.Param("id"), Email: strings.TrimSpace(req.Email), Interests: req.Interests}
	if err := s.db.UpsertUser(c.Request.Context(), user); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

func (s *Server) handleDeleteUser(c *gin.Context) {
	if err := s.db.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleUserSummary(c *gin.Context) {
	summary, err := s.db.UserQuizSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
}

func (s *Server) handleListQuizSets(c *gin.Context) {
	sets, err := s.db.ListQuizSets(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "quizSets": sets})
}

func (s *Server) handleApproveAllQuizSets(c *gin.Context) {
	n, err := s.db.ApproveAllPendingQuizSets(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "approvedCount": n})
}

func (s *Server) handleApproveQuizSet(c *gin.Context) {
	set, err := s.db.ApproveQuizSet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "quizSet": set})
}

func (s *Server) handleRegenerateQuizSet(c *gin.Context) {
	set, err := s.generator.RegenerateQuizSet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "quizSet": set})
}

type generationRequest struct {
	UserID     string `json:"userId"`
	BatchIndex int    `json:"batchIndex"`
}

func (s *Server) bindGeneration(c *gin.Context) (*generationRequest, bool) {
	var req generationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body")
		return nil, false
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondBadRequest(c, "userId is required")
		return nil, false
	}
	return &req, true
}

func (s *Server) handleStartGeneration(c *gin.Context) {
	req, ok := s.bindGeneration(c)
	if !ok {
		return
	}
	run, err := s.generator.StartGeneration(c.Request.Context(), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "run": run})
}

// handleRunGeneration starts the full plan in the background and answers
// immediately; progress is read from GET /api/generations/:userId.
func (s *Server) handleRunGeneration(c *gin.Context) {
	req, ok := s.bindGeneration(c)
	if !ok {
		return
	}
	run, err := s.generator.StartGeneration(c.Request.Context(), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	s.runs.Add(1)
	go func(userID string) {
		defer s.runs.Done()
		if _, err := s.generator.GeneratePersonalizedQuizzes(s.background, userID); err != nil {
			s.logger.Error("Background generation failed", "user_id", userID, "error", err)
		}
	}(req.UserID)
	c.JSON(http.StatusAccepted, gin.H{"success": true, "run": run})
}

func (s *Server) handleGenerationPage(c *gin.Context) {
	req, ok := s.bindGeneration(c)
	if !ok {
		return
	}
	result, err := s.generator.RunGenerationPage(c.Request.Context(), req.UserID, req.BatchIndex)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"completed": result.Completed,
		"progress":  result.Progress,
		"total":     result.Total,
		"nextBatch": result.NextPage,
		"generated": result.Generated,
	})
}

func (s *Server) handleGetGeneration(c *gin.Context) {
	run, err := s.db.GetRun(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "run": run})
}

func (s *Server) handleGetVerbose(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "verbose": s.logger.IsVerbose()})
}

// handleSetVerbose switches debug logging at runtime for every component
// sharing the server's logger.
func (s *Server) handleSetVerbose(c *gin.Context) {
	var req struct {
		Verbose *bool `json:"verbose"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Verbose == nil {
		respondBadRequest(c, "verbose must be a boolean")
		return
	}
	s.logger.SetVerbose(*req.Verbose)
	s.logger.Info("Verbose logging changed", "verbose", *req.Verbose)
	c.JSON(http.StatusOK, gin.H{"success": true, "verbose": *req.Verbose})
}
