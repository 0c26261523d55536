package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"quizbank"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const sessionName = "quizbank-admin"

// Server is the admin HTTP API.
type Server struct {
	db        *quizbank.DB
	generator *quizbank.Generator
	moderator *quizbank.Moderator
	pool      *quizbank.QuestionPool
	store     sessions.Store
	adminHash []byte
	origins   []string
	logger    *quizbank.Logger

	// background runs outlive the request that started them
	background context.Context
	runs       sync.WaitGroup
}

// ServerDeps are the collaborators a Server is built from.
type ServerDeps struct {
	DB                *quizbank.DB
	Generator         *quizbank.Generator
	Moderator         *quizbank.Moderator
	Pool              *quizbank.QuestionPool
	SessionSecret     string
	AdminPasswordHash string
	CORSOrigins       []string
	Logger            *quizbank.Logger
	Background        context.Context
}

func NewServer(deps ServerDeps) *Server {
	store := sessions.NewCookieStore([]byte(deps.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((12 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	bg := deps.Background
	if bg == nil {
		bg = context.Background()
	}
	// cors.New panics on an empty allow list.
	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	logger := deps.Logger
	if logger == nil {
		logger = quizbank.NopLogger()
	}
	return &Server{
		db:         deps.DB,
		generator:  deps.Generator,
		moderator:  deps.Moderator,
		pool:       deps.Pool,
		store:      store,
		adminHash:  []byte(deps.AdminPasswordHash),
		origins:    origins,
		logger:     logger,
		background: bg,
	}
}

// Wait blocks until every background generation run has returned.
func (s *Server) Wait() {
	s.runs.Wait()
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	r.POST("/admin/login", s.handleLogin)
	r.POST("/admin/logout", s.handleLogout)

	// Learners fetch sampled quizzes without an admin session.
	r.POST("/api/quiz-templates/fetch-quiz", s.handleFetchQuiz)

	api := r.Group("/api", s.requireAdmin())
	{
		templates := api.Group("/quiz-templates")
		templates.POST("/generate-batch", s.handleGenerateBatch)
		templates.POST("/approve-questions", s.handleApproveQuestions)
		templates.POST("/reject-questions", s.handleRejectQuestions)
		templates.POST("/unapprove-questions", s.handleUnapproveQuestions)
		templates.POST("/update-question", s.handleUpdateQuestion)
		templates.POST("/reconcile", s.handleReconcile)
		templates.GET("/batches", s.handleListBatches)
		templates.GET("/batches/:id", s.handleGetBatch)
		templates.GET("/batches/:id/questions", s.handleListBatchQuestions)
		templates.GET("/pools", s.handleListPools)

		api.PUT("/users/:id", s.handleUpsertUser)
		api.DELETE("/users/:id", s.handleDeleteUser)
		api.GET("/users/:id/summary", s.handleUserSummary)
		api.GET("/users/:id/quiz-sets", s.handleListQuizSets)
		api.POST("/users/:id/quiz-sets/approve-all", s.handleApproveAllQuizSets)

		api.POST("/generations", s.handleStartGeneration)
		api.POST("/generations/run", s.handleRunGeneration)
		api.POST("/generations/batch", s.handleGenerationPage)
		api.GET("/generations/:userId", s.handleGetGeneration)

		api.POST("/quiz-sets/:id/approve", s.handleApproveQuizSet)
		api.POST("/quiz-sets/:id/regenerate", s.handleRegenerateQuizSet)

		api.GET("/log/verbose", s.handleGetVerbose)
		api.PUT("/log/verbose", s.handleSetVerbose)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Verbose("Request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

func respondError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(quizbank.HTTPStatus(err), gin.H{"success": false, "error": err.Error()})
}

func respondBadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}
