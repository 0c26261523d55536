package quizbank

import "time"

// Question is one generated multiple choice item. Clue is shown before the
// learner answers, Explanation after.
type Question struct {
	Passage      string   `json:"passage,omitempty"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Explanation  string   `json:"explanation"`
	Clue         string   `json:"clue"`
}

// QuestionStatus represents the moderation state of a template question
type QuestionStatus string

const (
	StatusPending       QuestionStatus = "pending"
	StatusApproved      QuestionStatus = "approved"
	StatusRejected      QuestionStatus = "rejected"
	StatusNeedsRevision QuestionStatus = "needs_revision"
)

// inPendingBucket reports whether the status is counted in a batch's pendingCount.
func (s QuestionStatus) inPendingBucket() bool {
	return s == StatusPending || s == StatusNeedsRevision
}

// TemplateQuestion is a persisted, moderatable question produced by a template batch.
type TemplateQuestion struct {
	Question

	ID         string `json:"id"`
	Interest   string `json:"interest"`
	Level      Level  `json:"level"`
	GameMode   string `json:"gameMode"`
	Difficulty string `json:"difficulty"`

	BatchID       string `json:"batchId"`
	BatchNumber   int    `json:"batchNumber"`
	QuestionIndex int    `json:"questionIndex"`

	Status          QuestionStatus `json:"status"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       *time.Time     `json:"updatedAt,omitempty"`
	ApprovedAt      *time.Time     `json:"approvedAt,omitempty"`
	ApprovedBy      string         `json:"approvedBy,omitempty"`
	RejectedAt      *time.Time     `json:"rejectedAt,omitempty"`
	RejectionReason string         `json:"rejectionReason,omitempty"`
}

// PoolID is the approved pool key this question counts towards.
func (q *TemplateQuestion) PoolID() string {
	return PoolID(q.Interest, q.Level, q.GameMode)
}

// BatchStatus is derived from a batch's counters after every counter mutation.
type BatchStatus string

const (
	BatchAllPending        BatchStatus = "all_pending"
	BatchPartiallyApproved BatchStatus = "partially_approved"
	BatchAllApproved       BatchStatus = "all_approved"
	BatchAllRejected       BatchStatus = "all_rejected"
)

// TemplateBatch aggregates one generation run for a (interest, level, mode) cell.
// ApprovedCount + PendingCount + RejectedCount == TotalQuestions at all times.
type TemplateBatch struct {
	ID          string `json:"id"`
	Interest    string `json:"interest"`
	Level       Level  `json:"level"`
	GameMode    string `json:"gameMode"`
	Difficulty  string `json:"difficulty"`
	BatchNumber int    `json:"batchNumber"`

	TotalQuestions     int `json:"totalQuestions"`
	RequestedQuestions int `json:"requestedQuestions"`
	ApprovedCount      int `json:"approvedCount"`
	PendingCount       int `json:"pendingCount"`
	RejectedCount      int `json:"rejectedCount"`

	Status         BatchStatus `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
	LastReviewedAt *time.Time  `json:"lastReviewedAt,omitempty"`
	GeneratedBy    string      `json:"generatedBy,omitempty"`
}

// ApprovedQuestionPool tracks approved questions per (interest, level, mode).
type ApprovedQuestionPool struct {
	ID             string    `json:"id"`
	Interest       string    `json:"interest"`
	Level          Level     `json:"level"`
	GameMode       string    `json:"gameMode"`
	Difficulty     string    `json:"difficulty"`
	TotalQuestions int       `json:"totalQuestions"`
	SourceBatches  []string  `json:"sourceBatches"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// RunStatus is the state of a per-user personalized generation
type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

func (s RunStatus) terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// GenerationRun tracks personalized quiz generation for one user.
type GenerationRun struct {
	UserID       string     `json:"userId"`
	Interests    []string   `json:"interests"`
	Status       RunStatus  `json:"status"`
	Progress     int        `json:"progress"`
	Total        int        `json:"total"`
	CurrentBatch int        `json:"currentBatch"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// QuizSetStatus represents the review state of a personalized quiz set
type QuizSetStatus string

const (
	QuizSetPending      QuizSetStatus = "pending"
	QuizSetApproved     QuizSetStatus = "approved"
	QuizSetRegenerating QuizSetStatus = "regenerating"
)

// QuizSet is a finished 15-question quiz assigned to one user.
type QuizSet struct {
	ID                string        `json:"id"`
	UserID            string        `json:"userId"`
	Level             Level         `json:"level"`
	GameMode          string        `json:"gameMode"`
	Difficulty        string        `json:"difficulty"`
	Interests         []string      `json:"interests"`
	Questions         []Question    `json:"questions"`
	Status            QuizSetStatus `json:"status"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
	ApprovedAt        *time.Time    `json:"approvedAt,omitempty"`
	RegeneratedAt     *time.Time    `json:"regeneratedAt,omitempty"`
	RegenerationError string        `json:"regenerationError,omitempty"`
}

// User is the learner profile generation reads interests from.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Interests []string  `json:"interests"`
	CreatedAt time.Time `json:"createdAt"`
}
