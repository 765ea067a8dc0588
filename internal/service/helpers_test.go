package service

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/rs/zerolog"

	"github.com/degun-osint/brainnotfound-go-api/internal/models"
	"github.com/degun-osint/brainnotfound-go-api/pkg/ai"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// scriptedCompleter returns canned replies in order, or a fixed error.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
	prompts []string
}

func (c *scriptedCompleter) Complete(_ context.Context, req ai.CompletionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if len(req.Messages) > 0 {
		c.prompts = append(c.prompts, req.Messages[len(req.Messages)-1].Content)
	}
	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) == 0 {
		return "", nil
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

func (c *scriptedCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// recordingNotifier captures emitted events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Emit(_ context.Context, room, event string, payload interface{}) {
	body, _ := json.Marshal(payload)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, Event{Room: room, Name: event, Payload: body, SentAt: time.Now()})
}

func (n *recordingNotifier) Subscribe(string) (<-chan Event, func()) {
	channel := make(chan Event)
	close(channel)
	return channel, func() {}
}

func (n *recordingNotifier) Start(context.Context) {}

func (n *recordingNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, evt := range n.events {
		out = append(out, evt.Name)
	}
	return out
}

func (n *recordingNotifier) has(name string) bool {
	for _, evt := range n.names() {
		if evt == name {
			return true
		}
	}
	return false
}

// fakeResponseRepo is an in-memory QuizResponseRepository. Reads emulate
// the repository preloads by attaching the quiz and per-answer questions.
type fakeResponseRepo struct {
	mu        sync.Mutex
	responses map[uint]models.QuizResponse
	quizzes   map[uint]models.Quiz
	nextID    uint
}

func newFakeResponseRepo(quizzes ...models.Quiz) *fakeResponseRepo {
	repo := &fakeResponseRepo{
		responses: make(map[uint]models.QuizResponse),
		quizzes:   make(map[uint]models.Quiz),
		nextID:    1,
	}
	for _, quiz := range quizzes {
		repo.quizzes[quiz.ID] = quiz
	}
	return repo
}

func (r *fakeResponseRepo) preload(response models.QuizResponse) models.QuizResponse {
	quiz, ok := r.quizzes[response.QuizID]
	if !ok {
		return response
	}
	response.Quiz = quiz
	questions := make(map[uint]models.Question, len(quiz.Questions))
	for _, question := range quiz.Questions {
		questions[question.ID] = question
	}
	answers := append([]models.Answer(nil), response.Answers...)
	for i := range answers {
		answers[i].Question = questions[answers[i].QuestionID]
	}
	response.Answers = answers
	return response
}

func (r *fakeResponseRepo) GetByID(_ context.Context, id uint) (models.QuizResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	response, ok := r.responses[id]
	if !ok {
		return models.QuizResponse{}, gorm.ErrRecordNotFound
	}
	return r.preload(response), nil
}

func (r *fakeResponseRepo) ListByQuiz(_ context.Context, quizID uint) ([]models.QuizResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.QuizResponse
	for _, response := range r.responses {
		if response.QuizID == quizID {
			out = append(out, r.preload(response))
		}
	}
	return out, nil
}

func (r *fakeResponseRepo) Create(_ context.Context, response *models.QuizResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	response.ID = r.nextID
	r.nextID++
	for i := range response.Answers {
		response.Answers[i].ID = uint(i + 1)
		response.Answers[i].QuizResponseID = response.ID
	}
	r.responses[response.ID] = *response
	return nil
}

func (r *fakeResponseRepo) Update(_ context.Context, response *models.QuizResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.responses[response.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	// Answers are persisted through UpdateAnswer, mirroring the gorm Omit.
	updated := *response
	updated.Answers = stored.Answers
	r.responses[response.ID] = updated
	return nil
}

func (r *fakeResponseRepo) UpdateAnswer(_ context.Context, answer *models.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	response, ok := r.responses[answer.QuizResponseID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range response.Answers {
		if response.Answers[i].ID == answer.ID {
			question := response.Answers[i].Question
			response.Answers[i] = *answer
			response.Answers[i].Question = question
			r.responses[response.ID] = response
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// fakeQuizRepo is an in-memory QuizRepository.
type fakeQuizRepo struct {
	mu      sync.Mutex
	quizzes map[uint]models.Quiz
}

func newFakeQuizRepo(quizzes ...models.Quiz) *fakeQuizRepo {
	repo := &fakeQuizRepo{quizzes: make(map[uint]models.Quiz)}
	for _, quiz := range quizzes {
		repo.quizzes[quiz.ID] = quiz
	}
	return repo
}

func (r *fakeQuizRepo) GetByID(_ context.Context, id uint) (models.Quiz, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	quiz, ok := r.quizzes[id]
	if !ok {
		return models.Quiz{}, gorm.ErrRecordNotFound
	}
	return quiz, nil
}

func (r *fakeQuizRepo) Update(_ context.Context, quiz *models.Quiz) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quizzes[quiz.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.quizzes[quiz.ID] = *quiz
	return nil
}

// fakeTenantRepo is an in-memory TenantRepository.
type fakeTenantRepo struct {
	mu      sync.Mutex
	tenants map[uint]models.Tenant
}

func newFakeTenantRepo(tenants ...models.Tenant) *fakeTenantRepo {
	repo := &fakeTenantRepo{tenants: make(map[uint]models.Tenant)}
	for _, tenant := range tenants {
		repo.tenants[tenant.ID] = tenant
	}
	return repo
}

func (r *fakeTenantRepo) GetByID(_ context.Context, id uint) (models.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tenant, ok := r.tenants[id]
	if !ok {
		return models.Tenant{}, gorm.ErrRecordNotFound
	}
	return tenant, nil
}

func (r *fakeTenantRepo) Update(_ context.Context, tenant *models.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tenants[tenant.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.tenants[tenant.ID] = *tenant
	return nil
}

// countingMailer records sent mails.
type countingMailer struct {
	mu    sync.Mutex
	sent  int
	last  string
	fail  bool
	err   error
	calls []string
}

func (m *countingMailer) Send(to, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return m.err
	}
	m.sent++
	m.last = subject
	m.calls = append(m.calls, to)
	return nil
}

// fakeInterviewRepo is an in-memory InterviewRepository.
type fakeInterviewRepo struct {
	mu         sync.Mutex
	interviews map[uint]models.Interview
	sessions   map[uint]models.InterviewSession
	messages   map[uint][]models.InterviewMessage
	scores     map[uint][]models.CriterionScore
	nextID     uint
	nextMsgID  uint
}

func newFakeInterviewRepo(interviews ...models.Interview) *fakeInterviewRepo {
	repo := &fakeInterviewRepo{
		interviews: make(map[uint]models.Interview),
		sessions:   make(map[uint]models.InterviewSession),
		messages:   make(map[uint][]models.InterviewMessage),
		scores:     make(map[uint][]models.CriterionScore),
		nextID:     1,
		nextMsgID:  1,
	}
	for _, interview := range interviews {
		repo.interviews[interview.ID] = interview
	}
	return repo
}

func (r *fakeInterviewRepo) GetInterview(_ context.Context, id uint) (models.Interview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	interview, ok := r.interviews[id]
	if !ok {
		return models.Interview{}, gorm.ErrRecordNotFound
	}
	return interview, nil
}

func (r *fakeInterviewRepo) GetSession(_ context.Context, id uint) (models.InterviewSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return models.InterviewSession{}, gorm.ErrRecordNotFound
	}
	session.Interview = r.interviews[session.InterviewID]
	session.Messages = append([]models.InterviewMessage(nil), r.messages[id]...)
	session.Scores = append([]models.CriterionScore(nil), r.scores[id]...)
	return session, nil
}

func (r *fakeInterviewRepo) CreateSession(_ context.Context, session *models.InterviewSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session.ID = r.nextID
	r.nextID++
	r.sessions[session.ID] = *session
	return nil
}

func (r *fakeInterviewRepo) UpdateSession(_ context.Context, session *models.InterviewSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	stored := *session
	stored.Interview = models.Interview{}
	stored.Messages = nil
	stored.Scores = nil
	r.sessions[session.ID] = stored
	return nil
}

func (r *fakeInterviewRepo) AppendMessage(_ context.Context, message *models.InterviewMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	message.ID = r.nextMsgID
	r.nextMsgID++
	message.CreatedAt = time.Now()
	r.messages[message.SessionID] = append(r.messages[message.SessionID], *message)
	return nil
}

func (r *fakeInterviewRepo) SaveCriterionScore(_ context.Context, score *models.CriterionScore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores[score.SessionID] = append(r.scores[score.SessionID], *score)
	return nil
}

func (r *fakeInterviewRepo) DeleteCriterionScores(_ context.Context, sessionID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scores, sessionID)
	return nil
}
