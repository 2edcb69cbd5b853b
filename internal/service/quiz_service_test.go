package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyhub-io/studyhub-api/internal/dto"
	"github.com/studyhub-io/studyhub-api/internal/models"
	"github.com/studyhub-io/studyhub-api/pkg/config"
	appErrors "github.com/studyhub-io/studyhub-api/pkg/errors"
)

type mockQuizRepo struct {
	quizzes  map[string]*models.Quiz
	attempts []*models.QuizAttempt
}

func newMockQuizRepo() *mockQuizRepo {
	return &mockQuizRepo{quizzes: make(map[string]*models.Quiz)}
}

func (m *mockQuizRepo) Create(ctx context.Context, q *models.Quiz) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	clone := *q
	m.quizzes[q.ID] = &clone
	return nil
}

func (m *mockQuizRepo) FindByID(ctx context.Context, id string) (*models.Quiz, error) {
	q, ok := m.quizzes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *q
	return &clone, nil
}

func (m *mockQuizRepo) ListByMaterial(ctx context.Context, materialID string) ([]models.Quiz, error) {
	out := make([]models.Quiz, 0)
	for _, q := range m.quizzes {
		if q.MaterialID == materialID {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (m *mockQuizRepo) CreateAttempt(ctx context.Context, a *models.QuizAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *mockQuizRepo) ListAttempts(ctx context.Context, quizID, userID string) ([]models.QuizAttempt, error) {
	out := make([]models.QuizAttempt, 0)
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

type fakeGenerator struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

const sampleQuestionsJSON = `[
	{"prompt": "What is a graph?", "options": ["A set of vertices and edges", "A chart", "A matrix", "A tree"], "correct_index": 0, "explanation": "Graphs are vertex/edge structures."},
	{"prompt": "What is a cycle?", "options": ["A path", "A closed walk with no repeated vertices", "An edge", "A vertex"], "correct_index": 1, "explanation": "Cycles return to their start."}
]`

func newQuizFixture(t *testing.T, gen *fakeGenerator) (*QuizService, *mockQuizRepo, *materialFixture) {
	t.Helper()
	materials := newMaterialFixture(t)
	repo := newMockQuizRepo()
	svc := NewQuizService(repo, materials.svc, gen, config.QuizConfig{MaxQuestions: 10, DefaultQuestions: 5}, validator.New(), zap.NewNop())
	return svc, repo, materials
}

func readyMaterial(t *testing.T, f *materialFixture, ownerID string) *models.Material {
	t.Helper()
	material := &models.Material{
		OwnerID: ownerID,
		Scope:   models.ScopePublic,
		Title:   "Graph theory notes",
		Status:  models.MaterialStatusReady,
		Summary: "Vertices, edges, paths and cycles.",
	}
	require.NoError(t, f.repo.Create(context.Background(), material))
	return material
}

func TestQuizGenerate(t *testing.T) {
	gen := &fakeGenerator{response: sampleQuestionsJSON}
	svc, repo, materials := newQuizFixture(t, gen)
	material := readyMaterial(t, materials, "owner")
	claims := studentClaims("u1", "Engineering", "Computer Science")

	view, err := svc.Generate(context.Background(), claims, dto.GenerateQuizRequest{MaterialID: material.ID})
	require.NoError(t, err)
	require.Len(t, view.Questions, 2)
	assert.Equal(t, models.DifficultyMedium, view.Difficulty)
	assert.Len(t, view.Questions[0].Options, 4)

	stored := repo.quizzes[view.ID]
	require.NotNil(t, stored)
	assert.Equal(t, 0, stored.Questions[0].CorrectIndex)
}

func TestQuizGenerateRequiresReadyMaterial(t *testing.T) {
	gen := &fakeGenerator{response: sampleQuestionsJSON}
	svc, _, materials := newQuizFixture(t, gen)
	material := &models.Material{OwnerID: "owner", Scope: models.ScopePublic, Status: models.MaterialStatusProcessing}
	require.NoError(t, materials.repo.Create(context.Background(), material))

	_, err := svc.Generate(context.Background(), studentClaims("u1", "", ""), dto.GenerateQuizRequest{MaterialID: material.ID})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrMaterialNotReady.Code, appErr.Code)
	assert.Empty(t, gen.prompts)
}

func TestQuizGenerateUpstreamFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	svc, _, materials := newQuizFixture(t, gen)
	material := readyMaterial(t, materials, "owner")

	_, err := svc.Generate(context.Background(), studentClaims("u1", "", ""), dto.GenerateQuizRequest{MaterialID: material.ID})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAssistantUpstream.Code, appErr.Code)
}

func TestQuizViewWithholdsAnswers(t *testing.T) {
	gen := &fakeGenerator{response: sampleQuestionsJSON}
	svc, _, materials := newQuizFixture(t, gen)
	material := readyMaterial(t, materials, "owner")
	claims := studentClaims("u1", "", "")

	view, err := svc.Generate(context.Background(), claims, dto.GenerateQuizRequest{MaterialID: material.ID})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), claims, view.ID)
	require.NoError(t, err)
	for _, q := range got.Questions {
		assert.NotEmpty(t, q.Prompt)
		assert.NotEmpty(t, q.Options)
	}
}

func TestQuizSubmitAttemptScores(t *testing.T) {
	gen := &fakeGenerator{response: sampleQuestionsJSON}
	svc, repo, materials := newQuizFixture(t, gen)
	material := readyMaterial(t, materials, "owner")
	claims := studentClaims("u1", "", "")

	view, err := svc.Generate(context.Background(), claims, dto.GenerateQuizRequest{MaterialID: material.ID})
	require.NoError(t, err)

	result, err := svc.SubmitAttempt(context.Background(), claims, view.ID, dto.SubmitAttemptRequest{Answers: []int{0, 3}})
	require.NoError(t, err)
	assert.Equal(t, float64(50), result.Score)
	require.Len(t, result.Results, 2)
	assert.True(t, result.Results[0].Correct)
	assert.False(t, result.Results[1].Correct)
	assert.Equal(t, 1, result.Results[1].CorrectIndex)
	require.Len(t, repo.attempts, 1)
}

func TestQuizSubmitAttemptAnswerCountMismatch(t *testing.T) {
	gen := &fakeGenerator{response: sampleQuestionsJSON}
	svc, _, materials := newQuizFixture(t, gen)
	material := readyMaterial(t, materials, "owner")
	claims := studentClaims("u1", "", "")

	view, err := svc.Generate(context.Background(), claims, dto.GenerateQuizRequest{MaterialID: material.ID})
	require.NoError(t, err)

	_, err = svc.SubmitAttempt(context.Background(), claims, view.ID, dto.SubmitAttemptRequest{Answers: []int{0}})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "expected 2 answers")
}

func TestParseQuestionsToleratesFences(t *testing.T) {
	fenced := "Here you go:\n```json\n" + sampleQuestionsJSON + "\n```\n"
	questions, err := parseQuestions(fenced)
	require.NoError(t, err)
	assert.Len(t, questions, 2)
}

func TestParseQuestionsRejectsMalformed(t *testing.T) {
	_, err := parseQuestions(`[{"prompt": "", "options": ["a", "b"], "correct_index": 0}]`)
	require.Error(t, err)

	_, err = parseQuestions(`[{"prompt": "q", "options": ["a", "b"], "correct_index": 5}]`)
	require.Error(t, err)

	_, err = parseQuestions("no json here")
	require.Error(t, err)
}
