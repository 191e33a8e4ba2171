package ai_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cinegenius-server/internal/ai"
	"cinegenius-server/internal/mocks"
	"cinegenius-server/internal/models"
)

func TestWithJournal_NilRecorderReturnsClient(t *testing.T) {
	client := mocks.NewMockClient(t)
	assert.Same(t, client, ai.WithJournal(client, nil, zap.NewNop()))
}

func TestWithJournal_RecordsSuccess(t *testing.T) {
	client := mocks.NewMockClient(t)
	recorder := mocks.NewMockResultRecorder(t)

	req := ai.Request{Task: models.TaskParseScript, SessionID: "s-1", Prompt: "script"}
	client.On("Invoke", mock.Anything, req).
		Return(ai.Outcome{Text: `{"title":"T"}`, Model: "m", Usage: ai.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}}, nil).Once()
	client.On("Backend").Return("gemini")
	recorder.On("Save", mock.Anything, mock.MatchedBy(func(r *models.GenerationResult) bool {
		return r.ID != "" &&
			r.SessionID == "s-1" &&
			r.Task == models.TaskParseScript &&
			r.Backend == "gemini" &&
			r.RawOutput == `{"title":"T"}` &&
			r.ErrorKind == "" &&
			r.PromptTokens == 3 &&
			r.CompletionTokens == 2 &&
			!r.CompletedAt.Before(r.CreatedAt)
	})).Return(nil).Once()

	out, err := ai.WithJournal(client, recorder, zap.NewNop()).Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"title":"T"}`, out.Text)
}

func TestWithJournal_RecordsFailureAndIgnoresSaveError(t *testing.T) {
	client := mocks.NewMockClient(t)
	recorder := mocks.NewMockResultRecorder(t)

	invokeErr := errors.Join(models.ErrTransportFailure, errors.New("timeout"))
	client.On("Invoke", mock.Anything, mock.Anything).Return(ai.Outcome{}, invokeErr).Once()
	client.On("Backend").Return("openai")
	recorder.On("Save", mock.Anything, mock.MatchedBy(func(r *models.GenerationResult) bool {
		return r.ErrorKind == "transport_failure" && r.Error != ""
	})).Return(errors.New("db is down")).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ai.WithJournal(client, recorder, zap.NewNop()).Invoke(ctx, ai.Request{Task: models.TaskGenerateSchedule})
	assert.ErrorIs(t, err, models.ErrTransportFailure)
}
