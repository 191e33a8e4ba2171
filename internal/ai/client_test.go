package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cinegenius-server/internal/config"
	"cinegenius-server/internal/models"
	"cinegenius-server/internal/schemas"
)

func testConfig(clientType, baseURL string) *config.Config {
	return &config.Config{
		AIClientType: clientType,
		AIAPIKey:     "test-key",
		AIBaseURL:    baseURL,
		AITextModel:  "test-model",
		AIImageModel: "test-image-model",
		AITimeout:    5 * time.Second,
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &m))
	return m
}

func writeChatCompletion(w http.ResponseWriter, content, finishReason string, totalTokens int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]interface{}{{
			"index":         0,
			"message":       map[string]interface{}{"role": "assistant", "content": content},
			"finish_reason": finishReason,
		}},
		"usage": map[string]interface{}{"prompt_tokens": totalTokens / 2, "completion_tokens": totalTokens - totalTokens/2, "total_tokens": totalTokens},
	})
}

func TestOpenAIClient_StructuredObject(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		got = decodeBody(t, r)
		writeChatCompletion(w, `{"title":"T"}`, "stop", 20)
	}))
	defer srv.Close()

	c := newOpenAIClient(testConfig("openai", srv.URL+"/v1"), zap.NewNop())
	entry := schemas.MustLookup(models.TaskParseScript)
	out, err := c.Invoke(context.Background(), Request{
		Task:        models.TaskParseScript,
		Instruction: "system",
		Prompt:      "script text",
		Schema:      &entry,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"T"}`, out.Text)
	assert.Equal(t, 20, out.Usage.TotalTokens)
	assert.False(t, out.Usage.Estimated)

	rf, ok := got["response_format"].(map[string]interface{})
	require.True(t, ok, "response_format must be sent for object schemas")
	assert.Equal(t, "json_schema", rf["type"])
	js := rf["json_schema"].(map[string]interface{})
	assert.Equal(t, "script_analysis", js["name"])
}

func TestOpenAIClient_ArraySchemaGoesToInstruction(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = decodeBody(t, r)
		writeChatCompletion(w, `[]`, "stop", 10)
	}))
	defer srv.Close()

	c := newOpenAIClient(testConfig("openai", srv.URL+"/v1"), zap.NewNop())
	entry := schemas.MustLookup(models.TaskGenerateShotList)
	_, err := c.Invoke(context.Background(), Request{Task: models.TaskGenerateShotList, Instruction: "director", Prompt: "scene", Schema: &entry})
	require.NoError(t, err)

	_, hasFormat := got["response_format"]
	assert.False(t, hasFormat)
	msgs := got["messages"].([]interface{})
	system := msgs[0].(map[string]interface{})
	assert.Equal(t, "system", system["role"])
	assert.Contains(t, system["content"], "director")
	assert.Contains(t, system["content"], `"shotNumber"`)
}

func TestOpenAIClient_Failures(t *testing.T) {
	t.Run("provider error is transport failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
		}))
		defer srv.Close()

		c := newOpenAIClient(testConfig("openai", srv.URL+"/v1"), zap.NewNop())
		_, err := c.Invoke(context.Background(), Request{Task: models.TaskAskScriptQuestion, Prompt: "q"})
		assert.ErrorIs(t, err, models.ErrTransportFailure)
	})

	t.Run("blank content is empty output", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeChatCompletion(w, "   ", "stop", 4)
		}))
		defer srv.Close()

		c := newOpenAIClient(testConfig("openai", srv.URL+"/v1"), zap.NewNop())
		_, err := c.Invoke(context.Background(), Request{Task: models.TaskAskScriptQuestion, Prompt: "q"})
		assert.ErrorIs(t, err, models.ErrEmptyOutput)
	})

	t.Run("content filter is transport failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeChatCompletion(w, "", "content_filter", 4)
		}))
		defer srv.Close()

		c := newOpenAIClient(testConfig("openai", srv.URL+"/v1"), zap.NewNop())
		_, err := c.Invoke(context.Background(), Request{Task: models.TaskAskScriptQuestion, Prompt: "q"})
		assert.ErrorIs(t, err, models.ErrTransportFailure)
	})
}

func TestOpenAIClient_TextAttachmentInlined(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = decodeBody(t, r)
		writeChatCompletion(w, "ok", "stop", 4)
	}))
	defer srv.Close()

	c := newOpenAIClient(testConfig("openai", srv.URL+"/v1"), zap.NewNop())
	_, err := c.Invoke(context.Background(), Request{
		Task:       models.TaskParseScript,
		Prompt:     "Analyze the attached script file",
		Attachment: &models.InlineData{Data: base64.StdEncoding.EncodeToString([]byte("INT. HOUSE - DAY")), MimeType: "text/plain"},
	})
	require.NoError(t, err)
	msgs := got["messages"].([]interface{})
	user := msgs[len(msgs)-1].(map[string]interface{})
	assert.True(t, strings.HasPrefix(user["content"].(string), "INT. HOUSE - DAY"))
}

func TestOpenAIClient_Image(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "b64_json", body["response_format"])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"created": 1,
			"data":    []map[string]interface{}{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		})
	}))
	defer srv.Close()

	c := newOpenAIClient(testConfig("openai", srv.URL+"/v1"), zap.NewNop())
	out, err := c.Invoke(context.Background(), Request{Task: models.TaskGenerateImageForShot, Prompt: "still", ExpectsImage: true})
	require.NoError(t, err)
	assert.Equal(t, png, out.Image)
	assert.Equal(t, "image/png", out.MIMEType)
}

func TestOllamaClient(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		got = decodeBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"test-model","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":"[]"},"done":true,"prompt_eval_count":7,"eval_count":3}`))
	}))
	defer srv.Close()

	c, err := newOllamaClient(testConfig("ollama", srv.URL+"/v1"), zap.NewNop())
	require.NoError(t, err)

	entry := schemas.MustLookup(models.TaskGenerateSchedule)
	out, err := c.Invoke(context.Background(), Request{Task: models.TaskGenerateSchedule, Instruction: "AD", Prompt: "scenes", Schema: &entry})
	require.NoError(t, err)
	assert.Equal(t, "[]", out.Text)
	assert.Equal(t, 10, out.Usage.TotalTokens)

	assert.Equal(t, false, got["stream"])
	format, ok := got["format"].(map[string]interface{})
	require.True(t, ok, "schema must be sent as format")
	assert.Equal(t, "array", format["type"])

	_, err = c.Invoke(context.Background(), Request{Task: models.TaskGenerateImageForShot, ExpectsImage: true})
	assert.ErrorIs(t, err, models.ErrTransportFailure)
}

func TestDecodeAttachment(t *testing.T) {
	_, err := decodeAttachment(&models.InlineData{Data: "%%%", MimeType: "application/pdf"})
	assert.True(t, errors.Is(err, models.ErrTransportFailure))

	data, err := decodeAttachment(&models.InlineData{Data: base64.StdEncoding.EncodeToString([]byte("x")), MimeType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

func TestNewClient_Unknown(t *testing.T) {
	_, err := NewClient(context.Background(), testConfig("bard", ""), zap.NewNop())
	assert.Error(t, err)
}
