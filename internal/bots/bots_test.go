package bots

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/rag"
)

// mockHandler implements MessageHandler for testing. Webhook handlers
// process messages on background goroutines, so calls are signalled
// through a channel.
type mockHandler struct {
	mu       sync.Mutex
	lastMsg  IncomingMessage
	called   chan struct{}
	response *OutgoingMessage
	err      error
}

func newMockHandler() *mockHandler {
	return &mockHandler{called: make(chan struct{}, 8)}
}

func (m *mockHandler) HandleMessage(_ context.Context, msg IncomingMessage) (*OutgoingMessage, error) {
	m.mu.Lock()
	m.lastMsg = msg
	m.mu.Unlock()
	m.called <- struct{}{}
	if m.err != nil {
		return nil, m.err
	}
	if m.response != nil {
		return m.response, nil
	}
	return &OutgoingMessage{
		ChannelID: msg.ChannelID,
		ThreadID:  msg.ThreadID,
		Text:      "mock response",
	}, nil
}

func (m *mockHandler) last() IncomingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMsg
}

func (m *mockHandler) waitCalled(t *testing.T) {
	t.Helper()
	select {
	case <-m.called:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
	}
}

func (m *mockHandler) assertNotCalled(t *testing.T) {
	t.Helper()
	select {
	case <-m.called:
		t.Error("handler should not have been called")
	case <-time.After(50 * time.Millisecond):
	}
}

// --- Processor tests ---

type fakeAnswerer struct {
	lastReq rag.Request
	answer  *rag.Answer
	err     error
}

func (f *fakeAnswerer) Answer(_ context.Context, req rag.Request) (*rag.Answer, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

type fakeGaps struct {
	question string
	role     access.Role
	calls    int
}

func (f *fakeGaps) RecordMiss(_ context.Context, question string, role access.Role) error {
	f.question = question
	f.role = role
	f.calls++
	return nil
}

type fakeBotAuditor struct {
	platform  string
	userID    string
	role      access.Role
	question  string
	noContext bool
	calls     int
}

func (f *fakeBotAuditor) BotTurn(_ context.Context, platform, externalUserID string, role access.Role, question string, noContext bool) {
	f.platform = platform
	f.userID = externalUserID
	f.role = role
	f.question = question
	f.noContext = noContext
	f.calls++
}

func answeredFixture() *rag.Answer {
	return &rag.Answer{
		Text:            "Travel is reimbursed up to 50 EUR per day.",
		StandaloneQuery: "what is the travel policy",
		Citations: []rag.Citation{
			{DocumentName: "travel-policy.md", Department: access.CollectionFinance, Score: 0.91},
			{DocumentName: "travel-policy.md", Department: access.CollectionFinance, Score: 0.88},
			{DocumentName: "expenses.md", Department: access.CollectionGeneral, Score: 0.80},
		},
	}
}

func TestProcessorStripsAskPrefix(t *testing.T) {
	pipeline := &fakeAnswerer{answer: answeredFixture()}
	p := NewProcessor(pipeline, access.RoleEmployee, nil)

	msg := IncomingMessage{
		Platform:  PlatformSlack,
		ChannelID: "C123",
		UserID:    "U456",
		Text:      "ask What is the travel policy?",
	}
	resp, err := p.HandleMessage(context.Background(), msg)
	if err != nil {
		t.Fatal(err)
	}

	if pipeline.lastReq.Message != "What is the travel policy?" {
		t.Errorf("pipeline question = %q", pipeline.lastReq.Message)
	}
	if pipeline.lastReq.Role != access.RoleEmployee {
		t.Errorf("pipeline role = %q", pipeline.lastReq.Role)
	}
	if len(pipeline.lastReq.History) != 0 {
		t.Errorf("bot turns must not carry history, got %d turns", len(pipeline.lastReq.History))
	}
	if !strings.Contains(resp.Text, "Travel is reimbursed") {
		t.Errorf("response missing answer: %q", resp.Text)
	}
	if !strings.Contains(resp.Text, "Sources: travel-policy.md, expenses.md") {
		t.Errorf("response missing deduplicated sources: %q", resp.Text)
	}
	if resp.ChannelID != "C123" {
		t.Errorf("ChannelID = %q", resp.ChannelID)
	}
}

func TestProcessorStripsQuestionMarkPrefix(t *testing.T) {
	pipeline := &fakeAnswerer{answer: answeredFixture()}
	p := NewProcessor(pipeline, access.RoleEmployee, nil)

	_, err := p.HandleMessage(context.Background(), IncomingMessage{Text: "? what is the travel policy"})
	if err != nil {
		t.Fatal(err)
	}
	if pipeline.lastReq.Message != "what is the travel policy" {
		t.Errorf("pipeline question = %q", pipeline.lastReq.Message)
	}
}

func TestProcessorPlainTextIsQuestion(t *testing.T) {
	pipeline := &fakeAnswerer{answer: answeredFixture()}
	p := NewProcessor(pipeline, access.RoleEmployee, nil)

	_, err := p.HandleMessage(context.Background(), IncomingMessage{Text: "what is the travel policy"})
	if err != nil {
		t.Fatal(err)
	}
	if pipeline.lastReq.Message != "what is the travel policy" {
		t.Errorf("pipeline question = %q", pipeline.lastReq.Message)
	}
}

func TestProcessorEmptyMessage(t *testing.T) {
	pipeline := &fakeAnswerer{answer: answeredFixture()}
	p := NewProcessor(pipeline, access.RoleEmployee, nil)

	resp, err := p.HandleMessage(context.Background(), IncomingMessage{Text: "   "})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Text, "Ask me a question") {
		t.Errorf("expected usage hint, got: %q", resp.Text)
	}
	if pipeline.lastReq.Message != "" {
		t.Error("pipeline should not run for empty messages")
	}
}

func TestProcessorNoContextRecordsGapAndAudits(t *testing.T) {
	pipeline := &fakeAnswerer{answer: &rag.Answer{
		Text:            "No relevant information was found in the knowledge base.",
		StandaloneQuery: "where is the moon base",
		NoContext:       true,
	}}
	gapRec := &fakeGaps{}
	auditor := &fakeBotAuditor{}
	p := NewProcessor(pipeline, access.RoleEmployee, nil).
		WithGapRecorder(gapRec).
		WithAuditor(auditor)

	msg := IncomingMessage{Platform: PlatformTeams, UserID: "user-7", Text: "where is the moon base?"}
	resp, err := p.HandleMessage(context.Background(), msg)
	if err != nil {
		t.Fatal(err)
	}

	if gapRec.calls != 1 {
		t.Fatalf("expected 1 gap recorded, got %d", gapRec.calls)
	}
	if gapRec.question != "where is the moon base" {
		t.Errorf("gap question = %q", gapRec.question)
	}
	if gapRec.role != access.RoleEmployee {
		t.Errorf("gap role = %q", gapRec.role)
	}

	if auditor.calls != 1 {
		t.Fatalf("expected 1 audit entry, got %d", auditor.calls)
	}
	if auditor.platform != "teams" || auditor.userID != "user-7" {
		t.Errorf("audit actor = %s:%s", auditor.platform, auditor.userID)
	}
	if !auditor.noContext {
		t.Error("audit noContext = false, want true")
	}

	if strings.Contains(resp.Text, "Sources:") {
		t.Errorf("no-context reply should not list sources: %q", resp.Text)
	}
}

func TestProcessorAnsweredTurnSkipsGap(t *testing.T) {
	pipeline := &fakeAnswerer{answer: answeredFixture()}
	gapRec := &fakeGaps{}
	auditor := &fakeBotAuditor{}
	p := NewProcessor(pipeline, access.RoleEmployee, nil).
		WithGapRecorder(gapRec).
		WithAuditor(auditor)

	if _, err := p.HandleMessage(context.Background(), IncomingMessage{Text: "travel policy?"}); err != nil {
		t.Fatal(err)
	}
	if gapRec.calls != 0 {
		t.Errorf("expected no gap for answered turn, got %d", gapRec.calls)
	}
	if auditor.calls != 1 || auditor.noContext {
		t.Errorf("audit calls=%d noContext=%v", auditor.calls, auditor.noContext)
	}
}

func TestProcessorPipelineError(t *testing.T) {
	pipeline := &fakeAnswerer{err: fmt.Errorf("provider unavailable")}
	gapRec := &fakeGaps{}
	auditor := &fakeBotAuditor{}
	p := NewProcessor(pipeline, access.RoleEmployee, nil).
		WithGapRecorder(gapRec).
		WithAuditor(auditor)

	resp, err := p.HandleMessage(context.Background(), IncomingMessage{Text: "travel policy?"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Text, "Something went wrong") {
		t.Errorf("expected apology, got: %q", resp.Text)
	}
	if gapRec.calls != 0 || auditor.calls != 0 {
		t.Error("failed turns must not be recorded or audited")
	}
}

func TestProcessorInvalidRoleFallsBackToEmployee(t *testing.T) {
	pipeline := &fakeAnswerer{answer: answeredFixture()}
	p := NewProcessor(pipeline, access.Role("superuser"), nil)

	if _, err := p.HandleMessage(context.Background(), IncomingMessage{Text: "hello"}); err != nil {
		t.Fatal(err)
	}
	if pipeline.lastReq.Role != access.RoleEmployee {
		t.Errorf("role = %q, want employee fallback", pipeline.lastReq.Role)
	}
}

// --- Gateway tests ---

func TestGatewayProcess(t *testing.T) {
	mock := newMockHandler()
	mock.response = &OutgoingMessage{ChannelID: "C123", Text: "hello from mock"}
	gw := NewGateway(mock)

	msg := IncomingMessage{
		Platform:  PlatformSlack,
		ChannelID: "C123",
		UserID:    "U456",
		Text:      "hello",
	}
	resp, err := gw.Process(context.Background(), msg)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "hello from mock" {
		t.Errorf("expected 'hello from mock', got %q", resp.Text)
	}
	if mock.last().Text != "hello" {
		t.Errorf("handler did not receive message, got text: %q", mock.last().Text)
	}
}

func TestGatewayProcessError(t *testing.T) {
	mock := newMockHandler()
	mock.err = fmt.Errorf("handler failure")
	gw := NewGateway(mock)

	_, err := gw.Process(context.Background(), IncomingMessage{Text: "hello"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "handler failure") {
		t.Errorf("unexpected error: %v", err)
	}
}

// --- Slack handler tests ---

func TestSlackURLVerification(t *testing.T) {
	handler := NewSlackHandler(NewGateway(newMockHandler()), "", "", nil)

	payload := `{"type":"url_verification","challenge":"test-challenge-123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/bots/slack/events", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleEvent(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["challenge"] != "test-challenge-123" {
		t.Errorf("expected challenge 'test-challenge-123', got %q", resp["challenge"])
	}
}

func TestSlackMessageEventAcksAndProcesses(t *testing.T) {
	mock := newMockHandler()
	handler := NewSlackHandler(NewGateway(mock), "", "", nil)

	payload := `{
		"type": "event_callback",
		"event": {
			"type": "message",
			"user": "U123",
			"text": "ask about the travel policy",
			"channel": "C456",
			"ts": "1234567890.123456",
			"thread_ts": "1234567890.000000"
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/bots/slack/events", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleEvent(w, req)

	// The ack must not wait for the answer.
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	mock.waitCalled(t)
	got := mock.last()
	if got.Platform != PlatformSlack {
		t.Errorf("expected platform slack, got %s", got.Platform)
	}
	if got.ChannelID != "C456" {
		t.Errorf("expected channel C456, got %s", got.ChannelID)
	}
	if got.UserID != "U123" {
		t.Errorf("expected user U123, got %s", got.UserID)
	}
	if got.Text != "ask about the travel policy" {
		t.Errorf("unexpected text %q", got.Text)
	}
	if got.ThreadID != "1234567890.000000" {
		t.Errorf("expected thread_ts, got %q", got.ThreadID)
	}
}

func TestSlackBotMessageSkipped(t *testing.T) {
	mock := newMockHandler()
	handler := NewSlackHandler(NewGateway(mock), "", "", nil)

	payload := `{
		"type": "event_callback",
		"event": {
			"type": "message",
			"bot_id": "B123",
			"text": "I am a bot",
			"channel": "C456"
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/bots/slack/events", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleEvent(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	mock.assertNotCalled(t)
}

func TestSlackEditedMessageSkipped(t *testing.T) {
	mock := newMockHandler()
	handler := NewSlackHandler(NewGateway(mock), "", "", nil)

	payload := `{
		"type": "event_callback",
		"event": {
			"type": "message",
			"subtype": "message_changed",
			"user": "U123",
			"text": "edited text",
			"channel": "C456"
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/bots/slack/events", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleEvent(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	mock.assertNotCalled(t)
}

func TestSlackNonMessageEventSkipped(t *testing.T) {
	mock := newMockHandler()
	handler := NewSlackHandler(NewGateway(mock), "", "", nil)

	payload := `{
		"type": "event_callback",
		"event": {
			"type": "reaction_added",
			"user": "U123",
			"channel": "C456"
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/bots/slack/events", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleEvent(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	mock.assertNotCalled(t)
}

func TestSlackInvalidJSON(t *testing.T) {
	handler := NewSlackHandler(NewGateway(newMockHandler()), "", "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/bots/slack/events", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleEvent(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func signSlackRequest(secret, timestamp, body string) string {
	base := fmt.Sprintf("v0:%s:%s", timestamp, body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestSlackSignatureMissingHeaders(t *testing.T) {
	handler := NewSlackHandler(NewGateway(newMockHandler()), "", "test-secret", nil)

	payload := `{"type":"url_verification","challenge":"c"}`
	req := httptest.NewRequest(http.MethodPost, "/api/bots/slack/events", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleEvent(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestSlackSignatureValid(t *testing.T) {
	secret := "test-secret"
	handler := NewSlackHandler(NewGateway(newMockHandler()), "", secret, nil)

	payload := `{"type":"url_verification","challenge":"signed-challenge"}`
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	req := httptest.NewRequest(http.MethodPost, "/api/bots/slack/events", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Slack-Request-Timestamp", timestamp)
	req.Header.Set("X-Slack-Signature", signSlackRequest(secret, timestamp, payload))
	w := httptest.NewRecorder()

	handler.HandleEvent(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["challenge"] != "signed-challenge" {
		t.Errorf("challenge = %q", resp["challenge"])
	}
}

func TestSlackSignatureStaleTimestamp(t *testing.T) {
	secret := "test-secret"
	handler := NewSlackHandler(NewGateway(newMockHandler()), "", secret, nil)

	payload := `{"type":"url_verification","challenge":"c"}`
	// Ten minutes old, outside the five minute replay window.
	timestamp := fmt.Sprintf("%d", time.Now().Add(-10*time.Minute).Unix())

	req := httptest.NewRequest(http.MethodPost, "/api/bots/slack/events", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Slack-Request-Timestamp", timestamp)
	req.Header.Set("X-Slack-Signature", signSlackRequest(secret, timestamp, payload))
	w := httptest.NewRecorder()

	handler.HandleEvent(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for stale timestamp, got %d", w.Code)
	}
}

func TestSlackSignatureTampered(t *testing.T) {
	secret := "test-secret"
	handler := NewSlackHandler(NewGateway(newMockHandler()), "", secret, nil)

	payload := `{"type":"url_verification","challenge":"c"}`
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	req := httptest.NewRequest(http.MethodPost, "/api/bots/slack/events", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Slack-Request-Timestamp", timestamp)
	req.Header.Set("X-Slack-Signature", signSlackRequest("other-secret", timestamp, payload))
	w := httptest.NewRecorder()

	handler.HandleEvent(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", w.Code)
	}
}

func TestSlackPostMessage(t *testing.T) {
	var gotAuth string
	var gotBody slackResponse
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	handler := NewSlackHandler(NewGateway(newMockHandler()), "xoxb-test", "", nil)
	handler.apiURL = server.URL

	err := handler.postMessage(context.Background(), &OutgoingMessage{
		ChannelID: "C456",
		Text:      "the answer",
		ThreadID:  "1234.5678",
	})
	if err != nil {
		t.Fatalf("postMessage: %v", err)
	}

	if gotAuth != "Bearer xoxb-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.Channel != "C456" || gotBody.Text != "the answer" || gotBody.ThreadTS != "1234.5678" {
		t.Errorf("posted payload = %+v", gotBody)
	}
}

func TestSlackPostMessageAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":false,"error":"channel_not_found"}`)
	}))
	defer server.Close()

	handler := NewSlackHandler(NewGateway(newMockHandler()), "xoxb-test", "", nil)
	handler.apiURL = server.URL

	err := handler.postMessage(context.Background(), &OutgoingMessage{ChannelID: "C456", Text: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "channel_not_found") {
		t.Errorf("unexpected error: %v", err)
	}
}

// --- Teams handler tests ---

func TestTeamsMessageActivityAcksAndProcesses(t *testing.T) {
	mock := newMockHandler()
	handler := NewTeamsHandler(NewGateway(mock), "", nil)

	payload := `{
		"type": "message",
		"id": "activity-1",
		"timestamp": "2024-01-15T12:00:00Z",
		"text": "tell me about the vacation policy",
		"from": {"id": "user-1", "name": "Alice"},
		"conversation": {"id": "conv-1"},
		"channelId": "msteams",
		"replyToId": "parent-1"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/bots/teams/activity", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleActivity(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	mock.waitCalled(t)
	got := mock.last()
	if got.Platform != PlatformTeams {
		t.Errorf("expected platform teams, got %s", got.Platform)
	}
	if got.ChannelID != "conv-1" {
		t.Errorf("expected channel conv-1, got %s", got.ChannelID)
	}
	if got.UserID != "user-1" {
		t.Errorf("expected user user-1, got %s", got.UserID)
	}
	if got.UserName != "Alice" {
		t.Errorf("expected username Alice, got %s", got.UserName)
	}
	if got.Text != "tell me about the vacation policy" {
		t.Errorf("unexpected text %q", got.Text)
	}
	if got.ThreadID != "parent-1" {
		t.Errorf("expected thread parent-1, got %s", got.ThreadID)
	}
}

func TestTeamsNonMessageActivitySkipped(t *testing.T) {
	mock := newMockHandler()
	handler := NewTeamsHandler(NewGateway(mock), "", nil)

	payload := `{
		"type": "conversationUpdate",
		"from": {"id": "user-1", "name": "Alice"},
		"conversation": {"id": "conv-1"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/bots/teams/activity", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleActivity(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	mock.assertNotCalled(t)
}

func TestTeamsInvalidJSON(t *testing.T) {
	handler := NewTeamsHandler(NewGateway(newMockHandler()), "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/bots/teams/activity", strings.NewReader("{invalid"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.HandleActivity(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestTeamsPostMessage(t *testing.T) {
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	handler := NewTeamsHandler(NewGateway(newMockHandler()), server.URL, nil)

	err := handler.postMessage(context.Background(), &OutgoingMessage{ChannelID: "conv-1", Text: "the answer"})
	if err != nil {
		t.Fatalf("postMessage: %v", err)
	}
	if gotBody["type"] != "message" || gotBody["text"] != "the answer" {
		t.Errorf("posted payload = %v", gotBody)
	}
}

func TestTeamsPostMessageErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	handler := NewTeamsHandler(NewGateway(newMockHandler()), server.URL, nil)

	err := handler.postMessage(context.Background(), &OutgoingMessage{ChannelID: "conv-1", Text: "x"})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

// --- Slack formatting test ---

func TestFormatSlackMessage(t *testing.T) {
	msg := &OutgoingMessage{
		ChannelID: "C123",
		Text:      "- item 1\n- item 2\nplain line",
		ThreadID:  "ts-1",
	}
	resp := formatSlackMessage(msg)
	if resp.Channel != "C123" {
		t.Errorf("expected channel C123, got %s", resp.Channel)
	}
	if resp.ThreadTS != "ts-1" {
		t.Errorf("expected thread_ts ts-1, got %s", resp.ThreadTS)
	}
	if !strings.Contains(resp.Text, "•") {
		t.Errorf("expected bullet formatting, got %q", resp.Text)
	}
}

func TestFormatSlackMessageNoThread(t *testing.T) {
	msg := &OutgoingMessage{
		ChannelID: "C123",
		Text:      "simple response",
	}
	resp := formatSlackMessage(msg)
	if resp.ThreadTS != "" {
		t.Errorf("expected empty thread_ts, got %s", resp.ThreadTS)
	}
}
