package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack/slackevents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/channel"
	"github.com/ragline/ragline/internal/knowledge"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/rag"
	"github.com/ragline/ragline/internal/testutil"
	"github.com/ragline/ragline/internal/user"
)

const testSigningSecret = "test-signing-secret"

type scriptedChat struct {
	reply string
	err   error
}

func (c *scriptedChat) Chat(context.Context, string, string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

type fakeResearch struct {
	urls   []string
	topics []string
}

func (f *fakeResearch) AddURL(_ context.Context, url string) string {
	f.urls = append(f.urls, url)
	return "✅ Added content from Example\nAdded 2 chunks from document\nSource: " + url
}

func (f *fakeResearch) ResearchTopic(_ context.Context, topic string, _ int) string {
	f.topics = append(f.topics, topic)
	return fmt.Sprintf("✅ Researched '%s':\nAdded abstract about %s", topic, topic)
}

type recordingSlack struct {
	events []slackevents.EventsAPIEvent
}

func (r *recordingSlack) HandleEvent(_ context.Context, event slackevents.EventsAPIEvent) {
	r.events = append(r.events, event)
}

type testServer struct {
	handler  http.Handler
	research *fakeResearch
	slack    *recordingSlack
	users    *user.Store
}

// newTestServer builds the full HTTP stack over in-memory stores and a
// scripted model.
func newTestServer(t *testing.T, chat *scriptedChat) *testServer {
	t.Helper()

	store := knowledge.NewInMemory(&testutil.WordEmbedder{}, log.NewNop())
	engine, err := rag.NewEngine(store, chat, log.NewNop(), rag.Options{ChunkSize: 50, ChunkOverlap: 10})
	require.NoError(t, err)

	users, err := user.Open(":memory:", store, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { users.Close() })

	userEngine := rag.NewUserEngine(store, chat, users, log.NewNop(), rag.Options{})
	research := &fakeResearch{}
	slackBot := &recordingSlack{}

	srv := NewServer(
		Config{SlackSigningSecret: testSigningSecret, RateLimitRPS: 1000, RateLimitBurst: 1000},
		log.NewNop(),
		engine,
		research,
		channel.NewMessagingBot(users, userEngine, log.NewNop()),
		channel.NewVoiceAgent(engine, log.NewNop()),
		slackBot,
	)

	return &testServer{handler: srv.Handler(), research: research, slack: slackBot, users: users}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(body)
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRoot(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "RAG Bot API is running!", body["message"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "operational", body["rag_system"])
	assert.Equal(t, "enabled", body["slack_bot"])
	assert.Equal(t, "enabled", body["whatsapp_bot"])
	assert.Equal(t, "enabled", body["voice_agent"])
}

func multipartUpload(t *testing.T, filename, contentType, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadThenQuery(t *testing.T) {
	chat := &scriptedChat{reply: "The audit runs weekly."}
	ts := newTestServer(t, chat)

	rec := ts.do(multipartUpload(t, "ops.txt", "text/plain",
		"the warehouse audit procedure runs weekly every monday morning"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "Added 1 chunks from document", body["message"])
	assert.Equal(t, "ops.txt", body["filename"])

	rec = ts.do(jsonRequest(http.MethodPost, "/query", map[string]string{"question": "how often is the audit"}))
	require.Equal(t, http.StatusOK, rec.Code)

	body = decodeBody(t, rec)
	assert.Equal(t, "how often is the audit", body["question"])
	assert.Equal(t, chat.reply, body["answer"])
}

func TestUpload_MissingFile(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")

	rec := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_BrokenPDF(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	rec := ts.do(multipartUpload(t, "broken.pdf", "application/pdf", "not a pdf at all"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code, "pdf uploads take the extraction path")
}

func TestQuery_MissingQuestion(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	rec := ts.do(jsonRequest(http.MethodPost, "/query", map[string]string{}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Question is required", decodeBody(t, rec)["error"])
}

func TestQuery_EmptyKnowledgeBase(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{reply: "unused"})

	rec := ts.do(jsonRequest(http.MethodPost, "/query", map[string]string{"question": "anything"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["answer"], "I couldn't find any relevant information")
}

func TestStats(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["total_documents"])
	assert.Equal(t, "documents", body["collection_name"])
}

func TestResearchURL(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	rec := ts.do(jsonRequest(http.MethodPost, "/research/url", map[string]string{"url": "https://example.com/article"}))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Contains(t, body["result"], "✅ Added content")
	assert.Equal(t, "https://example.com/article", body["url"])
	assert.Equal(t, []string{"https://example.com/article"}, ts.research.urls)
}

func TestResearchURL_Missing(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	rec := ts.do(jsonRequest(http.MethodPost, "/research/url", map[string]string{}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "URL is required", decodeBody(t, rec)["error"])
}

func TestResearchTopic(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	rec := ts.do(jsonRequest(http.MethodPost, "/research/topic", map[string]any{"topic": "bees", "num_sources": 2}))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "bees", body["topic"])
	assert.Equal(t, []string{"bees"}, ts.research.topics)
}

func TestResearchTopic_Missing(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	rec := ts.do(jsonRequest(http.MethodPost, "/research/topic", map[string]string{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWhatsAppWebhook_StatsForNewNumber(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	rec := ts.do(formRequest("/whatsapp/webhook", url.Values{
		"From": {"whatsapp:+15550001111"},
		"Body": {"stats"},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, "<Response><Message>")
	// A number never seen before answers with a fresh zero-document profile.
	assert.Contains(t, out, "Document chunks: 0")
	assert.Contains(t, out, "Name: User_")
}

func TestWhatsAppWebhook_Query(t *testing.T) {
	chat := &scriptedChat{reply: "Here is what I know."}
	ts := newTestServer(t, chat)

	rec := ts.do(formRequest("/whatsapp/webhook", url.Values{
		"From": {"whatsapp:+15550001111"},
		"Body": {"what do you know"},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "RAG Bot Response:")
	assert.Contains(t, rec.Body.String(), chat.reply)

	// The whatsapp: prefix was stripped before resolving the user.
	_, err := ts.users.Get(context.Background(), user.HashPhone("+15550001111"))
	assert.NoError(t, err)
}

func TestSMSWebhook_SeparateChannel(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{reply: "ok"})
	ctx := context.Background()

	ts.do(formRequest("/whatsapp/webhook", url.Values{"From": {"whatsapp:+15550001111"}, "Body": {"via whatsapp"}}))
	ts.do(formRequest("/sms/webhook", url.Values{"From": {"+15550001111"}, "Body": {"via sms"}}))

	id := user.HashPhone("+15550001111")
	waMsgs, err := ts.users.RecentMessages(ctx, id, channel.ChannelWhatsApp, 10)
	require.NoError(t, err)
	smsMsgs, err := ts.users.RecentMessages(ctx, id, channel.ChannelSMS, 10)
	require.NoError(t, err)
	assert.Len(t, waMsgs, 2)
	assert.Len(t, smsMsgs, 2)
}

func TestVoiceWebhook(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	rec := ts.do(formRequest("/voice/webhook", url.Values{
		"From":    {"+15550001111"},
		"CallSid": {"CA123"},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Welcome to the RAG Bot voice assistant")
	assert.Contains(t, rec.Body.String(), `<Gather input="speech"`)
}

func TestVoiceProcess_EmptySpeech(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	rec := ts.do(formRequest("/voice/process", url.Values{
		"CallSid":      {"CA123"},
		"SpeechResult": {""},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Redirect>/voice/webhook</Redirect>")
}

func signedSlackRequest(t *testing.T, body string) *http.Request {
	t.Helper()

	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(testSigningSecret))
	fmt.Fprintf(mac, "v0:%s:%s", ts, body)
	sig := "v0=" + hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", sig)
	return req
}

func TestSlackEvents_URLVerification(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	rec := ts.do(signedSlackRequest(t, `{"type":"url_verification","challenge":"abc123"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc123", rec.Body.String())
	assert.Empty(t, ts.slack.events, "handshake never reaches the bot")
}

func TestSlackEvents_Dispatch(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	body := `{"type":"event_callback","event":{"type":"app_mention","user":"U1","text":"<@UBOT> hi","channel":"C1"}}`
	rec := ts.do(signedSlackRequest(t, body))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, ts.slack.events, 1)
	assert.Equal(t, slackevents.CallbackEvent, ts.slack.events[0].Type)
}

func TestSlackEvents_BadSignature(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(`{"type":"event_callback"}`))
	req.Header.Set("X-Slack-Request-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")

	rec := ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, ts.slack.events)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/query", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUnknownPath(t *testing.T) {
	ts := newTestServer(t, &scriptedChat{})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
