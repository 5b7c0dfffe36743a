package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/parley-chat/parley/internal/directory"
	"github.com/parley-chat/parley/internal/handlers"
	"github.com/parley-chat/parley/internal/hub"
	"github.com/parley-chat/parley/internal/identity"
	"github.com/parley-chat/parley/internal/models"
	"github.com/parley-chat/parley/internal/msglog"
	"github.com/parley-chat/parley/internal/registry"
	"github.com/parley-chat/parley/internal/relay"
	"github.com/parley-chat/parley/internal/store"

	"github.com/parley-chat/parley/internal/api"
)

// newTestServer wires the full service over the in-memory store, with
// Redis and rate limiting disabled.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zerolog.Nop()

	db := store.NewMemoryStore()
	dir := directory.New(db)
	log := msglog.New(dir, logger)
	reg := registry.New()
	engine := relay.NewEngine(dir, log, reg, logger)
	ws := hub.NewHub(engine, reg, db, logger, nil)
	otp := identity.NewService(identity.LogSender{Logger: logger}, time.Minute)

	h := handlers.NewHandler(db, nil, dir, log, reg, engine, otp)
	router := api.NewRouter(logger, h, ws, nil, nil)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func registerUser(t *testing.T, srv *httptest.Server, phone, name string) string {
	t.Helper()
	resp, body := postJSON(t, srv.URL+"/register", map[string]string{
		"phone_number": phone,
		"name":         name,
	})
	require.Contains(t, []int{http.StatusOK, http.StatusCreated}, resp.StatusCode)
	return body["id"].(string)
}

func createDirectChat(t *testing.T, srv *httptest.Server, userA, userB string) string {
	t.Helper()
	resp, body := postJSON(t, srv.URL+"/chats/direct", map[string]string{
		"user_a": userA,
		"user_b": userB,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["id"].(string)
}

func TestRegisterIsIdempotentByPhone(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/register", map[string]string{
		"phone_number": "+15550001",
		"name":         "alice",
	})
	req.Equal(http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)
	req.NotEmpty(id)
	req.Equal("/users/"+id, body["profile_url"])

	resp, body = postJSON(t, srv.URL+"/register", map[string]string{
		"phone_number": "+15550001",
		"name":         "alice again",
	})
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(id, body["id"])
}

func TestRegisterRejectsBadPhone(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/register", map[string]string{
		"phone_number": "not-a-phone",
		"name":         "alice",
	})
	req.Equal(http.StatusBadRequest, resp.StatusCode)
	req.Contains(body["error"], "phone_number")
}

func TestGetUserProfile(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	id := registerUser(t, srv, "+15550001", "alice")

	resp, body := getJSON(t, srv.URL+"/users/"+id)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(id, body["id"])
	req.Equal("alice", body["name"])
	req.Equal(false, body["online"])
}

func TestDirectChatIsIdempotent(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	alice := registerUser(t, srv, "+15550001", "alice")
	bob := registerUser(t, srv, "+15550002", "bob")

	first := createDirectChat(t, srv, alice, bob)
	second := createDirectChat(t, srv, bob, alice)
	req.Equal(first, second)
}

func TestSendAndListMessages(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	alice := registerUser(t, srv, "+15550001", "alice")
	bob := registerUser(t, srv, "+15550002", "bob")
	chatID := createDirectChat(t, srv, alice, bob)

	resp, body := postJSON(t, srv.URL+"/chats/"+chatID+"/messages", map[string]string{
		"sender_id": alice,
		"content":   "hello bob",
	})
	req.Equal(http.StatusCreated, resp.StatusCode)
	req.Equal(float64(1), body["seq"])
	req.Equal(string(models.StatusSent), body["status"])
	msgID := body["message_id"].(string)
	req.NotEmpty(msgID)

	resp, body = postJSON(t, srv.URL+"/chats/"+chatID+"/messages", map[string]string{
		"sender_id": bob,
		"content":   "hi alice",
	})
	req.Equal(http.StatusCreated, resp.StatusCode)
	req.Equal(float64(2), body["seq"])

	// bob catches up from seq 0 and sees his own delivery status
	resp, body = getJSON(t, fmt.Sprintf("%s/chats/%s/messages?after_seq=0&user_id=%s", srv.URL, chatID, bob))
	req.Equal(http.StatusOK, resp.StatusCode)
	msgs := body["messages"].([]interface{})
	req.Len(msgs, 2)

	firstMsg := msgs[0].(map[string]interface{})
	req.Equal(msgID, firstMsg["id"])
	req.Equal(alice, firstMsg["sender_id"])
	req.Equal("hello bob", firstMsg["content"])
	req.Equal(string(models.StatusSent), firstMsg["status"])

	// after_seq filter is exclusive
	resp, body = getJSON(t, fmt.Sprintf("%s/chats/%s/messages?after_seq=1", srv.URL, chatID))
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Len(body["messages"].([]interface{}), 1)
}

func TestSendMessageErrors(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	alice := registerUser(t, srv, "+15550001", "alice")
	bob := registerUser(t, srv, "+15550002", "bob")
	mallory := registerUser(t, srv, "+15550003", "mallory")
	chatID := createDirectChat(t, srv, alice, bob)

	resp, body := postJSON(t, srv.URL+"/chats/0d9bd166-0000-4000-8000-000000000000/messages", map[string]string{
		"sender_id": alice,
		"content":   "hello",
	})
	req.Equal(http.StatusNotFound, resp.StatusCode)
	req.Equal("ChatNotFound", body["error"])

	resp, body = postJSON(t, srv.URL+"/chats/"+chatID+"/messages", map[string]string{
		"sender_id": mallory,
		"content":   "let me in",
	})
	req.Equal(http.StatusForbidden, resp.StatusCode)
	req.Equal("NotParticipant", body["error"])

	resp, _ = postJSON(t, srv.URL+"/chats/"+chatID+"/messages", map[string]string{
		"sender_id": alice,
		"content":   "",
	})
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestReadReceiptAdvancesStatus(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	alice := registerUser(t, srv, "+15550001", "alice")
	bob := registerUser(t, srv, "+15550002", "bob")
	chatID := createDirectChat(t, srv, alice, bob)

	_, body := postJSON(t, srv.URL+"/chats/"+chatID+"/messages", map[string]string{
		"sender_id": alice,
		"content":   "read me",
	})
	msgID := body["message_id"].(string)

	resp, _ := postJSON(t, srv.URL+"/messages/"+msgID+"/read", map[string]string{
		"user_id": bob,
	})
	req.Equal(http.StatusOK, resp.StatusCode)

	_, body = getJSON(t, fmt.Sprintf("%s/chats/%s/messages?user_id=%s", srv.URL, chatID, bob))
	msgs := body["messages"].([]interface{})
	req.Len(msgs, 1)
	req.Equal(string(models.StatusRead), msgs[0].(map[string]interface{})["status"])
}

func TestListChatsForUser(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	alice := registerUser(t, srv, "+15550001", "alice")
	bob := registerUser(t, srv, "+15550002", "bob")
	carol := registerUser(t, srv, "+15550003", "carol")

	createDirectChat(t, srv, alice, bob)
	resp, _ := postJSON(t, srv.URL+"/chats/group", map[string]interface{}{
		"participants": []string{alice, carol},
	})
	req.Equal(http.StatusCreated, resp.StatusCode)

	resp, body := getJSON(t, srv.URL+"/chats?user_id="+alice)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Len(body["chats"].([]interface{}), 2)

	resp, body = getJSON(t, srv.URL+"/chats?user_id="+carol)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Len(body["chats"].([]interface{}), 1)
}

func TestContacts(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	alice := registerUser(t, srv, "+15550001", "alice")
	bob := registerUser(t, srv, "+15550002", "bob")

	resp, _ := postJSON(t, srv.URL+"/contacts", map[string]string{
		"user_id":    alice,
		"contact_id": bob,
	})
	req.Equal(http.StatusCreated, resp.StatusCode)

	resp, body := getJSON(t, srv.URL+"/contacts?user_id="+alice)
	req.Equal(http.StatusOK, resp.StatusCode)
	contacts := body["contacts"].([]interface{})
	req.Len(contacts, 1)

	resp, body = postJSON(t, srv.URL+"/contacts", map[string]string{
		"user_id":    alice,
		"contact_id": "0d9bd166-0000-4000-8000-000000000000",
	})
	req.Equal(http.StatusNotFound, resp.StatusCode)
	req.Equal("UserNotFound", body["error"])
}

func TestOTPFlow(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/otp", map[string]string{
		"phone_number": "+15550001",
	})
	req.Equal(http.StatusOK, resp.StatusCode)

	resp, body := postJSON(t, srv.URL+"/otp/verify", map[string]string{
		"phone_number": "+15550001",
		"code":         "000000",
	})
	req.Equal(http.StatusForbidden, resp.StatusCode)
	req.NotEmpty(body["error"])
}

func TestRetireUser(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	id := registerUser(t, srv, "+15550001", "alice")

	httpReq, err := http.NewRequest(http.MethodDelete, srv.URL+"/users/"+id, nil)
	req.NoError(err)
	resp, err := http.DefaultClient.Do(httpReq)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	// the record survives as retired
	getResp, body := getJSON(t, srv.URL+"/users/"+id)
	req.Equal(http.StatusOK, getResp.StatusCode)
	req.Equal(id, body["id"])
}

func TestHealthAndStats(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t)

	resp, body := getJSON(t, srv.URL+"/health")
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("healthy", body["status"])

	registerUser(t, srv, "+15550001", "alice")

	resp, body = getJSON(t, srv.URL+"/stats")
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(float64(1), body["users"])
}
