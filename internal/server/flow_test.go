package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"todoist/internal/taskstore"
	inmemory "todoist/repository/inmemory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flowClient struct {
	t   *testing.T
	api *TaskAPI
}

func (c flowClient) call(method, path, body, token string, want int) map[string]interface{} {
	c.t.Helper()
	auth := ""
	if token != "" {
		auth = "Bearer " + token
	}
	w := doRequest(c.api, method, path, body, auth)
	require.Equal(c.t, want, w.Code, w.Body.String())
	var out map[string]interface{}
	require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (c flowClient) signup(email string) string {
	c.t.Helper()
	body := c.call(http.MethodPost, "/auth/signup", `{"email":"`+email+`","password":"secret123","name":"Flow"}`, "", http.StatusCreated)
	return body["token"].(string)
}

func newFlowClient(t *testing.T) flowClient {
	gin.SetMode(gin.TestMode)
	repo := inmemory.NewStorage()
	api := NewTaskAPI(repo, taskstore.New(repo), testConfig())
	require.NotNil(t, api)
	return flowClient{t: t, api: api}
}

func TestTaskFlow(t *testing.T) {
	c := newFlowClient(t)
	alice := c.signup("alice@example.com")
	bob := c.signup("bob@example.com")

	c.call(http.MethodPost, "/auth/signup", `{"email":"ALICE@example.com","password":"secret123"}`, "", http.StatusConflict)
	login := c.call(http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"secret123"}`, "", http.StatusOK)
	require.NotEmpty(t, login["token"])

	created := c.call(http.MethodPost, "/tasks", `{"text":"  Buy milk  "}`, alice, http.StatusCreated)["task"].(map[string]interface{})
	id := created["id"].(string)
	assert.Equal(t, "Buy milk", created["text"])
	assert.Equal(t, false, created["completed"])
	assert.Equal(t, "none", created["priority"])
	assert.Equal(t, "inbox", created["view"])
	assert.Nil(t, created["formattedDeadline"])
	assert.Equal(t, map[string]interface{}{"day": "", "month": "", "year": ""}, created["deadline"])

	second := c.call(http.MethodPost, "/tasks", `{"text":"Call mom","priority":"high","deadline":{"day":"5","month":"1","year":"2027"},"formattedDeadline":"Jan 5, 2027","view":"today"}`, alice, http.StatusCreated)["task"].(map[string]interface{})
	assert.Equal(t, "Jan 5, 2027", second["formattedDeadline"])

	c.call(http.MethodPost, "/tasks", `{"text":"   "}`, alice, http.StatusBadRequest)

	list := c.call(http.MethodGet, "/tasks", "", alice, http.StatusOK)["tasks"].([]interface{})
	require.Len(t, list, 2)
	assert.Equal(t, second["id"], list[0].(map[string]interface{})["id"], "newest first")
	assert.Equal(t, id, list[1].(map[string]interface{})["id"])

	assert.Empty(t, c.call(http.MethodGet, "/tasks", "", bob, http.StatusOK)["tasks"])

	t.Run("other users see 404", func(t *testing.T) {
		assert.Equal(t, "Task not found", c.call(http.MethodGet, "/tasks/"+id, "", bob, http.StatusNotFound)["error"])
		c.call(http.MethodPut, "/tasks/"+id, `{"text":"hijacked"}`, bob, http.StatusNotFound)
		c.call(http.MethodDelete, "/tasks/"+id, "", bob, http.StatusNotFound)
		got := c.call(http.MethodGet, "/tasks/"+id, "", alice, http.StatusOK)["task"].(map[string]interface{})
		assert.Equal(t, "Buy milk", got["text"])
	})

	t.Run("partial update by presence", func(t *testing.T) {
		updated := c.call(http.MethodPut, "/tasks/"+second["id"].(string), `{"completed":true,"deadline":{"month":null}}`, alice, http.StatusOK)["task"].(map[string]interface{})
		assert.Equal(t, true, updated["completed"])
		assert.Equal(t, "Call mom", updated["text"])
		assert.Equal(t, "high", updated["priority"])
		assert.Equal(t, map[string]interface{}{"day": "5", "month": "", "year": "2027"}, updated["deadline"])
		assert.Equal(t, "Jan 5, 2027", updated["formattedDeadline"])
		assert.Equal(t, second["date"], updated["date"])

		updated = c.call(http.MethodPut, "/tasks/"+second["id"].(string), `{"completed":false,"priority":"","formattedDeadline":null}`, alice, http.StatusOK)["task"].(map[string]interface{})
		assert.Equal(t, false, updated["completed"])
		assert.Equal(t, "", updated["priority"])
		assert.Nil(t, updated["formattedDeadline"])

		unchanged := c.call(http.MethodPut, "/tasks/"+second["id"].(string), "", alice, http.StatusOK)["task"].(map[string]interface{})
		assert.Equal(t, updated, unchanged)

		c.call(http.MethodPut, "/tasks/"+second["id"].(string), `{"text":""}`, alice, http.StatusBadRequest)
		c.call(http.MethodPut, "/tasks/"+second["id"].(string), `{"completed":null}`, alice, http.StatusBadRequest)
		c.call(http.MethodPut, "/tasks/not-a-uuid", `{"completed":true}`, alice, http.StatusNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, "Task deleted successfully", c.call(http.MethodDelete, "/tasks/"+id, "", alice, http.StatusOK)["message"])
		c.call(http.MethodDelete, "/tasks/"+id, "", alice, http.StatusNotFound)
		c.call(http.MethodGet, "/tasks/"+id, "", alice, http.StatusNotFound)
	})

	t.Run("deleting the account removes its tasks", func(t *testing.T) {
		me := c.call(http.MethodGet, "/auth/me", "", alice, http.StatusOK)["user"].(map[string]interface{})
		assert.Equal(t, "alice@example.com", me["email"])

		c.call(http.MethodDelete, "/auth/me", "", alice, http.StatusOK)
		c.call(http.MethodGet, "/auth/me", "", alice, http.StatusNotFound)
		assert.Empty(t, c.call(http.MethodGet, "/tasks", "", alice, http.StatusOK)["tasks"])
		c.call(http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"secret123"}`, "", http.StatusUnauthorized)
	})
}
