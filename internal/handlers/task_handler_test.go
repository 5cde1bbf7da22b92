package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makedeal/internal/authz"
	"makedeal/internal/models"
)

func seedTasks(t *testing.T, f *apiFixture) {
	t.Helper()
	for _, task := range []models.Task{
		{ID: "t1", EntityID: "d1", EntityType: models.EntityTypeDeal, AssigneeID: "alice", Title: "Call seller", Status: models.StatusNew},
		{ID: "t2", EntityID: "d2", EntityType: models.EntityTypeDeal, AssigneeID: "bob", Title: "Book data room", Status: models.StatusInProgress},
		{ID: "t3", EntityID: "d1", EntityType: models.EntityTypeDeal, AssigneeID: "bob", Title: "Draft NDA", Status: models.StatusDone},
	} {
		task := task
		require.NoError(t, f.tasks.Store(context.Background(), &task))
	}
}

func decodeTasks(t *testing.T, body []byte) []models.Task {
	t.Helper()
	var out []models.Task
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func TestTaskListEndpoint(t *testing.T) {
	f := newAPI(t)
	seedTasks(t, f)

	w := f.call(t, http.MethodGet, "/tasks?deal_id=d1", "boss", authz.RoleManagement, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeTasks(t, w.Body.Bytes()), 2)

	// sales users only get their own tasks whatever they ask for
	w = f.call(t, http.MethodGet, "/tasks?assignee_id=bob", "alice", authz.RoleSales, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeTasks(t, w.Body.Bytes())
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].ID)

	w = f.call(t, http.MethodGet, "/tasks?status=bogus", "boss", authz.RoleManagement, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.call(t, http.MethodGet, "/pipeline/deals/d3/tasks", "boss", authz.RoleManagement, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestTaskStatusEndpoint(t *testing.T) {
	f := newAPI(t)
	seedTasks(t, f)

	w := f.call(t, http.MethodPatch, "/tasks/t1/status", "alice", authz.RoleSales, gin.H{"status": "in_progress"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var task models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	assert.Equal(t, models.StatusInProgress, task.Status)

	w = f.call(t, http.MethodPatch, "/tasks/t2/status", "alice", authz.RoleSales, gin.H{"status": "done"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.call(t, http.MethodPatch, "/tasks/t3/status", "boss", authz.RoleManagement, gin.H{"status": "new"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.call(t, http.MethodPatch, "/tasks/missing/status", "boss", authz.RoleManagement, gin.H{"status": "done"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.call(t, http.MethodPatch, "/tasks/t2/status", "auditor", authz.RoleAudit, gin.H{"status": "done"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLostDealCancelsTasksVisibleThroughAPI(t *testing.T) {
	f := newAPI(t)
	seedTasks(t, f)

	w := f.call(t, http.MethodPost, "/pipeline/deals/d1/transition", "alice", authz.RoleSales,
		gin.H{"to_stage": "closed_lost", "reason": "seller withdrew"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.call(t, http.MethodGet, "/pipeline/deals/d1/tasks", "boss", authz.RoleManagement, nil)
	require.Equal(t, http.StatusOK, w.Code)
	for _, task := range decodeTasks(t, w.Body.Bytes()) {
		switch task.ID {
		case "t1":
			assert.Equal(t, models.StatusCancelled, task.Status)
		case "t3":
			assert.Equal(t, models.StatusDone, task.Status)
		}
	}
}
