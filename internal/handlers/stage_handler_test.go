package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makedeal/internal/authz"
	"makedeal/internal/models"
)

func TestStageCatalogEndpoints(t *testing.T) {
	f := newAPI(t)

	w := f.call(t, http.MethodGet, "/stages", "alice", authz.RoleSales, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stages []models.StageDefinition
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stages))
	assert.Len(t, stages, 5)

	negotiation := gin.H{"key": "negotiation", "display_name": "Negotiation", "sort_order": 25, "default_probability": 60}
	assert.Equal(t, http.StatusForbidden,
		f.call(t, http.MethodPost, "/stages", "alice", authz.RoleSales, negotiation).Code)

	w = f.call(t, http.MethodPost, "/stages", "root", authz.RoleAdmin, negotiation)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, http.StatusConflict,
		f.call(t, http.MethodPost, "/stages", "root", authz.RoleAdmin, negotiation).Code)

	assert.Equal(t, http.StatusBadRequest,
		f.call(t, http.MethodPost, "/stages", "root", authz.RoleAdmin, gin.H{"key": "x", "default_probability": 150}).Code)

	negotiation["display_name"] = "Final Negotiation"
	w = f.call(t, http.MethodPut, "/stages/negotiation", "root", authz.RoleAdmin, negotiation)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, http.StatusBadRequest,
		f.call(t, http.MethodPut, "/stages/closing", "root", authz.RoleAdmin, negotiation).Code)

	w = f.call(t, http.MethodPut, "/stages/order", "root", authz.RoleAdmin,
		gin.H{"keys": []string{"sourcing", "negotiation", "screening", "closing", "closed_won", "closed_lost"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stages))
	assert.Equal(t, "negotiation", stages[1].Key)
	assert.Equal(t, 20, stages[1].SortOrder)

	assert.Equal(t, http.StatusConflict,
		f.call(t, http.MethodDelete, "/stages/sourcing", "root", authz.RoleAdmin, nil).Code, "deals still reference sourcing")
	assert.Equal(t, http.StatusNoContent,
		f.call(t, http.MethodDelete, "/stages/negotiation", "root", authz.RoleAdmin, nil).Code)
	assert.Equal(t, http.StatusNotFound,
		f.call(t, http.MethodDelete, "/stages/negotiation", "root", authz.RoleAdmin, nil).Code)
}
