package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"phaze17/dashboard/internal/models"
	"phaze17/dashboard/internal/repository"
	"phaze17/dashboard/internal/service"
)

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

const adminToken = "token-" + adminID
const analystToken = "token-" + analystID

func TestUsersRequireBearer(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.api(http.MethodGet, "/api/v1/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, rec).Error.Code)

	rec = env.api(http.MethodGet, "/api/v1/users", "token-"+otherID, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListUsers(t *testing.T) {
	env := newTestEnv(t, nil)
	env.users.On("List", mock.Anything, repository.ListParams{Page: 2, Limit: 5, SortBy: "name", Order: "asc", Search: "ada"}).
		Return([]models.User{{ID: adminID, Email: "admin@phaze17.com", FullName: "Ada Admin"}},
			service.Pagination{Page: 2, Limit: 5, TotalItems: 6, TotalPages: 2, HasPrev: true}, nil)

	rec := env.api(http.MethodGet, "/api/v1/users?page=2&limit=5&sort_by=name&order=asc&search=ada", analystToken, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data       []map[string]any `json:"data"`
		Pagination map[string]any   `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Ada Admin", body.Data[0]["name"])
	assert.Equal(t, float64(6), body.Pagination["total_items"])
	assert.Equal(t, true, body.Pagination["has_prev"])
	env.users.AssertExpectations(t)
}

func TestListUsersRejectsBadQuery(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.api(http.MethodGet, "/api/v1/users?limit=500&sort_by=password", analystToken, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Contains(t, body.Error.Details, "limit")
	assert.Contains(t, body.Error.Details, "sort_by")
	env.users.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestCreateUser(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.users.On("Create", mock.Anything, service.CreateUserInput{
			Email: "new@phaze17.com", Password: "longenough", FullName: "Jane Smith",
		}).Return(models.User{ID: otherID, Email: "new@phaze17.com", FullName: "Jane Smith", Role: models.UserRoleOperator}, nil)

		rec := env.api(http.MethodPost, "/api/v1/users", adminToken,
			`{"email":"new@phaze17.com","name":"Jane Smith","password":"longenough"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"role":"operator"`)
	})

	t.Run("validation", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.api(http.MethodPost, "/api/v1/users", adminToken, `{"email":"nope","name":"J","password":"short"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
		for _, field := range []string{"email", "name", "password"} {
			assert.Contains(t, body.Error.Details, field)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.api(http.MethodPost, "/api/v1/users", adminToken, `{"email":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_REQUEST", decodeError(t, rec).Error.Code)
	})

	t.Run("duplicate email", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.users.On("Create", mock.Anything, mock.Anything).Return(models.User{}, repository.ErrEmailTaken)

		rec := env.api(http.MethodPost, "/api/v1/users", adminToken,
			`{"email":"admin@phaze17.com","name":"Ada Again","password":"longenough"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, "User with this email already exists", body.Error.Message)
		assert.Equal(t, "admin@phaze17.com", body.Error.Details["email"])
	})

	t.Run("admin only", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.api(http.MethodPost, "/api/v1/users", analystToken,
			`{"email":"new@phaze17.com","name":"Jane Smith","password":"longenough"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		env.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestGetUser(t *testing.T) {
	env := newTestEnv(t, nil)
	env.users.On("Get", mock.Anything, otherID).Return(models.User{}, repository.ErrUserNotFound)

	rec := env.api(http.MethodGet, "/api/v1/users/"+otherID, analystToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", decodeError(t, rec).Error.Message)

	rec = env.api(http.MethodGet, "/api/v1/users/not-a-uuid", analystToken, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpdateUserSelfOrAdmin(t *testing.T) {
	env := newTestEnv(t, nil)
	name := "Ana Renamed"
	env.users.On("Update", mock.Anything, analystID, repository.UserUpdate{FullName: &name}).
		Return(models.User{ID: analystID, FullName: name}, nil)

	rec := env.api(http.MethodPut, "/api/v1/users/"+analystID, analystToken, `{"name":"Ana Renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), name)

	rec = env.api(http.MethodPut, "/api/v1/users/"+adminID, analystToken, `{"name":"Nope"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteUser(t *testing.T) {
	env := newTestEnv(t, nil)
	env.users.On("Delete", mock.Anything, otherID).Return(nil)

	rec := env.api(http.MethodDelete, "/api/v1/users/"+otherID, adminToken, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = env.api(http.MethodDelete, "/api/v1/users/"+otherID, analystToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	env.users.AssertNumberOfCalls(t, "Delete", 1)
}

func TestUpdateUserRole(t *testing.T) {
	env := newTestEnv(t, nil)
	env.users.On("UpdateRole", mock.Anything, analystID, models.UserRoleCampaignManager).
		Return(models.User{ID: analystID, Role: models.UserRoleCampaignManager}, nil)

	rec := env.api(http.MethodPatch, "/api/v1/users/"+analystID+"/role", adminToken, `{"role":"campaign_manager"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"role":"campaign_manager"`)

	rec = env.api(http.MethodPatch, "/api/v1/users/"+analystID+"/role", adminToken, `{"role":"superuser"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestServiceFailureIsInternal(t *testing.T) {
	env := newTestEnv(t, nil)
	env.users.On("Get", mock.Anything, adminID).Return(models.User{}, errBoom)

	rec := env.api(http.MethodGet, "/api/v1/users/"+adminID, adminToken, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.NotContains(t, body.Error.Message, "boom")
}

func avatarRequest(t *testing.T, userID, token string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "me.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/users/"+userID+"/avatar", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestUploadAvatar(t *testing.T) {
	env := newTestEnv(t, fakeAvatars{})
	rec := env.do(avatarRequest(t, analystID, analystToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "avatars/"+analystID+"/me.png")

	env = newTestEnv(t, fakeAvatars{err: service.ErrTypeMismatch})
	rec = env.do(avatarRequest(t, analystID, analystToken))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error.Details, "file")
}
