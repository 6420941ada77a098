package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"convo-service/internal/mocks"
	"convo-service/internal/models"
	"convo-service/internal/repositories"
)

var (
	testUserID  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testOtherID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	testConvID  = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func setupConversationRouter(handler *ConversationHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", testUserID)
		c.Next()
	})
	r.GET("/conversations", handler.ListConversations)
	r.POST("/conversations", handler.StartConversation)
	return r
}

func TestListConversationsSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewConversationHandler(convRepo, msgRepo, new(mocks.UserRepositoryMock), nil)
	router := setupConversationRouter(handler)

	username := "bob"
	convRepo.On("ListForUser", mock.Anything, testUserID).
		Return([]models.Conversation{{ID: testConvID}}, nil).Once()
	convRepo.On("OtherParticipant", mock.Anything, testConvID, testUserID).
		Return(models.User{ID: testOtherID, Email: "bob@example.com", Username: &username}, nil).Once()
	msgRepo.On("LatestMessage", mock.Anything, testConvID).
		Return(&models.LastMessage{Content: "hi", SenderID: testOtherID}, nil).Once()
	msgRepo.On("UnreadCount", mock.Anything, testConvID, testUserID).Return(3, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, "bob", resp.Conversations[0].OtherParticipant.Username)
	assert.Equal(t, 3, resp.Conversations[0].UnreadCount)
	assert.False(t, resp.Conversations[0].IsAIConversation)
	require.NotNil(t, resp.Conversations[0].LastMessage)
	assert.Equal(t, "hi", resp.Conversations[0].LastMessage.Content)

	convRepo.AssertExpectations(t)
	msgRepo.AssertExpectations(t)
}

func TestListConversationsRewritesAssistantLabel(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewConversationHandler(convRepo, msgRepo, new(mocks.UserRepositoryMock), nil)
	router := setupConversationRouter(handler)

	convRepo.On("ListForUser", mock.Anything, testUserID).
		Return([]models.Conversation{{ID: testConvID}}, nil).Once()
	convRepo.On("OtherParticipant", mock.Anything, testConvID, testUserID).
		Return(models.User{ID: models.AIAssistantID, Email: "assistant@convo.internal"}, nil).Once()
	msgRepo.On("LatestMessage", mock.Anything, testConvID).Return((*models.LastMessage)(nil), nil).Once()
	msgRepo.On("UnreadCount", mock.Anything, testConvID, testUserID).Return(0, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, models.AIAssistantLabel, resp.Conversations[0].OtherParticipant.Username)
	assert.True(t, resp.Conversations[0].IsAIConversation)
}

func TestListConversationsDropsUnresolvedParticipant(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewConversationHandler(convRepo, msgRepo, new(mocks.UserRepositoryMock), nil)
	router := setupConversationRouter(handler)

	orphanID := uuid.MustParse("44444444-4444-4444-4444-444444444444")
	username := "bob"
	convRepo.On("ListForUser", mock.Anything, testUserID).
		Return([]models.Conversation{{ID: orphanID}, {ID: testConvID}}, nil).Once()
	convRepo.On("OtherParticipant", mock.Anything, orphanID, testUserID).
		Return(models.User{}, repositories.ErrParticipantNotFound).Once()
	convRepo.On("OtherParticipant", mock.Anything, testConvID, testUserID).
		Return(models.User{ID: testOtherID, Email: "bob@example.com", Username: &username}, nil).Once()
	msgRepo.On("LatestMessage", mock.Anything, testConvID).Return((*models.LastMessage)(nil), nil).Once()
	msgRepo.On("UnreadCount", mock.Anything, testConvID, testUserID).Return(0, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, testConvID, resp.Conversations[0].ID)
	convRepo.AssertExpectations(t)
}

func TestListConversationsRepoError(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(convRepo, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), nil)
	router := setupConversationRouter(handler)

	convRepo.On("ListForUser", mock.Anything, testUserID).
		Return(([]models.Conversation)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	convRepo.AssertExpectations(t)
}

func TestStartConversationSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewConversationHandler(convRepo, new(mocks.MessageRepositoryMock), userRepo, nil)
	router := setupConversationRouter(handler)

	userRepo.On("GetByID", mock.Anything, testOtherID).Return(models.User{ID: testOtherID}, nil).Once()
	convRepo.On("CreateOrGetConversation", mock.Anything, testUserID, testOtherID).
		Return(models.Conversation{ID: testConvID}, nil).Once()

	body := bytes.NewBufferString(fmt.Sprintf(`{"participant_id":%q}`, testOtherID))
	req := httptest.NewRequest(http.MethodPost, "/conversations", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, testConvID.String(), resp["conversation_id"])
	userRepo.AssertExpectations(t)
	convRepo.AssertExpectations(t)
}

func TestStartConversationWithSelf(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(convRepo, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), nil)
	router := setupConversationRouter(handler)

	body := bytes.NewBufferString(fmt.Sprintf(`{"participant_id":%q}`, testUserID))
	req := httptest.NewRequest(http.MethodPost, "/conversations", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	convRepo.AssertNotCalled(t, "CreateOrGetConversation", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartConversationUnknownUser(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewConversationHandler(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock), userRepo, nil)
	router := setupConversationRouter(handler)

	userRepo.On("GetByID", mock.Anything, testOtherID).Return(models.User{}, repositories.ErrUserNotFound).Once()

	body := bytes.NewBufferString(fmt.Sprintf(`{"participant_id":%q}`, testOtherID))
	req := httptest.NewRequest(http.MethodPost, "/conversations", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	userRepo.AssertExpectations(t)
}
