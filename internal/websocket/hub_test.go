package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"procurement/internal/model"
	"procurement/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceives(t *testing.T) {
	company := uuid.New()
	requester := uuid.New()
	event := service.PurchaseEvent{CompanyID: company.String(), RequesterID: requester.String()}

	assert.True(t, receives(model.Principal{UserID: uuid.New(), CompanyID: company, Role: model.RoleAdmin}, event))
	assert.True(t, receives(model.Principal{UserID: requester, CompanyID: company, Role: model.RoleUser}, event))
	assert.False(t, receives(model.Principal{UserID: uuid.New(), CompanyID: company, Role: model.RoleManager}, event))
	assert.False(t, receives(model.Principal{UserID: uuid.New(), CompanyID: uuid.New(), Role: model.RoleAdmin}, event))
}

func TestHub_PublishReachesCompanyAudience(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	company := uuid.New()
	requester := uuid.New()
	principals := map[string]model.Principal{
		"admin":     {UserID: uuid.New(), CompanyID: company, Role: model.RoleAdmin},
		"requester": {UserID: requester, CompanyID: company, Role: model.RoleUser},
		"colleague": {UserID: uuid.New(), CompanyID: company, Role: model.RoleUser},
		"foreign":   {UserID: uuid.New(), CompanyID: uuid.New(), Role: model.RoleAdmin},
	}
	authenticate := func(token string) (model.Principal, error) {
		p, ok := principals[token]
		if !ok {
			return model.Principal{}, errors.New("unknown token")
		}
		return p, nil
	}

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) { ServeWs(hub, c, authenticate) })
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token="
	conns := map[string]*websocket.Conn{}
	for token := range principals {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+token, nil)
		require.NoError(t, err)
		defer conn.Close()
		conns[token] = conn
	}
	require.Eventually(t, func() bool { return hub.ClientCount() == len(principals) }, 2*time.Second, 10*time.Millisecond)

	event := service.PurchaseEvent{
		Type:        service.EventRequestCreated,
		RequestID:   uuid.NewString(),
		CompanyID:   company.String(),
		RequesterID: requester.String(),
		Status:      model.StatusPending,
		TotalPrice:  5000,
	}
	hub.Publish(context.Background(), event)

	for _, token := range []string{"admin", "requester"} {
		conn := conns[token]
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, token)

		var got service.PurchaseEvent
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, event.RequestID, got.RequestID)
		assert.Equal(t, int64(5000), got.TotalPrice)
	}

	for _, token := range []string{"colleague", "foreign"} {
		conn := conns[token]
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
		_, _, err := conn.ReadMessage()
		assert.Error(t, err, token)
	}
}

func TestServeWs_RejectsMissingAndInvalidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		ServeWs(hub, c, func(string) (model.Principal, error) { return model.Principal{}, errors.New("invalid") })
	})

	for _, target := range []string{"/ws", "/ws?token=bogus"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, target)
	}
}
