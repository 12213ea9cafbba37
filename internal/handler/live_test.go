package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Nijaek/analytics-dashboard/internal/ticket"
)

func TestHandler_LiveStream_MissingTicket(t *testing.T) {
	f := newHandlerFixture()

	req := httptest.NewRequest(http.MethodGet, "/v1/live/7", nil)
	w := httptest.NewRecorder()

	f.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_LiveStream_InvalidTicket(t *testing.T) {
	f := newHandlerFixture()

	f.tickets.On("Redeem", mock.Anything, "bad-ticket").Return(int64(0), ticket.ErrTicketInvalid)

	req := httptest.NewRequest(http.MethodGet, "/v1/live/7?ticket=bad-ticket", nil)
	w := httptest.NewRecorder()

	f.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_LiveStream_ProjectMismatch(t *testing.T) {
	f := newHandlerFixture()

	f.tickets.On("Redeem", mock.Anything, "ticket-for-9").Return(int64(9), nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/live/7?ticket=ticket-for-9", nil)
	w := httptest.NewRecorder()

	f.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_LiveStream_EndToEnd(t *testing.T) {
	f := newHandlerFixture()

	f.tickets.On("Redeem", mock.Anything, "good-ticket").Return(int64(7), nil)

	server := httptest.NewServer(f.handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/live/7?ticket=good-ticket"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	defer func() { _ = resp.Body.Close() }()

	// Registration completes just after the handshake response is written
	require.Eventually(t, func() bool {
		return f.hub.SubscriberCount(7) == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.hub.Broadcast(7, []byte(`{"event":"page_view"}`))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.JSONEq(t, `{"event":"page_view"}`, string(payload))
}

func TestHandler_LiveStream_TicketIsSingleUse(t *testing.T) {
	f := newHandlerFixture()

	// Second redemption of the same ticket fails at the issuer
	f.tickets.On("Redeem", mock.Anything, "once").Return(int64(7), nil).Once()
	f.tickets.On("Redeem", mock.Anything, "once").Return(int64(0), ticket.ErrTicketInvalid)

	server := httptest.NewServer(f.handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/live/7?ticket=once"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	defer func() { _ = resp.Body.Close() }()

	_, resp2, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp2)
	defer func() { _ = resp2.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}
