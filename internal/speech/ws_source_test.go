package speech

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func tokenServer(t *testing.T, handle func(conn *websocket.Conn, req TokenRequest)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req TokenRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		handle(conn, req)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSSource_Stream(t *testing.T) {
	gotText := make(chan string, 1)
	url := tokenServer(t, func(conn *websocket.Conn, req TokenRequest) {
		gotText <- req.Text
		conn.WriteJSON(TokenMessage{Tokens: []int{int(StartOfSpeech), int(TokenFor(0, 5))}})
		conn.WriteJSON(TokenMessage{Tokens: []int{int(EndOfSpeech)}, Done: true})
		conn.ReadMessage()
	})

	tokens, err := collect(t, NewWSSource(url), context.Background(), "hello")
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if text := <-gotText; text != "hello" {
		t.Errorf("Expected request text hello, got %q", text)
	}
	want := []Token{StartOfSpeech, TokenFor(0, 5), EndOfSpeech}
	if len(tokens) != len(want) {
		t.Fatalf("Expected %v, got %v", want, tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("Token %d: expected %d, got %d", i, want[i], tokens[i])
		}
	}
}

func TestWSSource_ServerError(t *testing.T) {
	url := tokenServer(t, func(conn *websocket.Conn, req TokenRequest) {
		conn.WriteJSON(TokenMessage{Error: "model overloaded"})
	})

	_, err := collect(t, NewWSSource(url), context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("Expected server error, got %v", err)
	}
}

func TestWSSource_ClosedEarly(t *testing.T) {
	url := tokenServer(t, func(conn *websocket.Conn, req TokenRequest) {
		conn.WriteJSON(TokenMessage{Tokens: []int{int(StartOfSpeech)}})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	tokens, err := collect(t, NewWSSource(url), context.Background(), "hello")
	if !errors.Is(err, ErrSourceClosed) {
		t.Errorf("Expected ErrSourceClosed, got %v", err)
	}
	if len(tokens) != 1 {
		t.Errorf("Expected 1 token before close, got %d", len(tokens))
	}
}

func TestWSSource_Cancelled(t *testing.T) {
	url := tokenServer(t, func(conn *websocket.Conn, req TokenRequest) {
		// Never answer
		conn.ReadMessage()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := collect(t, NewWSSource(url), ctx, "hello")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestWSSource_DialFailure(t *testing.T) {
	_, err := collect(t, NewWSSource("ws://127.0.0.1:1/tokens"), context.Background(), "hello")
	if err == nil {
		t.Error("Expected dial error")
	}
}
