package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"mcq-exam-service/internal/app"
	"mcq-exam-service/internal/domain"
	"github.com/gorilla/websocket"
)

func TestWebSocketLeaderboardFeed(t *testing.T) {
	server, service := newTestServer(t, sampleCatalog())
	ctx := context.Background()

	finish := func(phone string, correct bool) {
		t.Helper()
		res, err := service.Start(ctx, app.StartRequest{ExamID: 1, Identity: domain.Identity{FullName: "P", Phone: phone}})
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if correct {
			for {
				q, _, err := service.NextQuestion(ctx, res.Token)
				if err != nil {
					break
				}
				if err := service.SubmitAnswer(ctx, res.Token, q.ID, q.ID*10+1); err != nil {
					t.Fatalf("answer: %v", err)
				}
			}
		}
		if _, err := service.Finish(ctx, res.Token); err != nil {
			t.Fatalf("finish: %v", err)
		}
	}
	finish("01700000001", false)

	u := "ws" + server.URL[len("http"):] + "/ws/exams/1/leaderboard"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the current leaderboard first.
	msgType, payload := readNext(conn, t)
	if msgType != "leaderboard" {
		t.Fatalf("expected leaderboard, got %s", msgType)
	}
	if rows := payload["participants"].([]any); len(rows) != 1 {
		t.Fatalf("expected one participant, got %v", rows)
	}

	finish("01700000002", true)
	if _, err := service.Recalculate(ctx, 1); err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	msgType, payload = readNext(conn, t)
	if msgType != "leaderboard" {
		t.Fatalf("expected leaderboard, got %s", msgType)
	}
	rows := payload["participants"].([]any)
	if len(rows) != 2 || rows[0].(map[string]any)["phone"] != "01700000002" {
		t.Fatalf("expected new leader, got %v", rows)
	}
}

func TestWebSocketUnpublishedExam(t *testing.T) {
	catalog := sampleCatalog()
	publishAt := time.Now().Add(time.Hour)
	catalog.Exams[0].ResultPublishAt = &publishAt
	server, _ := newTestServer(t, catalog)

	u := "ws" + server.URL[len("http"):] + "/ws/exams/1/leaderboard"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	msgType, payload := readNext(conn, t)
	if msgType != "error" || payload["message"] == "" {
		t.Fatalf("expected error message, got %s %v", msgType, payload)
	}
}

func TestWebSocketRejectsBadExamID(t *testing.T) {
	server, _ := newTestServer(t, sampleCatalog())
	resp, err := http.Get(server.URL + "/ws/exams/zero/leaderboard")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func readNext(conn *websocket.Conn, t *testing.T) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg.Type, msg.Payload
}
