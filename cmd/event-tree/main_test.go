package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stupiduntilnot/nomic-lawyer/internal/db"
)

// testDB creates a temporary SQLite database with schema initialized.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDB(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.InitSchema(database); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// seedBotTree inserts a bot process with one answered and one failed turn and
// returns the root event ID.
//
// Tree structure:
//
//	process.started (bot)          id=1
//	├── turn.started               id=2
//	│   ├── context.assembled      id=3
//	│   ├── completion.completed   id=4
//	│   ├── reply.sent             id=5
//	│   └── turn.completed         id=6
//	├── turn.started               id=7
//	│   ├── control.limit_reached  id=8
//	│   └── turn.failed            id=9
//	└── process.stopped            id=10
func seedBotTree(t *testing.T, database *sql.DB) int64 {
	t.Helper()

	rootID, _ := db.LogEvent(database, nil, db.EventProcessStarted, map[string]any{"role": "bot", "pid": 100, "platform": "discord"})
	turn1, _ := db.LogEvent(database, &rootID, db.EventTurnStarted, map[string]any{"turn_id": "t-1", "channel_id": "c1"})
	db.LogEvent(database, &turn1, db.EventContextAssembled, map[string]any{"ancestors": 2, "history": 5})
	db.LogEvent(database, &turn1, db.EventCompletionCompleted, map[string]any{"input_tokens": 420, "output_tokens": 37})
	db.LogEvent(database, &turn1, db.EventReplySent, map[string]any{"chunks": 1})
	db.LogEvent(database, &turn1, db.EventTurnCompleted, map[string]any{"latency_ms": 1820})
	turn2, _ := db.LogEvent(database, &rootID, db.EventTurnStarted, map[string]any{"turn_id": "t-2", "channel_id": "c1"})
	db.LogEvent(database, &turn2, db.EventControlLimitReached, map[string]any{"limit_type": "turn_wall_time_seconds"})
	db.LogEvent(database, &turn2, db.EventTurnFailed, map[string]any{"error": strings.Repeat("x", 120)})
	db.LogEvent(database, &rootID, db.EventProcessStopped, nil)

	return rootID
}

func loadTree(t *testing.T, database *sql.DB, rootID int64) *Event {
	t.Helper()
	events, err := querySubtree(database, rootID)
	if err != nil {
		t.Fatal(err)
	}
	root := buildTree(events, rootID)
	if root == nil {
		t.Fatal("root is nil")
	}
	return root
}

func TestLatestBotRoot(t *testing.T) {
	database := testDB(t)
	rootID := seedBotTree(t, database)

	got, err := latestBotRoot(database)
	if err != nil {
		t.Fatal(err)
	}
	if got != rootID {
		t.Errorf("expected root id=%d, got %d", rootID, got)
	}
}

func TestLatestBotRoot_NoEvents(t *testing.T) {
	database := testDB(t)
	if _, err := latestBotRoot(database); err == nil {
		t.Fatal("expected error for empty database")
	}
}

func TestLatestBotRoot_PicksLatest(t *testing.T) {
	database := testDB(t)
	db.LogEvent(database, nil, db.EventProcessStarted, map[string]any{"role": "bot", "pid": 100})
	second, _ := db.LogEvent(database, nil, db.EventProcessStarted, map[string]any{"role": "bot", "pid": 200})
	db.LogEvent(database, nil, db.EventProcessStarted, map[string]any{"role": "other", "pid": 300})

	got, err := latestBotRoot(database)
	if err != nil {
		t.Fatal(err)
	}
	if got != second {
		t.Errorf("expected latest bot id=%d, got %d", second, got)
	}
}

func TestQuerySubtree(t *testing.T) {
	database := testDB(t)
	rootID := seedBotTree(t, database)

	events, err := querySubtree(database, rootID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 10 {
		t.Errorf("expected 10 events, got %d", len(events))
	}

	// Second turn: turn.started, control.limit_reached, turn.failed.
	events, err = querySubtree(database, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Errorf("expected 3 events in failed turn subtree, got %d", len(events))
	}
}

func TestBuildTree(t *testing.T) {
	database := testDB(t)
	root := loadTree(t, database, seedBotTree(t, database))

	if root.EventType != db.EventProcessStarted {
		t.Errorf("expected process.started, got %s", root.EventType)
	}
	if len(root.Children) != 3 {
		t.Fatalf("expected 3 root children, got %d", len(root.Children))
	}
	turn := root.Children[0]
	if turn.EventType != db.EventTurnStarted {
		t.Fatalf("expected turn.started first, got %s", turn.EventType)
	}
	var types []string
	for _, c := range turn.Children {
		types = append(types, c.EventType)
	}
	want := "context.assembled,completion.completed,reply.sent,turn.completed"
	if got := strings.Join(types, ","); got != want {
		t.Errorf("turn children = %s, want %s", got, want)
	}
}

func TestFormatEvent(t *testing.T) {
	ev := &Event{
		ID:        42,
		Timestamp: 1739781001,
		EventType: db.EventTurnStarted,
		Payload:   sql.NullString{String: `{"turn_id":"t-1","channel_id":"c1","depth":3}`, Valid: true},
	}

	line := formatEvent(ev, false)
	want := "[42] 2025-02-17 08:30:01  turn.started  channel_id=c1  depth=3  turn_id=t-1"
	if line != want {
		t.Errorf("formatEvent = %q, want %q", line, want)
	}
	if strings.Contains(formatEvent(ev, true), "turn_id") {
		t.Errorf("expected no payload with noPayload")
	}
}

func TestFormatEvent_NullPayload(t *testing.T) {
	ev := &Event{ID: 1, Timestamp: 1739781001, EventType: db.EventProcessStopped}
	if line := formatEvent(ev, false); !strings.HasSuffix(line, "process.stopped") {
		t.Errorf("unexpected line: %s", line)
	}
}

func TestFormatValue(t *testing.T) {
	long := formatValue(strings.Repeat("a", 100))
	if !strings.HasSuffix(long, `..."`) || len(long) != 85 {
		t.Errorf("expected quoted truncation, got %s", long)
	}
	if v := formatValue(float64(42)); v != "42" {
		t.Errorf("expected 42, got %s", v)
	}
	if v := formatValue(1.5); v != "1.5" {
		t.Errorf("expected 1.5, got %s", v)
	}
	if v := formatValue(true); v != "true" {
		t.Errorf("expected true, got %s", v)
	}
}

func TestPrintTree_Full(t *testing.T) {
	database := testDB(t)
	root := loadTree(t, database, seedBotTree(t, database))

	var buf bytes.Buffer
	printTree(&buf, root, "", true, 1, 0, false)
	output := buf.String()

	for _, want := range []string{
		"process.started", "turn.started", "context.assembled", "completion.completed",
		"reply.sent", "turn.completed", "control.limit_reached", "turn.failed", "process.stopped",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
	if !strings.Contains(output, "│   ├── ") || !strings.Contains(output, "└── ") {
		t.Errorf("expected nested tree characters in output:\n%s", output)
	}
	if len(strings.Split(strings.TrimSpace(output), "\n")) != 10 {
		t.Errorf("expected 10 lines:\n%s", output)
	}
}

func TestPrintTree_DepthLimit(t *testing.T) {
	database := testDB(t)
	root := loadTree(t, database, seedBotTree(t, database))

	var buf bytes.Buffer
	printTree(&buf, root, "", true, 1, 2, false)
	output := buf.String()

	if !strings.Contains(output, "turn.started") {
		t.Errorf("expected turn.started at depth 2:\n%s", output)
	}
	if strings.Contains(output, "context.assembled") {
		t.Errorf("context.assembled should be truncated at -L 2:\n%s", output)
	}
	if strings.Count(output, "[...]") != 2 {
		t.Errorf("expected [...] under both turns:\n%s", output)
	}

	buf.Reset()
	printTree(&buf, root, "", true, 1, 1, false)
	if lines := strings.Split(strings.TrimSpace(buf.String()), "\n"); len(lines) != 2 {
		t.Errorf("expected root + [...], got %d lines:\n%s", len(lines), buf.String())
	}
}

func TestPrintJSON(t *testing.T) {
	database := testDB(t)
	root := loadTree(t, database, seedBotTree(t, database))

	var buf bytes.Buffer
	if err := printJSON(&buf, root, 2, false); err != nil {
		t.Fatal(err)
	}
	var je jsonEvent
	if err := json.Unmarshal(buf.Bytes(), &je); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, buf.String())
	}
	if je.EventType != "process.started" || len(je.Children) != 3 {
		t.Errorf("unexpected root: %s with %d children", je.EventType, len(je.Children))
	}
	for _, child := range je.Children {
		if len(child.Children) > 0 {
			t.Errorf("expected no grandchildren at -L 2, %s (id=%d) has %d", child.EventType, child.ID, len(child.Children))
		}
	}
	payload, ok := je.Payload.(map[string]any)
	if !ok || payload["role"] != "bot" {
		t.Errorf("expected role=bot payload, got %v", je.Payload)
	}

	buf.Reset()
	if err := printJSON(&buf, root, 0, true); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), `"role"`) {
		t.Errorf("expected no payload in output:\n%s", buf.String())
	}
}
