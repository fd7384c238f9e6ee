package main

import (
	"errors"
	"testing"
	"time"
)

const (
	testStartURL  = "https://ja.wikipedia.org/wiki/出発点"
	testTargetURL = "https://ja.wikipedia.org/wiki/日本"
)

// startedGame creates a two-player room and starts a navigation-mode game.
func startedGame(t *testing.T, a *app) (host, guest *Client, room *Room) {
	t.Helper()

	host = newTestClient(a, "host")
	guest = newTestClient(a, "guest")

	if err := a.createRoom(host, clientMessage{Username: "Host"}); err != nil {
		t.Fatal(err)
	}
	room = boundRoom(t, a, host)
	if err := a.joinRoom(guest, clientMessage{RoomID: room.id, Username: "Guest"}); err != nil {
		t.Fatal(err)
	}
	if err := a.toggleReady(guest, clientMessage{}); err != nil {
		t.Fatal(err)
	}
	if err := a.startGame(host, clientMessage{}); err != nil {
		t.Fatalf("startGame() error = %v", err)
	}

	drainTypes(t, host)
	drainTypes(t, guest)

	return host, guest, room
}

func TestStartGameRequirements(t *testing.T) {
	a := newTestApp(t)
	host := newTestClient(a, "host")
	guest := newTestClient(a, "guest")

	if err := a.startGame(host, clientMessage{}); !errors.Is(err, errNotInRoom) {
		t.Fatalf("start outside a room error = %v, want errNotInRoom", err)
	}

	if err := a.createRoom(host, clientMessage{}); err != nil {
		t.Fatal(err)
	}
	room := boundRoom(t, a, host)

	if err := a.startGame(host, clientMessage{}); !errors.Is(err, errNotEnoughPlayers) {
		t.Fatalf("solo start error = %v, want errNotEnoughPlayers", err)
	}

	if err := a.joinRoom(guest, clientMessage{RoomID: room.id}); err != nil {
		t.Fatal(err)
	}

	if err := a.startGame(guest, clientMessage{}); !errors.Is(err, errNotHost) {
		t.Fatalf("guest start error = %v, want errNotHost", err)
	}

	if err := a.startGame(host, clientMessage{}); !errors.Is(err, errNotReady) {
		t.Fatalf("unready start error = %v, want errNotReady", err)
	}

	room.mu.Lock()
	if room.status != statusWaiting || room.session != nil {
		room.mu.Unlock()
		t.Fatal("failed starts must not mutate room state")
	}
	room.mu.Unlock()

	// The host's own readiness is not required.
	if err := a.toggleReady(guest, clientMessage{}); err != nil {
		t.Fatal(err)
	}
	if err := a.startGame(host, clientMessage{}); err != nil {
		t.Fatalf("startGame() error = %v", err)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.status != statusPlaying {
		t.Fatalf("status = %q, want playing", room.status)
	}
	for id, ps := range room.session.players {
		if ps.currentURL != testStartURL || ps.moves != 0 || len(ps.path) != 1 {
			t.Fatalf("player %s state = %+v, want fresh state at start page", id, ps)
		}
	}
}

func TestStartGameGuessingModeNeedsDifficultyData(t *testing.T) {
	a := newTestApp(t)
	host := newTestClient(a, "host")
	guest := newTestClient(a, "guest")

	if err := a.createRoom(host, clientMessage{}); err != nil {
		t.Fatal(err)
	}
	room := boundRoom(t, a, host)
	if err := a.joinRoom(guest, clientMessage{RoomID: room.id}); err != nil {
		t.Fatal(err)
	}
	if err := a.toggleReady(guest, clientMessage{}); err != nil {
		t.Fatal(err)
	}

	mode := "guessing"
	if err := a.updateSettings(host, clientMessage{RoomID: room.id, Settings: &settingsPatch{GameMode: &mode}}); err != nil {
		t.Fatal(err)
	}

	if err := a.startGame(host, clientMessage{}); !errors.Is(err, errDifficultyMissing) {
		t.Fatalf("startGame() error = %v, want errDifficultyMissing", err)
	}

	writeTier(t, a.refs, difficultyEasy, "https://ja.wikipedia.org/wiki/東京\n")

	if err := a.startGame(host, clientMessage{}); err != nil {
		t.Fatalf("startGame() error = %v", err)
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.session.startURL != "https://ja.wikipedia.org/wiki/東京" {
		t.Fatalf("startURL = %q, want the difficulty pick", room.session.startURL)
	}
}

func TestPlayerMovePathInvariant(t *testing.T) {
	a := newTestApp(t)
	host, _, room := startedGame(t, a)

	moves := []string{
		"https://ja.wikipedia.org/wiki/東京",
		"https://ja.wikipedia.org/wiki/大阪",
		"https://ja.wikipedia.org/wiki/京都",
	}
	for _, url := range moves {
		if err := a.playerMove(host, clientMessage{URL: url}); err != nil {
			t.Fatalf("playerMove(%q) error = %v", url, err)
		}
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	ps := room.session.players["host"]
	if ps.moves != len(moves) {
		t.Fatalf("moves = %d, want %d", ps.moves, len(moves))
	}
	if len(ps.path) != ps.moves+1 {
		t.Fatalf("path length = %d, want moves+1 = %d", len(ps.path), ps.moves+1)
	}
	if ps.currentURL != moves[len(moves)-1] {
		t.Fatalf("currentURL = %q", ps.currentURL)
	}
}

func TestPlayerMoveValidation(t *testing.T) {
	a := newTestApp(t)
	c := newTestClient(a, "alice")

	if err := a.playerMove(c, clientMessage{URL: "https://example.com/x"}); !errors.Is(err, errInvalidURL) {
		t.Fatalf("unsafe move error = %v, want errInvalidURL", err)
	}
	if err := a.playerMove(c, clientMessage{URL: testTargetURL}); !errors.Is(err, errNotInRoom) {
		t.Fatalf("roomless move error = %v, want errNotInRoom", err)
	}

	if err := a.createRoom(c, clientMessage{}); err != nil {
		t.Fatal(err)
	}
	if err := a.playerMove(c, clientMessage{URL: testTargetURL}); !errors.Is(err, errNoActiveSession) {
		t.Fatalf("sessionless move error = %v, want errNoActiveSession", err)
	}
}

func TestReachingTargetFinishesAndRanks(t *testing.T) {
	a := newTestApp(t)
	host, guest, room := startedGame(t, a)

	// A percent-encoded spelling of the target still counts.
	if err := a.playerMove(host, clientMessage{URL: "https://ja.wikipedia.org/wiki/%E6%97%A5%E6%9C%AC"}); err != nil {
		t.Fatal(err)
	}

	room.mu.Lock()
	hostState := room.session.players["host"]
	if !hostState.finished || hostState.finishTime.IsZero() {
		room.mu.Unlock()
		t.Fatal("host should be finished with a timestamp")
	}
	if rank := room.session.rankLocked("host"); rank != 1 {
		room.mu.Unlock()
		t.Fatalf("rank = %d, want 1", rank)
	}
	sessionDone := room.session.finished
	room.mu.Unlock()

	if sessionDone {
		t.Fatal("session must not finish while a member is still racing")
	}

	if types := drainTypes(t, guest); !hasType(types, "player_finished") {
		t.Fatalf("guest events = %v, want player_finished", types)
	}

	// Detour, then finish: more moves, so second place regardless of time.
	if err := a.playerMove(guest, clientMessage{URL: "https://ja.wikipedia.org/wiki/東京"}); err != nil {
		t.Fatal(err)
	}
	if err := a.playerMove(guest, clientMessage{URL: testTargetURL}); err != nil {
		t.Fatal(err)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if !room.session.finished {
		t.Fatal("session should be finished once every member is done")
	}
	if room.status != statusFinished {
		t.Fatalf("room status = %q, want finished", room.status)
	}

	results := room.resultsLocked()
	if len(results) != 2 {
		t.Fatalf("results = %+v, want 2 entries", results)
	}
	if results[0].PlayerID != "host" || results[0].Rank != 1 {
		t.Fatalf("first place = %+v, want host", results[0])
	}
	if results[1].PlayerID != "guest" || results[1].Rank != 2 {
		t.Fatalf("second place = %+v, want guest", results[1])
	}
	if results[0].TimeTaken == nil || results[1].TimeTaken == nil {
		t.Fatal("finished players should report time taken")
	}
}

func TestMoveAfterFinishIsIgnored(t *testing.T) {
	a := newTestApp(t)
	host, _, room := startedGame(t, a)

	if err := a.playerMove(host, clientMessage{URL: testTargetURL}); err != nil {
		t.Fatal(err)
	}
	if err := a.playerMove(host, clientMessage{URL: "https://ja.wikipedia.org/wiki/東京"}); err != nil {
		t.Fatalf("late move should be a silent no-op, got %v", err)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	ps := room.session.players["host"]
	if ps.moves != 1 || len(ps.path) != 2 {
		t.Fatalf("late move mutated state: moves=%d path=%d", ps.moves, len(ps.path))
	}
}

func TestRankingDeterministic(t *testing.T) {
	base := time.Now()
	s := &GameSession{
		players: map[string]*PlayerState{
			"a": {finished: true, moves: 3, finishTime: base.Add(5 * time.Second)},
			"b": {finished: true, moves: 2, finishTime: base.Add(9 * time.Second)},
			"c": {finished: true, moves: 3, finishTime: base.Add(2 * time.Second)},
			"d": {finished: false, moves: 1},
		},
	}

	want := []string{"b", "c", "a"}

	for i := 0; i < 10; i++ {
		got := s.rankedFinishersLocked()
		if len(got) != len(want) {
			t.Fatalf("finishers = %v, want %v", got, want)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("finishers = %v, want %v", got, want)
			}
		}
	}

	if s.rankLocked("d") != -1 {
		t.Fatal("unfinished player must not have a rank")
	}
}

func TestSearchViolation(t *testing.T) {
	a := newTestApp(t)
	host, guest, room := startedGame(t, a)

	// The default settings allow in-page search, so the report is a no-op.
	if err := a.searchViolation(host, clientMessage{}); err != nil {
		t.Fatal(err)
	}
	room.mu.Lock()
	if room.session.players["host"].eliminated {
		room.mu.Unlock()
		t.Fatal("violation while search is allowed must not eliminate")
	}
	room.settings.AllowCtrlF = false
	room.mu.Unlock()

	if err := a.playerMove(host, clientMessage{URL: "https://ja.wikipedia.org/wiki/東京"}); err != nil {
		t.Fatal(err)
	}
	if err := a.searchViolation(host, clientMessage{}); err != nil {
		t.Fatal(err)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	ps := room.session.players["host"]
	if !ps.eliminated || !ps.finished || ps.finishTime.IsZero() {
		t.Fatalf("state after violation = %+v, want eliminated and finished", ps)
	}
	if ps.moves != 1 {
		t.Fatalf("moves = %d, elimination must preserve the move count", ps.moves)
	}

	types := drainTypes(t, guest)
	if !hasType(types, "player_eliminated") {
		t.Fatalf("guest events = %v, want player_eliminated", types)
	}
}

func TestGiveUpCompletesSession(t *testing.T) {
	a := newTestApp(t)
	host, guest, room := startedGame(t, a)

	if err := a.playerMove(host, clientMessage{URL: testTargetURL}); err != nil {
		t.Fatal(err)
	}
	if err := a.giveUp(guest, clientMessage{RoomID: room.id}); err != nil {
		t.Fatal(err)
	}

	room.mu.Lock()
	ps := room.session.players["guest"]
	if !ps.gaveUp || !ps.finished {
		room.mu.Unlock()
		t.Fatalf("state = %+v, want gave up and finished", ps)
	}
	if !room.session.finished || room.status != statusFinished {
		room.mu.Unlock()
		t.Fatal("give-up by the last racer should finish the session")
	}
	firstFinish := ps.finishTime
	room.mu.Unlock()

	// Giving up twice is a no-op.
	if err := a.giveUp(guest, clientMessage{RoomID: room.id}); err != nil {
		t.Fatalf("second give-up should be silent, got %v", err)
	}

	room.mu.Lock()
	if !room.session.players["guest"].finishTime.Equal(firstFinish) {
		room.mu.Unlock()
		t.Fatal("second give-up mutated the finish time")
	}
	room.mu.Unlock()

	if types := drainTypes(t, host); !hasType(types, "game_finished") {
		t.Fatalf("host events = %v, want game_finished", types)
	}
}

func TestDisconnectMidGame(t *testing.T) {
	a := newTestApp(t)
	host, guest, room := startedGame(t, a)

	a.disconnect(host)

	room.mu.Lock()
	if room.host != "guest" {
		room.mu.Unlock()
		t.Fatalf("host = %q, want guest", room.host)
	}
	if _, tracked := room.session.players["host"]; tracked {
		room.mu.Unlock()
		t.Fatal("departed player's state should be removed from the session")
	}
	if _, tracked := room.session.players["guest"]; !tracked {
		room.mu.Unlock()
		t.Fatal("remaining player's state should persist")
	}
	room.mu.Unlock()

	types := drainTypes(t, guest)
	if !hasType(types, "player_left") {
		t.Fatalf("guest events = %v, want player_left", types)
	}

	// The survivor can still win the shrunken race.
	if err := a.playerMove(guest, clientMessage{URL: testTargetURL}); err != nil {
		t.Fatal(err)
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if !room.session.finished || room.status != statusFinished {
		t.Fatal("session should finish once the only tracked player is done")
	}
}

func TestLastUnfinishedPlayerLeaving(t *testing.T) {
	a := newTestApp(t)
	host, guest, room := startedGame(t, a)

	if err := a.playerMove(host, clientMessage{URL: testTargetURL}); err != nil {
		t.Fatal(err)
	}

	// The only unfinished player disconnects; the session must not hang.
	a.disconnect(guest)

	room.mu.Lock()
	defer room.mu.Unlock()
	if !room.session.finished || room.status != statusFinished {
		t.Fatal("session should finish when the last unfinished player departs")
	}
}

func guessingGame(t *testing.T, a *app) (host, guest *Client, room *Room) {
	t.Helper()

	writeTier(t, a.refs, difficultyEasy, "https://ja.wikipedia.org/wiki/Tokyo\nhttps://ja.wikipedia.org/wiki/Osaka\n")

	host = newTestClient(a, "host")
	guest = newTestClient(a, "guest")

	if err := a.createRoom(host, clientMessage{Username: "Host"}); err != nil {
		t.Fatal(err)
	}
	room = boundRoom(t, a, host)

	mode := "guessing"
	if err := a.updateSettings(host, clientMessage{RoomID: room.id, Settings: &settingsPatch{GameMode: &mode}}); err != nil {
		t.Fatal(err)
	}
	if err := a.joinRoom(guest, clientMessage{RoomID: room.id, Username: "Guest"}); err != nil {
		t.Fatal(err)
	}
	if err := a.toggleReady(guest, clientMessage{}); err != nil {
		t.Fatal(err)
	}
	if err := a.startGame(host, clientMessage{}); err != nil {
		t.Fatal(err)
	}

	drainTypes(t, host)
	drainTypes(t, guest)

	return host, guest, room
}

func TestSubmitAnswer(t *testing.T) {
	a := newTestApp(t)
	host, guest, room := guessingGame(t, a)

	room.mu.Lock()
	current := room.session.players["host"].currentURL
	room.mu.Unlock()

	// Simulate the proxy having served the current page.
	a.recordPageTitle(room.id, current)

	// A wrong answer reports failure and leaves state untouched.
	if err := a.submitAnswer(host, clientMessage{RoomID: room.id, Answer: "wrong", CurrentURL: current, GuessCount: 0}); err != nil {
		t.Fatal(err)
	}
	msg := <-host.send
	result, ok := msg.(answerResultMessage)
	if !ok {
		t.Fatalf("unexpected message %T", msg)
	}
	if result.IsCorrect || result.GuessCount != 1 {
		t.Fatalf("wrong answer result = %+v", result)
	}
	if result.CorrectTitle != "" {
		t.Fatal("a miss must not reveal the correct title")
	}

	room.mu.Lock()
	if room.session.players["host"].moves != 0 {
		room.mu.Unlock()
		t.Fatal("wrong answer must not advance the player")
	}
	room.mu.Unlock()

	// The recorded title, case-folded, is a correct answer.
	answer := titleFromURL(current)
	if err := a.submitAnswer(host, clientMessage{RoomID: room.id, Answer: "  " + answer + " ", CurrentURL: current, GuessCount: 1}); err != nil {
		t.Fatal(err)
	}
	msg = <-host.send
	result, ok = msg.(answerResultMessage)
	if !ok {
		t.Fatalf("unexpected message %T", msg)
	}
	if !result.IsCorrect || result.GuessCount != 0 {
		t.Fatalf("correct answer result = %+v", result)
	}
	if result.NewURL == "" {
		t.Fatal("a correct answer should assign a new page")
	}

	room.mu.Lock()
	ps := room.session.players["host"]
	if ps.moves != 1 || len(ps.path) != 2 || ps.currentURL != result.NewURL {
		room.mu.Unlock()
		t.Fatalf("state after correct answer = %+v", ps)
	}
	room.mu.Unlock()

	if types := drainTypes(t, guest); !hasType(types, "player_answered_correctly") {
		t.Fatalf("guest events = %v, want player_answered_correctly", types)
	}
}

func TestSubmitAnswerWrongMode(t *testing.T) {
	a := newTestApp(t)
	host, _, room := startedGame(t, a)

	err := a.submitAnswer(host, clientMessage{RoomID: room.id, Answer: "日本", CurrentURL: testStartURL})
	if !errors.Is(err, errWrongMode) {
		t.Fatalf("submitAnswer() error = %v, want errWrongMode", err)
	}
}

func TestSubmitAnswerUnrecordedPageFails(t *testing.T) {
	a := newTestApp(t)
	host, _, room := guessingGame(t, a)

	room.mu.Lock()
	current := room.session.players["host"].currentURL
	room.mu.Unlock()

	// No recorded title for the page: any guess fails.
	if err := a.submitAnswer(host, clientMessage{RoomID: room.id, Answer: titleFromURL(current), CurrentURL: current}); err != nil {
		t.Fatal(err)
	}

	msg := <-host.send
	result, ok := msg.(answerResultMessage)
	if !ok {
		t.Fatalf("unexpected message %T", msg)
	}
	if result.IsCorrect {
		t.Fatal("guess against an unrecorded page must fail")
	}
}
