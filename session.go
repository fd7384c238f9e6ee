package main

import (
	"context"
	"html"
	"sort"
	"time"
)

// GameSession holds the live play state of one room. It exists exactly while
// the room is playing (and read-only once finished, until the room is reset)
// and is guarded by the owning room's mutex.
type GameSession struct {
	startURL  string
	targetURL string
	startedAt time.Time
	players   map[string]*PlayerState
	finished  bool
}

type PlayerState struct {
	currentURL string
	moves      int
	path       []string
	finished   bool
	finishTime time.Time
	eliminated bool
	gaveUp     bool
}

func (s *GameSession) snapshotLocked() SessionState {
	players := make(map[string]PlayerSnapshot, len(s.players))
	for id, ps := range s.players {
		path := make([]string, len(ps.path))
		copy(path, ps.path)

		snap := PlayerSnapshot{
			CurrentURL: ps.currentURL,
			Moves:      ps.moves,
			Path:       path,
			Finished:   ps.finished,
			Eliminated: ps.eliminated,
			GaveUp:     ps.gaveUp,
		}
		if !ps.finishTime.IsZero() {
			t := ps.finishTime
			snap.FinishTime = &t
		}
		players[id] = snap
	}

	return SessionState{
		StartURL:  s.startURL,
		TargetURL: s.targetURL,
		Players:   players,
		StartedAt: s.startedAt,
		Finished:  s.finished,
	}
}

// rankedFinishersLocked returns the ids of finished players ordered by
// ascending (move count, finish time, id). Recomputed fresh on every call so
// a late finisher is inserted correctly; the id tiebreak keeps the order
// deterministic regardless of call order.
func (s *GameSession) rankedFinishersLocked() []string {
	finished := make([]string, 0, len(s.players))
	for id, ps := range s.players {
		if ps.finished {
			finished = append(finished, id)
		}
	}

	sort.Slice(finished, func(i, j int) bool {
		a, b := s.players[finished[i]], s.players[finished[j]]
		if a.moves != b.moves {
			return a.moves < b.moves
		}
		if !a.finishTime.Equal(b.finishTime) {
			return a.finishTime.Before(b.finishTime)
		}
		return finished[i] < finished[j]
	})

	return finished
}

func (s *GameSession) rankLocked(playerID string) int {
	for i, id := range s.rankedFinishersLocked() {
		if id == playerID {
			return i + 1
		}
	}

	return -1
}

func (r *Room) resultsLocked() []PlayerResult {
	s := r.session
	ranked := s.rankedFinishersLocked()

	results := make([]PlayerResult, 0, len(ranked))
	for i, id := range ranked {
		ps := s.players[id]

		path := make([]string, len(ps.path))
		for j, p := range ps.path {
			path[j] = html.EscapeString(p)
		}

		username := ""
		if info := r.info[id]; info != nil {
			username = info.username
		}

		var taken *float64
		if !ps.finishTime.IsZero() && !s.startedAt.IsZero() {
			seconds := ps.finishTime.Sub(s.startedAt).Seconds()
			taken = &seconds
		}

		results = append(results, PlayerResult{
			PlayerID:   id,
			Username:   username,
			Moves:      ps.moves,
			Path:       path,
			Rank:       i + 1,
			TimeTaken:  taken,
			Eliminated: ps.eliminated,
			GaveUp:     ps.gaveUp,
		})
	}

	return results
}

// finishIfDoneLocked marks the session and room finished once every current
// member's state is finished, and broadcasts the aggregated standings.
func (a *app) finishIfDoneLocked(room *Room) {
	s := room.session
	if s == nil || s.finished || len(s.players) == 0 {
		return
	}

	for _, ps := range s.players {
		if !ps.finished {
			return
		}
	}

	s.finished = true
	room.status = statusFinished

	a.reg.broadcast(room.id, gameFinishedMessage{
		Type:      "game_finished",
		Results:   room.resultsLocked(),
		GameState: s.snapshotLocked(),
	})

	logf(a.cfg, "GAMES: %s finished", room.id)
}

// pickStartURL chooses the opening page for a session. It runs before the
// room's exclusive section so the external fetch never blocks other actions
// on the room.
func (a *app) pickStartURL(ctx context.Context, mode gameMode, tier difficulty) (string, error) {
	if mode == modeGuessing {
		return a.refs.Random(tier)
	}

	startURL, err := a.pager.RandomPageURL(ctx)
	if err != nil {
		return "", err
	}
	if !a.cfg.isSafeURL(startURL) {
		return "", errInvalidURL
	}

	return startURL, nil
}

func (a *app) startGame(c *Client, _ clientMessage) error {
	room, err := a.reg.boundRoom(c.id)
	if err != nil {
		return err
	}

	room.mu.Lock()
	if room.gone {
		room.mu.Unlock()
		return errNotInRoom
	}
	if room.host != c.id {
		room.mu.Unlock()
		return errNotHost
	}
	if room.status != statusWaiting {
		room.mu.Unlock()
		return errNotWaiting
	}
	if len(room.players) < 2 {
		room.mu.Unlock()
		return errNotEnoughPlayers
	}
	// The host's own readiness is not required.
	for _, pid := range room.players {
		if pid != room.host && !room.info[pid].ready {
			room.mu.Unlock()
			return errNotReady
		}
	}
	mode := room.settings.GameMode
	tier := room.settings.Difficulty
	room.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	startURL, err := a.pickStartURL(ctx, mode, tier)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	// Membership and status may have shifted during the fetch.
	if room.gone {
		return errNotInRoom
	}
	if room.host != c.id {
		return errNotHost
	}
	if room.status != statusWaiting {
		return errNotWaiting
	}
	if len(room.players) < 2 {
		return errNotEnoughPlayers
	}

	targetURL := room.targetURL
	if !a.cfg.isSafeURL(targetURL) {
		return errInvalidURL
	}

	session := &GameSession{
		startURL:  startURL,
		targetURL: targetURL,
		startedAt: time.Now(),
		players:   make(map[string]*PlayerState, len(room.players)),
	}
	for _, pid := range room.players {
		session.players[pid] = &PlayerState{
			currentURL: startURL,
			path:       []string{startURL},
		}
	}

	room.session = session
	room.status = statusPlaying

	a.reg.broadcast(room.id, gameStartedMessage{
		Type:         "game_started",
		StartURL:     html.EscapeString(startURL),
		TargetURL:    html.EscapeString(targetURL),
		GameState:    session.snapshotLocked(),
		RoomInfo:     room.infoLocked(),
		RoomSettings: room.settings,
	})

	logf(a.cfg, "GAMES: %s started (%s, %s)", room.id, mode, tier)

	return nil
}

func (a *app) playerMove(c *Client, msg clientMessage) error {
	if !a.cfg.isSafeURL(msg.URL) {
		return errInvalidURL
	}

	room, err := a.reg.boundRoom(c.id)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	s := room.session
	if s == nil {
		return errNoActiveSession
	}

	ps := s.players[c.id]
	if ps == nil || ps.finished || ps.eliminated {
		// Duplicate or late client events are ignored, not errors.
		return nil
	}

	ps.moves++
	ps.currentURL = msg.URL
	ps.path = append(ps.path, msg.URL)

	reached := normalizedPath(msg.URL) == normalizedPath(s.targetURL)
	if reached {
		ps.finished = true
		ps.finishTime = time.Now()
	}

	a.reg.broadcast(room.id, playerMovedMessage{
		Type:      "player_moved",
		PlayerID:  c.id,
		URL:       html.EscapeString(msg.URL),
		Moves:     ps.moves,
		Finished:  ps.finished,
		GameState: s.snapshotLocked(),
	})

	if reached {
		a.reg.broadcast(room.id, playerFinishedMessage{
			Type:            "player_finished",
			PlayerID:        c.id,
			Rank:            s.rankLocked(c.id),
			Moves:           ps.moves,
			FinishedPlayers: s.rankedFinishersLocked(),
			GameState:       s.snapshotLocked(),
		})

		a.finishIfDoneLocked(room)
	}

	return nil
}

func (a *app) searchViolation(c *Client, _ clientMessage) error {
	room, err := a.reg.boundRoom(c.id)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	s := room.session
	if s == nil {
		return errNoActiveSession
	}

	// Only an offense while the room forbids in-page search.
	if room.settings.AllowCtrlF {
		return nil
	}

	ps := s.players[c.id]
	if ps == nil || ps.finished || ps.eliminated {
		return nil
	}

	ps.eliminated = true
	ps.finished = true
	ps.finishTime = time.Now()

	logf(a.cfg, "GAMES: %s eliminated in %s for a search violation", c.id, room.id)

	a.reg.broadcast(room.id, playerEliminatedMessage{
		Type:              "player_eliminated",
		PlayerID:          c.id,
		GameState:         s.snapshotLocked(),
		EliminationReason: "search violation",
	})

	a.finishIfDoneLocked(room)

	return nil
}

func (a *app) giveUp(c *Client, _ clientMessage) error {
	room, err := a.reg.boundRoom(c.id)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	s := room.session
	if s == nil {
		return errNoActiveSession
	}

	ps := s.players[c.id]
	if ps == nil || ps.finished {
		return nil
	}

	ps.gaveUp = true
	ps.finished = true
	ps.finishTime = time.Now()

	a.reg.broadcast(room.id, playerGaveUpMessage{
		Type:      "player_gave_up",
		PlayerID:  c.id,
		GameState: s.snapshotLocked(),
	})

	a.finishIfDoneLocked(room)

	return nil
}

func (a *app) submitAnswer(c *Client, msg clientMessage) error {
	room, err := a.reg.boundRoom(c.id)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	s := room.session
	if s == nil {
		return errNoActiveSession
	}
	if room.settings.GameMode != modeGuessing {
		return errWrongMode
	}

	ps := s.players[c.id]
	if ps == nil || ps.finished || ps.eliminated {
		return nil
	}

	answer := foldTitle(msg.Answer)
	if answer == "" {
		return nil
	}

	guessCount := msg.GuessCount + 1

	// An unrecorded page yields an empty comparison title, so the guess
	// simply fails; the correct title is never revealed on a miss.
	correctTitle := room.currentPages[msg.CurrentURL]
	if correctTitle == "" || answer != foldTitle(correctTitle) {
		c.deliver(answerResultMessage{
			Type:       "answer_result",
			IsCorrect:  false,
			GuessCount: guessCount,
		})
		return nil
	}

	newURL, err := a.refs.Random(room.settings.Difficulty)
	if err != nil {
		return err
	}

	ps.moves++
	ps.currentURL = newURL
	ps.path = append(ps.path, newURL)

	c.deliver(answerResultMessage{
		Type:         "answer_result",
		IsCorrect:    true,
		CorrectTitle: html.EscapeString(correctTitle),
		NewURL:       newURL,
		GuessCount:   0,
	})

	username := ""
	if info := room.info[c.id]; info != nil {
		username = info.username
	}

	a.reg.broadcastExcept(room.id, c.id, playerAnsweredCorrectlyMessage{
		Type:       "player_answered_correctly",
		PlayerID:   c.id,
		PlayerName: username,
		GameState:  s.snapshotLocked(),
	})

	return nil
}

// recordPageTitle stores the authoritative title for a served page so a
// later guess can be checked against it.
func (a *app) recordPageTitle(roomID, pageURL string) {
	room := a.reg.roomByID(roomID)
	if room == nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.gone {
		return
	}
	if room.currentPages == nil {
		room.currentPages = make(map[string]string)
	}

	room.currentPages[pageURL] = titleFromURL(pageURL)
}
