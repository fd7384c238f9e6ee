/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"log"
	"time"
)

// Every rejectable player action maps to one of these. They are surfaced to
// the offending connection only, as an error event, and never mutate state.
var (
	errInvalidURL        = errors.New("invalid URL; only allowed wiki pages may be used")
	errRoomNotFound      = errors.New("room not found")
	errRoomFull          = errors.New("room is full")
	errNotWaiting        = errors.New("room is not waiting for players")
	errNoActiveSession   = errors.New("no game is currently active")
	errNotHost           = errors.New("only the host may do that")
	errNotInRoom         = errors.New("you are not in a room")
	errNotReady          = errors.New("not all players are ready")
	errNotEnoughPlayers  = errors.New("at least two players are required")
	errWrongMode         = errors.New("answers are not accepted in this mode")
	errDifficultyMissing = errors.New("difficulty page list not found")
	errDifficultyEmpty   = errors.New("difficulty page list is empty")
	errNotFinished       = errors.New("room can only be reset once the game has finished")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}
