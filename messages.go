package main

import (
	"time"
)

type roomStatus string

const (
	statusWaiting  roomStatus = "waiting"
	statusPlaying  roomStatus = "playing"
	statusFinished roomStatus = "finished"
)

type gameMode string

const (
	modeNavigation gameMode = "navigation"
	modeGuessing   gameMode = "guessing"
)

func (m gameMode) valid() bool {
	return m == modeNavigation || m == modeGuessing
}

type difficulty string

const (
	difficultyEasy   difficulty = "easy"
	difficultyMedium difficulty = "medium"
	difficultyHard   difficulty = "hard"
)

func (d difficulty) valid() bool {
	return d == difficultyEasy || d == difficultyMedium || d == difficultyHard
}

// Settings are the host-tunable knobs of a room.
type Settings struct {
	AllowCtrlF bool       `json:"allow_ctrl_f"`
	GameMode   gameMode   `json:"game_mode"`
	Difficulty difficulty `json:"difficulty"`
}

func defaultSettings() Settings {
	return Settings{
		AllowCtrlF: true,
		GameMode:   modeNavigation,
		Difficulty: difficultyEasy,
	}
}

// settingsPatch is a permissive partial update: unknown or invalid values
// are ignored rather than rejected.
type settingsPatch struct {
	AllowCtrlF *bool   `json:"allow_ctrl_f,omitempty"`
	GameMode   *string `json:"game_mode,omitempty"`
	Difficulty *string `json:"difficulty,omitempty"`
}

// clientMessage is the single inbound envelope; Type selects the action and
// the remaining fields are populated per action.
type clientMessage struct {
	Type       string         `json:"type"`
	Username   string         `json:"username,omitempty"`
	RoomID     string         `json:"room_id,omitempty"`
	URL        string         `json:"url,omitempty"`
	TargetURL  string         `json:"target_url,omitempty"`
	Settings   *settingsPatch `json:"settings,omitempty"`
	Answer     string         `json:"answer,omitempty"`
	CurrentURL string         `json:"current_url,omitempty"`
	GuessCount int            `json:"guess_count,omitempty"`
}

// RoomInfo is the read-only projection of a room sent to clients.
type RoomInfo struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Host       string                `json:"host"`
	Players    []string              `json:"players"`
	PlayerInfo map[string]PlayerInfo `json:"player_info"`
	Status     roomStatus            `json:"status"`
	MaxPlayers int                   `json:"max_players"`
	TargetURL  string                `json:"target_url"`
	Settings   Settings              `json:"settings"`
}

type PlayerInfo struct {
	Username string `json:"username"`
	Ready    bool   `json:"ready"`
}

// RoomSummary is the lobby-list projection of a joinable room.
type RoomSummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Host        string     `json:"host"`
	PlayerCount int        `json:"player_count"`
	MaxPlayers  int        `json:"max_players"`
	Status      roomStatus `json:"status"`
}

// SessionState is the snapshot of a running game sent to clients.
type SessionState struct {
	StartURL  string                    `json:"start_url"`
	TargetURL string                    `json:"target_url"`
	Players   map[string]PlayerSnapshot `json:"player_states"`
	StartedAt time.Time                 `json:"started_at"`
	Finished  bool                      `json:"finished"`
}

type PlayerSnapshot struct {
	CurrentURL string     `json:"current_url"`
	Moves      int        `json:"moves"`
	Path       []string   `json:"path"`
	Finished   bool       `json:"finished"`
	FinishTime *time.Time `json:"finish_time,omitempty"`
	Eliminated bool       `json:"eliminated"`
	GaveUp     bool       `json:"gave_up"`
}

// PlayerResult is one row of the aggregated final standings.
type PlayerResult struct {
	PlayerID   string   `json:"player_id"`
	Username   string   `json:"username"`
	Moves      int      `json:"moves"`
	Path       []string `json:"path"`
	Rank       int      `json:"rank"`
	TimeTaken  *float64 `json:"time_taken"`
	Eliminated bool     `json:"eliminated"`
	GaveUp     bool     `json:"gave_up"`
}

// Outbound events. Each struct carries its own type discriminator so the
// client can switch on a single field.

type errorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

func wsError(err error) errorMessage {
	return errorMessage{Type: "error", Message: err.Error()}
}

type connectionResponseMessage struct {
	Type     string `json:"type"` // "connection_response"
	Status   string `json:"status"`
	PlayerID string `json:"player_id"`
}

type roomCreatedMessage struct {
	Type     string   `json:"type"` // "room_created"
	RoomID   string   `json:"room_id"`
	RoomInfo RoomInfo `json:"room_info"`
}

type playerJoinedMessage struct {
	Type     string   `json:"type"` // "player_joined"
	PlayerID string   `json:"player_id"`
	Username string   `json:"username"`
	RoomInfo RoomInfo `json:"room_info"`
}

type playerReadyChangedMessage struct {
	Type     string   `json:"type"` // "player_ready_changed"
	PlayerID string   `json:"player_id"`
	Ready    bool     `json:"ready"`
	RoomInfo RoomInfo `json:"room_info"`
}

type allPlayersReadyMessage struct {
	Type     string   `json:"type"` // "all_players_ready"
	RoomInfo RoomInfo `json:"room_info"`
}

type targetURLUpdatedMessage struct {
	Type      string   `json:"type"` // "target_url_updated"
	RoomID    string   `json:"room_id"`
	TargetURL string   `json:"target_url"`
	RoomInfo  RoomInfo `json:"room_info"`
}

type roomSettingsUpdatedMessage struct {
	Type     string   `json:"type"` // "room_settings_updated"
	RoomID   string   `json:"room_id"`
	Settings Settings `json:"settings"`
	RoomInfo RoomInfo `json:"room_info"`
}

type gameStartedMessage struct {
	Type         string       `json:"type"` // "game_started"
	StartURL     string       `json:"start_url"`
	TargetURL    string       `json:"target_url"`
	GameState    SessionState `json:"game_state"`
	RoomInfo     RoomInfo     `json:"room_info"`
	RoomSettings Settings     `json:"room_settings"`
}

type playerMovedMessage struct {
	Type      string       `json:"type"` // "player_moved"
	PlayerID  string       `json:"player_id"`
	URL       string       `json:"url"`
	Moves     int          `json:"moves"`
	Finished  bool         `json:"finished"`
	GameState SessionState `json:"game_state"`
}

type playerFinishedMessage struct {
	Type            string       `json:"type"` // "player_finished"
	PlayerID        string       `json:"player_id"`
	Rank            int          `json:"rank"`
	Moves           int          `json:"moves"`
	FinishedPlayers []string     `json:"finished_players"`
	GameState       SessionState `json:"game_state"`
}

type playerEliminatedMessage struct {
	Type              string       `json:"type"` // "player_eliminated"
	PlayerID          string       `json:"player_id"`
	GameState         SessionState `json:"game_state"`
	EliminationReason string       `json:"elimination_reason"`
}

type playerGaveUpMessage struct {
	Type      string       `json:"type"` // "player_gave_up"
	PlayerID  string       `json:"player_id"`
	GameState SessionState `json:"game_state"`
}

type answerResultMessage struct {
	Type         string `json:"type"` // "answer_result"
	IsCorrect    bool   `json:"is_correct"`
	CorrectTitle string `json:"correct_title,omitempty"`
	NewURL       string `json:"new_url,omitempty"`
	GuessCount   int    `json:"guess_count"`
}

type playerAnsweredCorrectlyMessage struct {
	Type       string       `json:"type"` // "player_answered_correctly"
	PlayerID   string       `json:"player_id"`
	PlayerName string       `json:"player_name"`
	GameState  SessionState `json:"game_state"`
}

type gameFinishedMessage struct {
	Type      string         `json:"type"` // "game_finished"
	Results   []PlayerResult `json:"results"`
	GameState SessionState   `json:"game_state"`
}

type roomResetMessage struct {
	Type     string   `json:"type"` // "room_reset"
	RoomID   string   `json:"room_id"`
	RoomInfo RoomInfo `json:"room_info"`
}

type playerLeftMessage struct {
	Type       string        `json:"type"` // "player_left"
	PlayerID   string        `json:"player_id"`
	RoomInfo   RoomInfo      `json:"room_info"`
	GameState  *SessionState `json:"game_state,omitempty"`
	DuringGame bool          `json:"during_game,omitempty"`
}

type leftRoomMessage struct {
	Type string `json:"type"` // "left_room"
}

type availableRoomsMessage struct {
	Type  string        `json:"type"` // "available_rooms"
	Rooms []RoomSummary `json:"rooms"`
}
