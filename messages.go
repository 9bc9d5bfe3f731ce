package main

// ClientMessage covers every intent a client can send. Unused fields are
// left empty; the type field decides which ones matter.
type ClientMessage struct {
	Type     string `json:"type"`                // "create_room", "check_room", "join_room", "join_active_room", "rejoin", "leave_room", "start_game", "vote", "force_results", "next_question"
	Name     string `json:"name,omitempty"`      // create_room / join_room / join_active_room / rejoin
	RoomCode string `json:"room_code,omitempty"` // check_room / join_room / join_active_room / rejoin
	PlayerID string `json:"player_id,omitempty"` // rejoin
	Vote     string `json:"vote,omitempty"`      // vote: "yes" or "no"
}

// PlayerInfo is the public view of one seat in a room.
type PlayerInfo struct {
	ID       string `json:"id"`        // current connection id
	Name     string `json:"name"`      // display name
	PlayerID string `json:"player_id"` // durable id, stable across reconnects
}

// RoomJoinedMessage confirms a successful create or join to that player.
type RoomJoinedMessage struct {
	Type     string       `json:"type"` // "room_joined"
	RoomCode string       `json:"room_code"`
	Players  []PlayerInfo `json:"players"`
	IsHost   bool         `json:"is_host"`
	PlayerID string       `json:"player_id"`
	HostID   string       `json:"host_id"`
}

// RoomCheckMessage answers a check_room probe for a room that can still
// be entered.
type RoomCheckMessage struct {
	Type     string `json:"type"` // "room_exists" or "can_join_active_room"
	RoomCode string `json:"room_code"`
	State    string `json:"state,omitempty"` // set for "can_join_active_room"
}

// ErrorMessage reports a rejected intent to the originating client only.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

// VotingStatus is the live votes-received/players-present ratio.
type VotingStatus struct {
	Votes int `json:"votes"`
	Total int `json:"total"`
}

// PlayerListMessage is broadcast to the whole room on any membership or
// host change.
type PlayerListMessage struct {
	Type         string        `json:"type"` // "player_list"
	Players      []PlayerInfo  `json:"players"`
	HostID       string        `json:"host_id"`
	VotingStatus *VotingStatus `json:"voting_status,omitempty"` // only while a question is open
}

// NewQuestionMessage starts a round for the whole room.
type NewQuestionMessage struct {
	Type       string `json:"type"` // "new_question"
	QuestionID int    `json:"question_id"`
	Text       string `json:"text"`
	Duration   int    `json:"duration,omitempty"` // seconds, when the round timer is on
	HideTimer  bool   `json:"hide_timer"`
}

// VotingStatusMessage is broadcast after every accepted vote and on any
// change to the set of present players during a question.
type VotingStatusMessage struct {
	Type string `json:"type"` // "voting_status"
	VotingStatus
}

// ResultsMessage closes a round with the tally.
type ResultsMessage struct {
	Type       string `json:"type"` // "results"
	YesVotes   int    `json:"yes_votes"`
	NoVotes    int    `json:"no_votes"`
	QuestionID int    `json:"question_id"`
	Text       string `json:"text"`
}

// HostChangedMessage is sent only to the newly appointed host.
type HostChangedMessage struct {
	Type string `json:"type"` // "you_are_host_now"
}

// VoteTally is the yes/no breakdown inside a game state snapshot.
type VoteTally struct {
	YesVotes int `json:"yes_votes"`
	NoVotes  int `json:"no_votes"`
}

// GameState is the snapshot a client needs to resume play at the exact
// round/vote/result view, personalized with its own vote.
type GameState struct {
	State        string        `json:"state"`
	HideTimer    bool          `json:"hide_timer"`
	QuestionID   int           `json:"question_id,omitempty"`
	Text         string        `json:"text,omitempty"`
	DurationLeft int           `json:"duration_left,omitempty"` // seconds, when the round timer is on
	MyVote       string        `json:"my_vote,omitempty"`
	VotingStatus *VotingStatus `json:"voting_status,omitempty"`
	Results      *VoteTally    `json:"results,omitempty"`
}

// RejoinSuccessMessage restores a reconnecting (or mid-game joining)
// player to the current game view.
type RejoinSuccessMessage struct {
	Type      string       `json:"type"` // "rejoin_success"
	RoomCode  string       `json:"room_code"`
	Players   []PlayerInfo `json:"players"`
	IsHost    bool         `json:"is_host"`
	GameState GameState    `json:"game_state"`
	HostID    string       `json:"host_id"`
}

// RejoinFailedMessage is a normal, expected outcome when the room or the
// player is no longer known.
type RejoinFailedMessage struct {
	Type    string `json:"type"` // "rejoin_failed"
	Message string `json:"message"`
}

// GameOverMessage is the terminal notification for a room.
type GameOverMessage struct {
	Type    string `json:"type"` // "game_over"
	Message string `json:"message"`
}
