package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// roomState tracks where a room is in its lifecycle:
// waiting → question → results → (question | finished), with finished
// reachable from anywhere via endGame.
type roomState int

const (
	stateWaiting roomState = iota
	stateQuestion
	stateResults
	stateFinished
)

func (s roomState) String() string {
	switch s {
	case stateWaiting:
		return "waiting"
	case stateQuestion:
		return "question"
	case stateResults:
		return "results"
	case stateFinished:
		return "finished"
	}
	return "unknown"
}

const (
	voteYes = "yes"
	voteNo  = "no"
)

// roomTeardownDelay is how long a finished room lingers so the game_over
// notification can be delivered before the room is evicted.
const roomTeardownDelay = time.Second

// conn is one live transport connection, able to receive server messages.
// Implemented by the websocket client and by fake connections in tests.
type conn interface {
	id() string
	send(v any)
}

// Player is one seat in a room. The durable PlayerID survives reconnects;
// the attached conn is replaced on every successful rejoin.
type Player struct {
	PlayerID string
	Name     string
	conn     conn
}

// intent is one unit of work for a room's loop. Everything that touches
// room state, including timer expiries, arrives as an intent so handlers
// never run concurrently and each one leaves the room consistent.
type intent interface{ isIntent() }

type checkRoom struct{ c conn }

type joinRoom struct {
	c      conn
	name   string
	active bool // join_active_room: allowed while a game is running
}

type rejoinRoom struct {
	c        conn
	playerID string
	name     string // cached display name, logged for the degraded path
}

type leaveRoom struct{ c conn }

type connLost struct{ c conn }

type startGame struct{ c conn }

type submitVote struct {
	c    conn
	vote string
}

type forceResults struct{ c conn }

type nextQuestion struct{ c conn }

// graceExpired fires when a disconnected player's seat was held for the
// full grace period. connID pins the connection the player had when the
// timer was armed, so a rejoin in the meantime makes this a no-op.
type graceExpired struct {
	playerID string
	connID   string
}

// roundExpired fires when the optional round timer runs out. round pins
// the question it was armed for, so a stale timer is a no-op.
type roundExpired struct{ round int }

type teardown struct{}

// getView reflects internal state without data races; test-only.
type getView struct{ reply chan roomView }

func (checkRoom) isIntent()    {}
func (joinRoom) isIntent()     {}
func (rejoinRoom) isIntent()   {}
func (leaveRoom) isIntent()    {}
func (connLost) isIntent()     {}
func (startGame) isIntent()    {}
func (submitVote) isIntent()   {}
func (forceResults) isIntent() {}
func (nextQuestion) isIntent() {}
func (graceExpired) isIntent() {}
func (roundExpired) isIntent() {}
func (teardown) isIntent()     {}
func (getView) isIntent()      {}

// roomView is a consistent snapshot of room internals for tests.
type roomView struct {
	Code        string
	State       roomState
	HostConnID  string
	Players     []PlayerInfo
	Votes       map[string]string
	Round       int
	OrderIDs    []int
	GraceTimers int
}

// Room is one game session. Every field below inbox is owned by the run
// goroutine and must not be touched from outside it.
type Room struct {
	reg   *Registry
	cfg   *Config
	code  string
	inbox chan intent

	state       roomState
	hostConnID  string
	players     []*Player // insertion order; players[0] is next in line for host
	order       []Question
	round       int               // index into order, -1 before the first question
	votes       map[string]string // playerID → "yes" | "no"
	roundTimer  *time.Timer
	roundStart  time.Time
	graceTimers map[string]*time.Timer // playerID → pending seat removal
}

func newRoom(reg *Registry, code string, host *Player) *Room {
	return &Room{
		reg:         reg,
		cfg:         reg.cfg,
		code:        code,
		inbox:       make(chan intent, 256),
		state:       stateWaiting,
		hostConnID:  host.conn.id(),
		players:     []*Player{host},
		round:       -1,
		votes:       make(map[string]string),
		graceTimers: make(map[string]*time.Timer),
	}
}

// post queues an intent without blocking. The inbox only fills up if the
// room's loop has already stopped, in which case the intent is moot.
func (r *Room) post(m intent) {
	select {
	case r.inbox <- m:
	default:
		logf(r.cfg, "ROOMS: dropped intent %T for room %s", m, r.code)
	}
}

func (r *Room) run() {
	for m := range r.inbox {
		switch msg := m.(type) {
		case checkRoom:
			r.handleCheck(msg.c)
		case joinRoom:
			r.handleJoin(msg)
		case rejoinRoom:
			r.handleRejoin(msg)
		case leaveRoom:
			r.handleLeave(msg.c)
		case connLost:
			r.handleConnLost(msg.c)
		case startGame:
			r.handleStart(msg.c)
		case submitVote:
			r.handleVote(msg)
		case forceResults:
			r.handleForceResults(msg.c)
		case nextQuestion:
			r.handleNext(msg.c)
		case graceExpired:
			r.handleGraceExpired(msg)
		case roundExpired:
			r.handleRoundExpired(msg.round)
		case teardown:
			r.reg.remove(r.code)
			return
		case getView:
			msg.reply <- r.view()
		}
	}
}

// ---- membership ----

func (r *Room) handleCheck(c conn) {
	switch r.state {
	case stateWaiting:
		c.send(RoomCheckMessage{Type: "room_exists", RoomCode: r.code})
	case stateQuestion, stateResults:
		c.send(RoomCheckMessage{Type: "can_join_active_room", RoomCode: r.code, State: r.state.String()})
	default:
		c.send(ErrorMessage{Type: "error", Message: fmt.Sprintf("Game in room %s is already finished.", r.code)})
	}
}

func (r *Room) handleJoin(m joinRoom) {
	joinable := r.state == stateWaiting
	if m.active {
		joinable = r.state == stateQuestion || r.state == stateResults
	}
	if !joinable {
		m.c.send(ErrorMessage{Type: "error", Message: fmt.Sprintf("Room %s is not available for joining right now.", r.code)})
		return
	}

	name := strings.TrimSpace(m.name)
	if name == "" {
		name = defaultName(m.c.id())
	}

	for _, p := range r.players {
		if strings.EqualFold(p.Name, name) {
			m.c.send(ErrorMessage{Type: "error", Message: fmt.Sprintf("Name %q is already taken in this room.", name)})
			return
		}
	}

	player := &Player{
		PlayerID: uuid.NewString(),
		Name:     name,
		conn:     m.c,
	}
	r.players = append(r.players, player)
	r.reg.bind(m.c.id(), r)

	logf(r.cfg, "ROOMS: %s (player %s) joined room %s in state %s", name, player.PlayerID, r.code, r.state)

	m.c.send(RoomJoinedMessage{
		Type:     "room_joined",
		RoomCode: r.code,
		Players:  r.playerInfos(),
		IsHost:   false,
		PlayerID: player.PlayerID,
		HostID:   r.hostConnID,
	})

	r.broadcastPlayerList()

	if m.active {
		// Mid-game joiners also get a full snapshot so they can render
		// the current round immediately.
		m.c.send(RejoinSuccessMessage{
			Type:      "rejoin_success",
			RoomCode:  r.code,
			Players:   r.playerInfos(),
			IsHost:    false,
			GameState: r.snapshot(player.PlayerID),
			HostID:    r.hostConnID,
		})

		if r.state == stateQuestion {
			r.broadcastVotingStatus()
		}
	}
}

func (r *Room) handleRejoin(m rejoinRoom) {
	if r.state == stateFinished {
		m.c.send(RejoinFailedMessage{
			Type:    "rejoin_failed",
			Message: fmt.Sprintf("Could not rejoin room %s. Room does not exist or has expired.", r.code),
		})
		return
	}

	player := r.playerByID(m.playerID)
	if player == nil {
		logf(r.cfg, "ROOMS: rejoin for unknown player %s (cached name %q) in room %s", m.playerID, m.name, r.code)
		m.c.send(RejoinFailedMessage{
			Type:    "rejoin_failed",
			Message: fmt.Sprintf("Could not rejoin room %s. You are not part of this game session or were removed due to inactivity.", r.code),
		})
		return
	}

	oldConnID := player.conn.id()
	player.conn = m.c
	r.reg.unbind(oldConnID)
	r.reg.bind(m.c.id(), r)

	// The stored host pointer predates the connection swap, so host
	// status is resolved against the old connection id.
	isHost := false
	if r.hostConnID == oldConnID {
		r.hostConnID = m.c.id()
		isHost = true
	} else {
		isHost = r.hostConnID == m.c.id()
	}

	r.cancelGrace(player.PlayerID)

	logf(r.cfg, "ROOMS: %s (player %s) rejoined room %s, conn %s → %s, host=%t",
		player.Name, player.PlayerID, r.code, oldConnID, m.c.id(), isHost)

	r.broadcastPlayerList()

	m.c.send(RejoinSuccessMessage{
		Type:      "rejoin_success",
		RoomCode:  r.code,
		Players:   r.playerInfos(),
		IsHost:    isHost,
		GameState: r.snapshot(player.PlayerID),
		HostID:    r.hostConnID,
	})

	if r.state == stateQuestion {
		r.broadcastVotingStatus()
	}
}

func (r *Room) handleLeave(c conn) {
	if r.state == stateFinished {
		logf(r.cfg, "ROOMS: %s left already finished room %s", c.id(), r.code)
		return
	}

	i := r.playerIndexByConn(c.id())
	if i == -1 {
		logf(r.cfg, "ROOMS: leave from %s, not a member of room %s", c.id(), r.code)
		return
	}

	r.removePlayer(i, "left", "Last player left the room.")
}

func (r *Room) handleConnLost(c conn) {
	if r.state == stateFinished {
		return
	}

	i := r.playerIndexByConn(c.id())
	if i == -1 {
		// Already left explicitly, or a straggler event for a replaced
		// connection. Redundant either way.
		logf(r.cfg, "ROOMS: ignoring disconnect of %s, not a member of room %s", c.id(), r.code)
		return
	}
	player := r.players[i]
	connID := c.id()

	logf(r.cfg, "ROOMS: %s (player %s) disconnected from room %s, holding seat for %s",
		player.Name, player.PlayerID, r.code, r.cfg.gracePeriod)

	r.cancelGrace(player.PlayerID)
	playerID := player.PlayerID
	r.graceTimers[playerID] = time.AfterFunc(r.cfg.gracePeriod, func() {
		r.post(graceExpired{playerID: playerID, connID: connID})
	})

	// The host role must stay with a reachable player, so it moves right
	// away rather than waiting out the grace period. The seat itself is
	// kept for a possible rejoin.
	if r.hostConnID == connID && len(r.players) > 1 {
		if successor := r.hostSuccessor(connID); successor != nil {
			r.assignHost(successor)
		}
		r.broadcastPlayerList()
	}

	if r.state == stateQuestion {
		r.broadcastVotingStatus()
	}
}

func (r *Room) handleGraceExpired(m graceExpired) {
	if r.state == stateFinished {
		return
	}

	delete(r.graceTimers, m.playerID)

	player := r.playerByID(m.playerID)
	if player == nil {
		logf(r.cfg, "ROOMS: grace expiry for player %s already gone from room %s", m.playerID, r.code)
		return
	}
	if player.conn.id() != m.connID {
		logf(r.cfg, "ROOMS: grace expiry for player %s in room %s is stale, player rejoined", m.playerID, r.code)
		return
	}

	r.removePlayer(r.playerIndexByConn(m.connID), "timed out of", "Last player timed out.")
}

// removePlayer drops the player at index i and reconciles host role,
// votes, and room emptiness. Shared by explicit leave and grace expiry.
func (r *Room) removePlayer(i int, verb, emptyReason string) {
	player := r.players[i]
	wasHost := r.hostConnID == player.conn.id()

	r.cancelGrace(player.PlayerID)
	r.reg.unbind(player.conn.id())
	r.players = append(r.players[:i], r.players[i+1:]...)
	delete(r.votes, player.PlayerID)

	logf(r.cfg, "ROOMS: %s (player %s) %s room %s", player.Name, player.PlayerID, verb, r.code)

	if len(r.players) == 0 {
		r.endGame(emptyReason)
		return
	}

	if wasHost {
		r.assignHost(r.hostSuccessor(""))
	}

	r.broadcastPlayerList()

	if r.state == stateQuestion {
		r.checkAllVoted()
		r.broadcastVotingStatus()
	}
}

// hostSuccessor picks the next host: the earliest-joined player who is
// not sitting out a grace period, falling back to the earliest-joined
// player when everyone is. excludeConnID skips a seat whose connection
// just dropped but has not been removed yet.
func (r *Room) hostSuccessor(excludeConnID string) *Player {
	var fallback *Player
	for _, p := range r.players {
		if excludeConnID != "" && p.conn.id() == excludeConnID {
			continue
		}
		if fallback == nil {
			fallback = p
		}
		if _, graced := r.graceTimers[p.PlayerID]; !graced {
			return p
		}
	}
	return fallback
}

// assignHost hands the host role to p; only the new host is told.
func (r *Room) assignHost(p *Player) {
	r.hostConnID = p.conn.id()
	p.conn.send(HostChangedMessage{Type: "you_are_host_now"})
	logf(r.cfg, "ROOMS: %s (player %s) is now host of room %s", p.Name, p.PlayerID, r.code)
}

// ---- rounds and votes ----

func (r *Room) handleStart(c conn) {
	if r.hostConnID != c.id() {
		logf(r.cfg, "ROOMS: start from non-host %s in room %s", c.id(), r.code)
		return
	}
	if r.state != stateWaiting {
		logf(r.cfg, "ROOMS: start in room %s ignored, state is %s", r.code, r.state)
		return
	}
	if len(r.players) < r.cfg.minPlayers {
		c.send(ErrorMessage{Type: "error", Message: fmt.Sprintf("Need at least %d player(s) to start.", r.cfg.minPlayers)})
		return
	}

	r.order = shuffleQuestions(r.reg.questions)
	r.round = -1

	logf(r.cfg, "ROOMS: game started in room %s with %d players, %d questions", r.code, len(r.players), len(r.order))

	r.advanceRound()
}

// advanceRound moves to the next question, or ends the game when the
// shuffled order is exhausted.
func (r *Room) advanceRound() {
	r.stopRoundTimer()

	r.round++
	if r.round >= len(r.order) {
		r.endGame("All questions answered for this session!")
		return
	}

	q := r.order[r.round]
	if q.Text == "" {
		r.endGame("Internal error retrieving question data.")
		return
	}

	r.state = stateQuestion
	r.votes = make(map[string]string)

	msg := NewQuestionMessage{
		Type:       "new_question",
		QuestionID: q.ID,
		Text:       q.Text,
		HideTimer:  !r.cfg.roundTimer,
	}
	if r.cfg.roundTimer {
		msg.Duration = int(r.cfg.voteDuration.Seconds())
	}
	r.broadcast(msg)
	r.broadcastVotingStatus()

	if r.cfg.roundTimer {
		round := r.round
		r.roundStart = time.Now()
		r.roundTimer = time.AfterFunc(r.cfg.voteDuration, func() {
			r.post(roundExpired{round: round})
		})
	}
}

// handleVote records a vote. Anything invalid is silently dropped: a
// duplicate submission is most likely a network retry, not an attack.
func (r *Room) handleVote(m submitVote) {
	if r.state != stateQuestion {
		logf(r.cfg, "ROOMS: vote in room %s dropped, state is %s", r.code, r.state)
		return
	}
	if m.vote != voteYes && m.vote != voteNo {
		logf(r.cfg, "ROOMS: vote %q from %s in room %s dropped", m.vote, m.c.id(), r.code)
		return
	}

	i := r.playerIndexByConn(m.c.id())
	if i == -1 {
		logf(r.cfg, "ROOMS: vote from %s, not a member of room %s", m.c.id(), r.code)
		return
	}
	player := r.players[i]

	if _, voted := r.votes[player.PlayerID]; voted {
		logf(r.cfg, "ROOMS: duplicate vote from %s (player %s) in room %s dropped", player.Name, player.PlayerID, r.code)
		return
	}

	r.votes[player.PlayerID] = m.vote
	logf(r.cfg, "ROOMS: %s (player %s) voted %s in room %s", player.Name, player.PlayerID, m.vote, r.code)

	r.broadcastVotingStatus()
	r.checkAllVoted()
}

func (r *Room) handleForceResults(c conn) {
	if r.hostConnID != c.id() {
		logf(r.cfg, "ROOMS: force results from non-host %s in room %s", c.id(), r.code)
		return
	}

	r.showResults()
}

func (r *Room) handleNext(c conn) {
	if r.hostConnID != c.id() {
		logf(r.cfg, "ROOMS: next question from non-host %s in room %s", c.id(), r.code)
		return
	}
	if r.state != stateResults {
		logf(r.cfg, "ROOMS: next question in room %s ignored, state is %s", r.code, r.state)
		return
	}

	r.advanceRound()
}

func (r *Room) handleRoundExpired(round int) {
	if r.state != stateQuestion || round != r.round {
		logf(r.cfg, "ROOMS: stale round timer for round %d in room %s", round, r.code)
		return
	}

	logf(r.cfg, "ROOMS: voting window closed for round %d in room %s", round, r.code)
	r.showResults()
}

// checkAllVoted advances to results as soon as every present player has
// voted. Re-evaluated after each vote and after each departure.
func (r *Room) checkAllVoted() {
	if r.state != stateQuestion || len(r.players) == 0 {
		return
	}

	if len(r.votes) >= len(r.players) {
		logf(r.cfg, "ROOMS: all %d players voted in room %s", len(r.players), r.code)
		r.showResults()
	}
}

// showResults moves question → results exactly once. The last vote, a
// host force, and the round timer all funnel through the same loop, so a
// repeat attempt is a logged no-op rather than an error.
func (r *Room) showResults() {
	if r.state != stateQuestion {
		logf(r.cfg, "ROOMS: results transition in room %s ignored, state is %s", r.code, r.state)
		return
	}

	r.stopRoundTimer()
	r.state = stateResults

	var yes, no int
	for _, v := range r.votes {
		switch v {
		case voteYes:
			yes++
		case voteNo:
			no++
		}
	}

	q := r.order[r.round]
	logf(r.cfg, "ROOMS: results for round %d in room %s: %d yes, %d no", r.round, r.code, yes, no)

	r.broadcast(ResultsMessage{
		Type:       "results",
		YesVotes:   yes,
		NoVotes:    no,
		QuestionID: q.ID,
		Text:       q.Text,
	})
}

// ---- lifecycle ----

// endGame is terminal: notify everyone, cancel every outstanding timer,
// and schedule the room's eviction shortly after so the notification is
// delivered first.
func (r *Room) endGame(reason string) {
	if r.state == stateFinished {
		return
	}

	logf(r.cfg, "ROOMS: game over in room %s: %s", r.code, reason)

	r.state = stateFinished
	r.stopRoundTimer()
	for id, t := range r.graceTimers {
		t.Stop()
		delete(r.graceTimers, id)
	}

	r.broadcast(GameOverMessage{Type: "game_over", Message: reason})

	for _, p := range r.players {
		r.reg.unbind(p.conn.id())
	}

	time.AfterFunc(roomTeardownDelay, func() {
		r.post(teardown{})
	})
}

func (r *Room) stopRoundTimer() {
	if r.roundTimer != nil {
		r.roundTimer.Stop()
		r.roundTimer = nil
	}
}

func (r *Room) cancelGrace(playerID string) {
	if t, ok := r.graceTimers[playerID]; ok {
		t.Stop()
		delete(r.graceTimers, playerID)
	}
}

// ---- views and broadcasts ----

func (r *Room) playerByID(playerID string) *Player {
	for _, p := range r.players {
		if p.PlayerID == playerID {
			return p
		}
	}
	return nil
}

func (r *Room) playerIndexByConn(connID string) int {
	for i, p := range r.players {
		if p.conn.id() == connID {
			return i
		}
	}
	return -1
}

func (r *Room) playerInfos() []PlayerInfo {
	infos := make([]PlayerInfo, 0, len(r.players))
	for _, p := range r.players {
		infos = append(infos, PlayerInfo{ID: p.conn.id(), Name: p.Name, PlayerID: p.PlayerID})
	}
	return infos
}

func (r *Room) votingStatus() VotingStatus {
	return VotingStatus{Votes: len(r.votes), Total: len(r.players)}
}

func (r *Room) broadcast(v any) {
	for _, p := range r.players {
		p.conn.send(v)
	}
}

func (r *Room) broadcastPlayerList() {
	msg := PlayerListMessage{
		Type:    "player_list",
		Players: r.playerInfos(),
		HostID:  r.hostConnID,
	}
	if r.state == stateQuestion {
		status := r.votingStatus()
		msg.VotingStatus = &status
	}
	r.broadcast(msg)
}

func (r *Room) broadcastVotingStatus() {
	if r.state != stateQuestion {
		return
	}
	r.broadcast(VotingStatusMessage{Type: "voting_status", VotingStatus: r.votingStatus()})
}

// snapshot builds the read-only view a client needs to resume play,
// personalized with that player's own vote. It mutates nothing; rejoin
// and mid-game join use it identically.
func (r *Room) snapshot(playerID string) GameState {
	gs := GameState{
		State:     r.state.String(),
		HideTimer: !r.cfg.roundTimer,
	}

	if r.state != stateQuestion && r.state != stateResults {
		return gs
	}

	if r.round >= 0 && r.round < len(r.order) {
		q := r.order[r.round]
		gs.QuestionID = q.ID
		gs.Text = q.Text
	}

	gs.MyVote = r.votes[playerID]

	switch r.state {
	case stateQuestion:
		if r.cfg.roundTimer {
			left := r.cfg.voteDuration - time.Since(r.roundStart)
			if left < 0 {
				left = 0
			}
			gs.DurationLeft = int(left.Round(time.Second).Seconds())
		}
		status := r.votingStatus()
		gs.VotingStatus = &status
	case stateResults:
		tally := &VoteTally{}
		for _, v := range r.votes {
			switch v {
			case voteYes:
				tally.YesVotes++
			case voteNo:
				tally.NoVotes++
			}
		}
		gs.Results = tally
	}

	return gs
}

func (r *Room) view() roomView {
	votes := make(map[string]string, len(r.votes))
	for k, v := range r.votes {
		votes[k] = v
	}

	ids := make([]int, 0, len(r.order))
	for _, q := range r.order {
		ids = append(ids, q.ID)
	}

	return roomView{
		Code:        r.code,
		State:       r.state,
		HostConnID:  r.hostConnID,
		Players:     r.playerInfos(),
		Votes:       votes,
		Round:       r.round,
		OrderIDs:    ids,
		GraceTimers: len(r.graceTimers),
	}
}
