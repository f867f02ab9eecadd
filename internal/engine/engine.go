package engine

// Pure Pong physics. One Step call advances a State by exactly one
// tick; Step works on a copy, so concurrency is the caller's problem.

const (
	// Table coordinates are percentages, 0-100 on both axes.
	TableMin = 0.0
	TableMax = 100.0

	// PaddleHalf is half the paddle's height band; a paddle at offset
	// o covers [o-PaddleHalf, o+PaddleHalf].
	PaddleHalf = 10.0
	// PaddleStep is the per-tick paddle movement.
	PaddleStep = 2.5

	// The left paddle returns the ball below x=4, the right paddle
	// above x=96. Walls reflect at y=2 and y=98.
	LeftBounceX  = 4.0
	RightBounceX = 96.0
	WallTop      = 2.0
	WallBottom   = 98.0

	// maxAngle scales the paddle-contact offset into a bounce angle.
	maxAngle = 75.0
	// flatDiff substitutes a dead-center hit so the return is never
	// perfectly flat.
	flatDiff = 0.02

	// SpeedIncrement is added on every paddle bounce; speed resets to
	// InitialSpeed when a point is scored.
	SpeedIncrement = 0.05
	InitialSpeed   = 1.0

	// A side wins once its score exceeds WinScore and exceeds the
	// opponent's score plus WinMargin; 12-10 keeps playing, 12-9 ends.
	WinScore  = 11
	WinMargin = 2
	// ForfeitScore is the terminal score awarded to the remaining side
	// when the other side's connection drops mid-game.
	ForfeitScore = 12
)

// State is the authoritative physics snapshot for one match.
type State struct {
	P1 float64 `json:"p1"` // side 1 paddle center offset
	P2 float64 `json:"p2"` // side 2 paddle center offset

	BallX float64 `json:"ballX"`
	BallY float64 `json:"ballY"`

	Direction float64 `json:"direction"` // +1 toward side 2, -1 toward side 1
	Angle     float64 `json:"angle"`     // degrees, signed
	Speed     float64 `json:"speed"`

	Score1 int `json:"score1"`
	Score2 int `json:"score2"`
	Win    int `json:"win"` // 0 in progress, 1 or 2 terminal winner

	// wallBounced latches a wall reflection so the angle flips only
	// once per approach to the band.
	wallBounced bool
}

// Inputs is the per-tick held-key state for both sides.
type Inputs struct {
	P1Up, P1Down bool
	P2Up, P2Down bool
}

type EventType string

const (
	EvtPaddleBounce EventType = "PaddleBounce"
	EvtWallBounce   EventType = "WallBounce"
	EvtGoal         EventType = "Goal"
	EvtWin          EventType = "Win"
)

// Event reports something that happened during a Step. Side is the
// side the event concerns: the bouncing paddle, the scoring side or
// the winner.
type Event struct {
	Type EventType
	Side int
}

// NewState returns the serve position: ball and paddles centered, flat
// angle, base speed, ball travelling toward side 1.
func NewState() State {
	return State{
		P1:        50,
		P2:        50,
		BallX:     50,
		BallY:     50,
		Direction: -1,
		Speed:     InitialSpeed,
	}
}

// Step advances the state by one tick: paddle movement, bounce
// resolution, ball advance or goal. It is a no-op once Win is set.
func Step(s State, in Inputs) (State, []Event) {
	if s.Win != 0 {
		return s, nil
	}

	var events []Event
	vx, vy := Velocity(s.Direction, s.Speed, s.Angle)

	s.P1 = movePaddle(s.P1, in.P1Up, in.P1Down)
	s.P2 = movePaddle(s.P2, in.P2Up, in.P2Down)

	newX := s.BallX + vx
	if newX < TableMin || newX > TableMax {
		return score(s, events)
	}

	// Paddle bounces. The left check additionally requires the ball to
	// be travelling left, which prevents a double bounce while the
	// ball is still inside the band.
	switch {
	case newX > RightBounceX && inBand(s.BallY, s.P2) && s.Direction == 1:
		s = bounce(s, s.P2, -maxAngle)
		events = append(events, Event{Type: EvtPaddleBounce, Side: 2})
	case newX < LeftBounceX && inBand(s.BallY, s.P1) && s.Direction == -1:
		s = bounce(s, s.P1, maxAngle)
		events = append(events, Event{Type: EvtPaddleBounce, Side: 1})
	}
	vx, vy = Velocity(s.Direction, s.Speed, s.Angle)

	// Wall reflection, latched once per approach.
	newY := s.BallY + vy
	if newY <= WallTop || newY >= WallBottom {
		if !s.wallBounced {
			s.Angle = -s.Angle
			s.wallBounced = true
			events = append(events, Event{Type: EvtWallBounce})
			vx, vy = Velocity(s.Direction, s.Speed, s.Angle)
		}
	} else {
		s.wallBounced = false
	}

	s.BallX += vx
	s.BallY += vy
	return s, events
}

// Forfeit resolves a mid-game disconnect to a terminal state: the
// leaving side loses with a lopsided score.
func Forfeit(s State, leavingSide int) State {
	if leavingSide == 1 {
		s.Score1, s.Score2 = 0, ForfeitScore
		s.Win = 2
	} else {
		s.Score1, s.Score2 = ForfeitScore, 0
		s.Win = 1
	}
	return s
}

func movePaddle(offset float64, up, down bool) float64 {
	if up && offset-PaddleHalf-PaddleStep >= TableMin {
		offset -= PaddleStep
	}
	if down && offset+PaddleHalf+PaddleStep <= TableMax {
		offset += PaddleStep
	}
	return offset
}

func inBand(ballY, paddle float64) bool {
	return ballY >= paddle-PaddleHalf && ballY <= paddle+PaddleHalf
}

func bounce(s State, paddle, angleScale float64) State {
	diff := (s.BallY - paddle) / PaddleHalf
	if diff == 0 {
		diff = flatDiff
	}
	s.Direction = -s.Direction
	s.Angle = diff * angleScale
	s.Speed += SpeedIncrement
	return s
}

// score awards the point to the side the ball travelled away from,
// checks the win-by-2 rule and resets the rally.
func score(s State, events []Event) (State, []Event) {
	if s.Direction == 1 {
		s.Score1++
		events = append(events, Event{Type: EvtGoal, Side: 1})
	} else {
		s.Score2++
		events = append(events, Event{Type: EvtGoal, Side: 2})
	}

	if s.Score1 > WinScore && s.Score1 > s.Score2+WinMargin {
		s.Win = 1
		events = append(events, Event{Type: EvtWin, Side: 1})
	} else if s.Score2 > WinScore && s.Score2 > s.Score1+WinMargin {
		s.Win = 2
		events = append(events, Event{Type: EvtWin, Side: 2})
	}

	s.BallX, s.BallY = 50, 50
	s.Angle = 0
	s.Speed = InitialSpeed
	s.wallBounced = false
	return s, events
}

// ContainsEvent reports whether events holds an event of the given type.
func ContainsEvent(events []Event, t EventType) bool {
	for _, e := range events {
		if e.Type == t {
			return true
		}
	}
	return false
}
