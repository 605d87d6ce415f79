package models

import (
	"fmt"
	"time"
)

// Color is the side a player had on a board.
type Color string

const (
	ColorWhite Color = "white"
	ColorBlack Color = "black"
)

// Opposite returns the other color.
func (c Color) Opposite() Color {
	if c == ColorWhite {
		return ColorBlack
	}
	return ColorWhite
}

// ResultValue is the stored result column.
type ResultValue string

const (
	ResultWhiteWins  ResultValue = "white_wins"
	ResultBlackWins  ResultValue = "black_wins"
	ResultDraw       ResultValue = "draw"
	ResultDoubleLoss ResultValue = "double_loss"
	ResultUnplayed   ResultValue = "unplayed"
)

// Valid reports enum membership.
func (r ResultValue) Valid() bool {
	switch r {
	case ResultWhiteWins, ResultBlackWins, ResultDraw, ResultDoubleLoss, ResultUnplayed:
		return true
	}
	return false
}

// ResultType qualifies how a result came about.
type ResultType string

const (
	ResultTypeNormal        ResultType = "normal"
	ResultTypeForfeit       ResultType = "forfeit"
	ResultTypeTimeout       ResultType = "timeout"
	ResultTypeBye           ResultType = "bye"
	ResultTypeDefault       ResultType = "default"
	ResultTypeAdjourned     ResultType = "adjourned"
	ResultTypeDoubleForfeit ResultType = "double_forfeit"
	ResultTypeCancelled     ResultType = "cancelled"
)

// Valid reports enum membership.
func (t ResultType) Valid() bool {
	switch t {
	case ResultTypeNormal, ResultTypeForfeit, ResultTypeTimeout, ResultTypeBye,
		ResultTypeDefault, ResultTypeAdjourned, ResultTypeDoubleForfeit, ResultTypeCancelled:
		return true
	}
	return false
}

// RequiresApproval is true for irregular result types that need arbiter sign-off.
func (t ResultType) RequiresApproval() bool {
	switch t {
	case ResultTypeForfeit, ResultTypeDefault, ResultTypeDoubleForfeit, ResultTypeCancelled:
		return true
	}
	return false
}

// Outcome is the decided result of a game. Every variant is legal by construction.
type Outcome interface {
	Result() ResultValue
	Type() ResultType
	// Score returns the points earned by the given side. Bye scoring is policy driven
	// and resolved by the standings calculator.
	Score(c Color) float64
	// Played reports whether the game was contested over the board.
	Played() bool
	sealed()
}

// Decisive is a played game with a winner.
type Decisive struct {
	Winner  Color
	Timeout bool
}

// Draw is a played game shared between both sides.
type Draw struct {
	Timeout bool
}

// Forfeit is a win awarded without play. Default marks a forfeit declared by the arbiter.
type Forfeit struct {
	Loser   Color
	Default bool
}

// Bye is a round without an opponent.
type Bye struct{}

// DoubleForfeit scores zero for both sides.
type DoubleForfeit struct{}

// Adjourned is decided for the completion gate but awaits arbiter follow-up.
type Adjourned struct{}

// Cancelled voids the game.
type Cancelled struct{}

func (o Decisive) Result() ResultValue {
	if o.Winner == ColorWhite {
		return ResultWhiteWins
	}
	return ResultBlackWins
}

func (o Decisive) Type() ResultType {
	if o.Timeout {
		return ResultTypeTimeout
	}
	return ResultTypeNormal
}

func (o Decisive) Score(c Color) float64 {
	if c == o.Winner {
		return 1
	}
	return 0
}

func (Decisive) Played() bool { return true }
func (Decisive) sealed()      {}

func (Draw) Result() ResultValue { return ResultDraw }

func (o Draw) Type() ResultType {
	if o.Timeout {
		return ResultTypeTimeout
	}
	return ResultTypeNormal
}

func (Draw) Score(Color) float64 { return 0.5 }
func (Draw) Played() bool        { return true }
func (Draw) sealed()             {}

func (o Forfeit) Result() ResultValue {
	if o.Loser == ColorBlack {
		return ResultWhiteWins
	}
	return ResultBlackWins
}

func (o Forfeit) Type() ResultType {
	if o.Default {
		return ResultTypeDefault
	}
	return ResultTypeForfeit
}

func (o Forfeit) Score(c Color) float64 {
	if c == o.Loser {
		return 0
	}
	return 1
}

func (Forfeit) Played() bool { return false }
func (Forfeit) sealed()      {}

func (Bye) Result() ResultValue { return ResultWhiteWins }
func (Bye) Type() ResultType    { return ResultTypeBye }

func (Bye) Score(c Color) float64 {
	if c == ColorWhite {
		return 1
	}
	return 0
}

func (Bye) Played() bool { return false }
func (Bye) sealed()      {}

func (DoubleForfeit) Result() ResultValue { return ResultDoubleLoss }
func (DoubleForfeit) Type() ResultType    { return ResultTypeDoubleForfeit }
func (DoubleForfeit) Score(Color) float64 { return 0 }
func (DoubleForfeit) Played() bool        { return false }
func (DoubleForfeit) sealed()             {}

func (Adjourned) Result() ResultValue { return ResultUnplayed }
func (Adjourned) Type() ResultType    { return ResultTypeAdjourned }
func (Adjourned) Score(Color) float64 { return 0 }
func (Adjourned) Played() bool        { return false }
func (Adjourned) sealed()             {}

func (Cancelled) Result() ResultValue { return ResultUnplayed }
func (Cancelled) Type() ResultType    { return ResultTypeCancelled }
func (Cancelled) Score(Color) float64 { return 0 }
func (Cancelled) Played() bool        { return false }
func (Cancelled) sealed()             {}

// OutcomeError describes an inconsistent result/result_type pair.
type OutcomeError struct {
	Field   string
	Message string
}

func (e *OutcomeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ParseOutcome builds the outcome for a stored or proposed pair. hasBlack tells
// whether the board has a second player.
func ParseOutcome(result ResultValue, resultType ResultType, hasBlack bool) (Outcome, error) {
	if !result.Valid() {
		return nil, &OutcomeError{Field: "result", Message: fmt.Sprintf("unknown result %q", result)}
	}
	if !resultType.Valid() {
		return nil, &OutcomeError{Field: "resultType", Message: fmt.Sprintf("unknown result type %q", resultType)}
	}
	if !hasBlack && resultType != ResultTypeBye {
		return nil, &OutcomeError{Field: "resultType", Message: "a board without a black player can only be a bye"}
	}
	mismatch := func() error {
		return &OutcomeError{Field: "result", Message: fmt.Sprintf("result %q is inconsistent with result type %q", result, resultType)}
	}

	switch resultType {
	case ResultTypeNormal, ResultTypeTimeout:
		timeout := resultType == ResultTypeTimeout
		switch result {
		case ResultWhiteWins:
			return Decisive{Winner: ColorWhite, Timeout: timeout}, nil
		case ResultBlackWins:
			return Decisive{Winner: ColorBlack, Timeout: timeout}, nil
		case ResultDraw:
			return Draw{Timeout: timeout}, nil
		}
		return nil, mismatch()
	case ResultTypeForfeit, ResultTypeDefault:
		isDefault := resultType == ResultTypeDefault
		switch result {
		case ResultWhiteWins:
			return Forfeit{Loser: ColorBlack, Default: isDefault}, nil
		case ResultBlackWins:
			return Forfeit{Loser: ColorWhite, Default: isDefault}, nil
		}
		return nil, mismatch()
	case ResultTypeBye:
		if hasBlack {
			return nil, &OutcomeError{Field: "resultType", Message: "bye requires an empty black seat"}
		}
		if result != ResultWhiteWins {
			return nil, mismatch()
		}
		return Bye{}, nil
	case ResultTypeDoubleForfeit:
		if result != ResultDoubleLoss {
			return nil, mismatch()
		}
		return DoubleForfeit{}, nil
	case ResultTypeAdjourned:
		if result != ResultUnplayed {
			return nil, mismatch()
		}
		return Adjourned{}, nil
	case ResultTypeCancelled:
		if result != ResultUnplayed {
			return nil, mismatch()
		}
		return Cancelled{}, nil
	}
	return nil, mismatch()
}

// Game is a board of a round. A nil BlackPlayerID marks a bye.
type Game struct {
	ID               string       `db:"id" json:"id"`
	TournamentID     string       `db:"tournament_id" json:"tournamentId"`
	RoundID          string       `db:"round_id" json:"roundId"`
	RoundNumber      int          `db:"round_number" json:"roundNumber"`
	BoardNumber      int          `db:"board_number" json:"boardNumber"`
	WhitePlayerID    string       `db:"white_player_id" json:"whitePlayerId"`
	BlackPlayerID    *string      `db:"black_player_id" json:"blackPlayerId,omitempty"`
	Result           *ResultValue `db:"result" json:"result,omitempty"`
	ResultType       *ResultType  `db:"result_type" json:"resultType,omitempty"`
	ResultReason     *string      `db:"result_reason" json:"resultReason,omitempty"`
	ArbiterNotes     *string      `db:"arbiter_notes" json:"arbiterNotes,omitempty"`
	RequiresApproval bool         `db:"requires_approval" json:"requiresApproval"`
	Approved         bool         `db:"approved" json:"approved"`
	CreatedAt        time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updatedAt"`
}

// IsBye reports whether the board has no black player.
func (g Game) IsBye() bool {
	return g.BlackPlayerID == nil
}

// Decided reports whether a result has been recorded.
func (g Game) Decided() bool {
	return g.Result != nil
}

// Outcome returns the decided outcome or nil when the game is still open.
func (g Game) Outcome() (Outcome, error) {
	if g.Result == nil {
		return nil, nil
	}
	resultType := ResultTypeNormal
	if g.ResultType != nil {
		resultType = *g.ResultType
	}
	return ParseOutcome(*g.Result, resultType, !g.IsBye())
}

// ColorOf returns the side played by playerID.
func (g Game) ColorOf(playerID string) (Color, bool) {
	if g.WhitePlayerID == playerID {
		return ColorWhite, true
	}
	if g.BlackPlayerID != nil && *g.BlackPlayerID == playerID {
		return ColorBlack, true
	}
	return "", false
}

// OpponentOf returns the other player on the board, empty for a bye.
func (g Game) OpponentOf(playerID string) string {
	if g.WhitePlayerID == playerID {
		if g.BlackPlayerID == nil {
			return ""
		}
		return *g.BlackPlayerID
	}
	return g.WhitePlayerID
}

// NewByeGame builds the pre-decided board for a bye.
func NewByeGame(playerID string, board int) Game {
	result := ResultWhiteWins
	resultType := ResultTypeBye
	return Game{
		BoardNumber:   board,
		WhitePlayerID: playerID,
		Result:        &result,
		ResultType:    &resultType,
		Approved:      true,
	}
}
