package fen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStart(t *testing.T) {
	pos, err := Parse(StartFEN)
	require.NoError(t, err)

	assert.Equal(t, White, pos.SideToMove)
	assert.Equal(t, 4, pos.KingSquare[White])  // e1
	assert.Equal(t, 60, pos.KingSquare[Black]) // e8
	assert.Equal(t, 32, pos.PieceCount())
	assert.Equal(t, 8, pos.Count(White, Pawn))
	assert.Equal(t, 8, pos.Count(Black, Pawn))
	assert.Equal(t, MakePiece(White, Rook), pos.Board[0])
	assert.Equal(t, MakePiece(Black, Queen), pos.Board[59])
	assert.Equal(t, "KQkq", pos.CastlingRights)
	assert.Equal(t, 1, pos.FullMoveNumber)
}

func TestParseFields(t *testing.T) {
	pos, err := Parse("4k3/8/8/8/8/8/8/4K2R b K - 12 40")
	require.NoError(t, err)
	assert.Equal(t, Black, pos.SideToMove)
	assert.Equal(t, 12, pos.HalfMoveClock)
	assert.Equal(t, 40, pos.FullMoveNumber)
	assert.Equal(t, 3, pos.PieceCount())
}

func TestParseOptionalCounters(t *testing.T) {
	pos, err := Parse("4k3/8/8/8/8/8/8/4K3 w - -")
	require.NoError(t, err)
	assert.Equal(t, 0, pos.HalfMoveClock)
	assert.Equal(t, 1, pos.FullMoveNumber)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		fen  string
	}{
		{"too few fields", "8/8/8/8/8/8/8/8 w"},
		{"seven ranks", "8/8/8/8/8/8/8 w - -"},
		{"bad piece", "4k3/8/8/8/8/8/8/4X3 w - -"},
		{"long rank", "4k3/9/8/8/8/8/8/4K3 w - -"},
		{"short rank", "4k3/7/8/8/8/8/8/4K3 w - -"},
		{"no black king", "8/8/8/8/8/8/8/4K3 w - -"},
		{"two white kings", "4k3/8/8/8/8/8/8/3KK3 w - -"},
		{"side", "4k3/8/8/8/8/8/8/4K3 x - -"},
		{"clock", "4k3/8/8/8/8/8/8/4K3 w - - x 1"},
		{"moves", "4k3/8/8/8/8/8/8/4K3 w - - 0 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.fen)
			assert.Error(t, err)
		})
	}
}

func TestPieceEncoding(t *testing.T) {
	assert.Equal(t, 1, MakePiece(White, Pawn))
	assert.Equal(t, 14, MakePiece(Black, King))
	assert.Equal(t, Black, PieceColor(MakePiece(Black, Knight)))
	assert.Equal(t, Knight, PieceType(MakePiece(Black, Knight)))
}

func TestParsePieceLimits(t *testing.T) {
	tests := []struct {
		name string
		fen  string
	}{
		{"sixteen pawns per side", "rnbqkbnr/pppppppp/pppppppp/8/8/PPPPPPPP/PPPPPPPP/RNBQKBNR w - - 0 1"},
		{"seventeen white pieces", "QQQQQQQQ/QQQQQQQQ/8/8/8/8/8/4K2k w - - 0 1"},
		{"nine white pawns", "4k3/8/8/8/8/P7/PPPPPPPP/4K3 w - - 0 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.fen)
			assert.ErrorIs(t, err, ErrTooMany)
		})
	}

	pos, err := Parse(StartFEN)
	require.NoError(t, err)
	assert.Equal(t, 32, pos.PieceCount())
}
