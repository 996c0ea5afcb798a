// Package fen parses FEN strings into the piece layout consumed by the NNUE
// feature set.
package fen

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// StartFEN is the FEN string for the starting position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Colors
const (
	White = 0
	Black = 1
)

// Piece codes follow the Stockfish encoding used by sfnnue:
// W_PAWN=1 .. W_KING=6, B_PAWN=9 .. B_KING=14, 0 is empty.
const (
	NoPiece = 0
	Pawn    = 1
	Knight  = 2
	Bishop  = 3
	Rook    = 4
	Queen   = 5
	King    = 6

	blackOffset = 8
)

// NoSquare marks a missing square.
const NoSquare = 64

var (
	ErrFieldCount = errors.New("invalid FEN: need at least 4 fields")
	ErrPlacement  = errors.New("invalid FEN piece placement")
	ErrKings      = errors.New("invalid FEN: each side needs exactly one king")
	ErrTooMany    = errors.New("invalid FEN: too many pieces")
)

// Per-side limits. The feature set holds at most 32 active pieces.
const (
	maxPiecesPerSide = 16
	maxPawnsPerSide  = 8
)

// Position is the subset of a chess position the evaluator needs.
// Squares are numbered a1=0 .. h8=63.
type Position struct {
	Board          [64]int
	SideToMove     int
	KingSquare     [2]int
	CastlingRights string
	EnPassant      string
	HalfMoveClock  int
	FullMoveNumber int
}

// MakePiece returns the piece code for a color and piece type.
func MakePiece(color, pieceType int) int {
	return color*blackOffset + pieceType
}

// PieceColor returns the color of a non-empty piece code.
func PieceColor(pc int) int {
	return pc >> 3
}

// PieceType returns the type of a piece code.
func PieceType(pc int) int {
	return pc & 7
}

var pieceChars = map[byte]int{
	'P': MakePiece(White, Pawn), 'N': MakePiece(White, Knight), 'B': MakePiece(White, Bishop),
	'R': MakePiece(White, Rook), 'Q': MakePiece(White, Queen), 'K': MakePiece(White, King),
	'p': MakePiece(Black, Pawn), 'n': MakePiece(Black, Knight), 'b': MakePiece(Black, Bishop),
	'r': MakePiece(Black, Rook), 'q': MakePiece(Black, Queen), 'k': MakePiece(Black, King),
}

// Parse parses a FEN string.
func Parse(s string) (*Position, error) {
	parts := strings.Fields(s)
	if len(parts) < 4 {
		return nil, fmt.Errorf("%w, got %d", ErrFieldCount, len(parts))
	}

	pos := &Position{
		KingSquare:     [2]int{NoSquare, NoSquare},
		CastlingRights: parts[2],
		EnPassant:      parts[3],
		FullMoveNumber: 1,
	}

	if err := parsePlacement(pos, parts[0]); err != nil {
		return nil, err
	}

	switch parts[1] {
	case "w":
		pos.SideToMove = White
	case "b":
		pos.SideToMove = Black
	default:
		return nil, fmt.Errorf("invalid side to move: %s", parts[1])
	}

	if len(parts) > 4 {
		hmc, err := strconv.Atoi(parts[4])
		if err != nil || hmc < 0 {
			return nil, fmt.Errorf("invalid half-move clock: %s", parts[4])
		}
		pos.HalfMoveClock = hmc
	}
	if len(parts) > 5 {
		fmn, err := strconv.Atoi(parts[5])
		if err != nil || fmn < 1 {
			return nil, fmt.Errorf("invalid full-move number: %s", parts[5])
		}
		pos.FullMoveNumber = fmn
	}

	return pos, nil
}

func parsePlacement(pos *Position, placement string) error {
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return fmt.Errorf("%w: need 8 ranks, got %d", ErrPlacement, len(ranks))
	}

	kings := [2]int{}
	pieces := [2]int{}
	pawns := [2]int{}
	for i, rank := range ranks {
		r := 7 - i
		file := 0
		for j := 0; j < len(rank); j++ {
			c := rank[j]
			if c >= '1' && c <= '8' {
				file += int(c - '0')
				continue
			}
			pc, ok := pieceChars[c]
			if !ok {
				return fmt.Errorf("%w: unexpected %q", ErrPlacement, c)
			}
			if file > 7 {
				return fmt.Errorf("%w: rank %d overflows", ErrPlacement, r+1)
			}
			sq := r*8 + file
			pos.Board[sq] = pc
			pieces[PieceColor(pc)]++
			if PieceType(pc) == Pawn {
				pawns[PieceColor(pc)]++
			}
			if PieceType(pc) == King {
				kings[PieceColor(pc)]++
				pos.KingSquare[PieceColor(pc)] = sq
			}
			file++
		}
		if file != 8 {
			return fmt.Errorf("%w: rank %d has %d files", ErrPlacement, r+1, file)
		}
	}

	if kings[White] != 1 || kings[Black] != 1 {
		return ErrKings
	}
	for color := White; color <= Black; color++ {
		if pieces[color] > maxPiecesPerSide || pawns[color] > maxPawnsPerSide {
			return fmt.Errorf("%w: %d pieces, %d pawns", ErrTooMany, pieces[color], pawns[color])
		}
	}
	return nil
}

// PieceCount returns the number of pieces on the board, kings included.
func (p *Position) PieceCount() int {
	n := 0
	for _, pc := range p.Board {
		if pc != NoPiece {
			n++
		}
	}
	return n
}

// Count returns the number of pieces of the given color and type.
func (p *Position) Count(color, pieceType int) int {
	want := MakePiece(color, pieceType)
	n := 0
	for _, pc := range p.Board {
		if pc == want {
			n++
		}
	}
	return n
}
