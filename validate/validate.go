// Command validate checks game state snapshot JSON files against the shape
// the relay accepts in game-update events. Beyond the relay's own structural
// checks it also reports:
//   - pieces placed outside the board
//   - two pieces on the same square
//   - piece values that are not part of the board setup
//   - a winner recorded without a finished status
//
// Usage:
//
//	validate [--board-size 8] [--values 1,2,...,16] snapshot.json [more.json ...]
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"github.com/wricardo/boardgame-relay/game/state"
)

const defaultBoardSize = 8

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) note(format string, args ...interface{}) {
	r.Errors = append(r.Errors, "✓ "+fmt.Sprintf(format, args...))
}

// validateSnapshot loads one snapshot and checks it against setup
func validateSnapshot(filePath string, setup state.Setup) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	candidate, err := state.DecodeCandidate(data)
	if err != nil {
		result.fail("Rejected by relay: %v", err)
		return result
	}
	result.note("Structure: %d pieces", len(candidate.BoardPieces))

	allowed := make(map[int]int, len(setup.Values))
	for _, v := range setup.Values {
		allowed[v]++
	}

	occupied := make(map[state.Position]int)
	perColor := map[state.Color]map[int]int{state.White: {}, state.Black: {}}
	for i, p := range candidate.BoardPieces {
		pos := p.Position
		if pos.Row < 0 || pos.Col < 0 || pos.Row >= setup.BoardSize || pos.Col >= setup.BoardSize {
			result.fail("Piece %d (%s %d) is off the %dx%d board at (%d,%d)", i, p.Color, p.Value, setup.BoardSize, setup.BoardSize, pos.Row, pos.Col)
		}
		if prev, taken := occupied[pos]; taken {
			result.fail("Pieces %d and %d share square (%d,%d)", prev, i, pos.Row, pos.Col)
		} else {
			occupied[pos] = i
		}

		perColor[p.Color][p.Value]++
		if perColor[p.Color][p.Value] > allowed[p.Value] {
			result.fail("Too many %s pieces with value %d", p.Color, p.Value)
		}
	}

	if candidate.Winner != nil && !candidate.Terminal() {
		result.fail("Winner %s recorded but status is not finished", *candidate.Winner)
	}
	if candidate.Terminal() && candidate.Winner == nil {
		result.note("Finished without a winner: the relay will credit the sender")
	}

	if result.Valid {
		result.note("Board: all pieces on distinct squares of the %dx%d board", setup.BoardSize, setup.BoardSize)
	}
	return result
}

func parseValues(raw string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var v int
		if _, err := fmt.Sscan(part, &v); err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	setup := state.DefaultSetup()
	setup.BoardSize = int(cmd.Int("board-size"))
	if raw := cmd.String("values"); raw != "" {
		values, err := parseValues(raw)
		if err != nil {
			return err
		}
		setup.Values = values
	}
	if err := setup.Validate(); err != nil {
		return err
	}

	files := cmd.Args().Slice()
	if len(files) == 0 {
		return fmt.Errorf("no snapshot files given")
	}

	allValid := true
	for _, file := range files {
		result := validateSnapshot(file, setup)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if !allValid {
		return cli.Exit("❌ Some snapshots have errors", 1)
	}
	fmt.Println("✅ All snapshots are valid!")
	return nil
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "check game state snapshots before sending them to the relay",
		ArgsUsage: "snapshot.json [more.json ...]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "board-size",
				Value: defaultBoardSize,
				Usage: "board edge length",
			},
			&cli.StringFlag{
				Name:  "values",
				Usage: "comma separated piece values of one side (default 1..16)",
			},
		},
		Action: run,
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
