package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrWong99/dramaturg/internal/engine"
	"github.com/MrWong99/dramaturg/internal/scenelog"
)

// simulator is the surface the interactive prompt drives. Implemented by
// [app.App]; tests substitute a fake.
type simulator interface {
	Status() engine.Status
	Step(ctx context.Context) (bool, error)
	Intervene(ctx context.Context, command string) (bool, string)
	LastTurn() (scenelog.Turn, bool)
}

const replHelp = `commands:
  <enter>                         execute the next character turn
  status                          show the current scene state
  update_situation <text>         rewrite the scene situation
  give_revelation <id> <text>     privately inform one character
  add_character <id>              add a character to the scene
  remove_character <id>           remove a character from the scene
  trigger_ltm_update <id>         update a character's long-term memory now
  end_scene                       end the scene before the next turn
  help                            show this message
  quit                            end the scene and exit`

// repl runs the interactive prompt until the user quits, input ends, or ctx
// is cancelled. Scene teardown is the caller's job.
func repl(ctx context.Context, sim simulator, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(out, replHelp)
	fmt.Fprintln(out)
	printStatus(out, sim.Status())

	for {
		fmt.Fprint(out, "> ")

		var line string
		var open bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, open = <-lines:
			if !open {
				return nil
			}
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "":
			executeTurn(ctx, sim, out)
		case "status":
			printStatus(out, sim.Status())
		case "help":
			fmt.Fprintln(out, replHelp)
		case "quit", "exit":
			return nil
		default:
			ok, msg := sim.Intervene(ctx, line)
			if ok {
				fmt.Fprintln(out, msg)
			} else {
				fmt.Fprintln(out, "error:", msg)
			}
		}
	}
}

// executeTurn advances the simulation by one turn and prints the result.
func executeTurn(ctx context.Context, sim simulator, out io.Writer) {
	completed, err := sim.Step(ctx)
	if errors.Is(err, engine.ErrNotRunning) {
		fmt.Fprintln(out, "no scene is running")
		return
	}
	if err != nil {
		fmt.Fprintln(out, "turn failed:", err)
		return
	}
	if completed {
		fmt.Fprintln(out, "scene completed; type quit to run long-term updates and exit")
		return
	}

	turn, ok := sim.LastTurn()
	if !ok {
		return
	}
	fmt.Fprintf(out, "--- turn %d: %s ---\n", turn.TurnNumber, turn.CharacterName)
	fmt.Fprintln(out, "  think:", turn.Think)
	if turn.Act != "" {
		fmt.Fprintln(out, "  act:  ", turn.Act)
	}
	if turn.Talk != "" {
		fmt.Fprintln(out, "  talk: ", turn.Talk)
	}
}

// printStatus renders a status snapshot for the operator.
func printStatus(out io.Writer, st engine.Status) {
	fmt.Fprintln(out, "state:        ", st.State)
	if st.SceneID == "" {
		return
	}
	fmt.Fprintln(out, "scene:        ", st.SceneID)
	fmt.Fprintln(out, "location:     ", st.Location)
	if st.Time != "" {
		fmt.Fprintln(out, "time:         ", st.Time)
	}
	fmt.Fprintln(out, "situation:    ", st.Situation)
	fmt.Fprintln(out, "participants: ", strings.Join(st.Participants, ", "))
	fmt.Fprintln(out, "turns:        ", st.TurnsCompleted)
	if st.NextCharacter != nil {
		fmt.Fprintf(out, "next:          %s (%s)\n", st.NextCharacter.Name, st.NextCharacter.ID)
	}
	if st.EndRequested {
		fmt.Fprintln(out, "the scene will end before the next turn")
	}
}
