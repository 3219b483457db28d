// Package engine drives the narrative simulation: a round-robin loop in
// which each participating character takes one turn (think, act, talk),
// interleaved with operator interventions.
//
// The [Engine] owns the collaborating components (character repository,
// scene state, prompt assembler, LLM gateway, scene log writer, long-term
// memory updater) and serialises all access behind one mutex. Callers drive
// the simulation tick by tick with [Engine.ExecuteOneTurn]; nothing runs on
// its own goroutine here.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/dramaturg/internal/character"
	"github.com/MrWong99/dramaturg/internal/ltm"
	"github.com/MrWong99/dramaturg/internal/observe"
	"github.com/MrWong99/dramaturg/internal/prompt"
	"github.com/MrWong99/dramaturg/internal/scene"
	"github.com/MrWong99/dramaturg/internal/scenelog"
	"github.com/MrWong99/dramaturg/pkg/gateway"
	"github.com/MrWong99/dramaturg/pkg/provider/llm"
)

// State is the lifecycle state of the engine.
type State string

const (
	// StateNotStarted means no scene is set up.
	StateNotStarted State = "not_started"

	// StateIdle means a scene is set up and the engine waits for the next
	// tick or intervention.
	StateIdle State = "idle"

	// StateRunning means a turn is currently executing.
	StateRunning State = "running"

	// StateCompleted means the scene finished; [Engine.End] persists
	// long-term memory and returns the engine to StateNotStarted.
	StateCompleted State = "completed"

	// StateError means setup failed. [Engine.Reset] recovers.
	StateError State = "error"
)

// ErrNotRunning is returned when an operation requires a set-up scene and
// there is none.
var ErrNotRunning = errors.New("engine: simulation not running")

// ErrAlreadySetUp is returned by [Engine.Setup] when a scene is already
// active. End or Reset the engine first.
var ErrAlreadySetUp = errors.New("engine: simulation already set up")

// Config collects everything the engine needs to run one simulation.
type Config struct {
	// SceneFile is the path of the scene YAML declaration.
	SceneFile string

	// CharactersDir is the base directory of character profiles.
	CharactersDir string

	// PromptsDir holds the prompt template files.
	PromptsDir string

	// LogDir is where scene logs are persisted, one subdirectory per
	// simulation run.
	LogDir string

	// Provider generates character thoughts and memory updates.
	Provider llm.Provider

	// Temperature overrides the gateway's sampling temperature when
	// non-zero.
	Temperature float64

	// MaxTokens caps completion length when non-zero.
	MaxTokens int

	// Logger defaults to [slog.Default].
	Logger *slog.Logger

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Now overrides the clock, used by tests. Defaults to [time.Now].
	Now func() time.Time
}

func (c *Config) validate() error {
	var errs []error
	if c.SceneFile == "" {
		errs = append(errs, fmt.Errorf("engine: scene file must not be empty"))
	}
	if c.CharactersDir == "" {
		errs = append(errs, fmt.Errorf("engine: characters directory must not be empty"))
	}
	if c.PromptsDir == "" {
		errs = append(errs, fmt.Errorf("engine: prompts directory must not be empty"))
	}
	if c.LogDir == "" {
		errs = append(errs, fmt.Errorf("engine: log directory must not be empty"))
	}
	if c.Provider == nil {
		errs = append(errs, fmt.Errorf("engine: llm provider must not be nil"))
	}
	return errors.Join(errs...)
}

// Engine runs one scene at a time.
type Engine struct {
	sceneFile string
	logDir    string

	chars     *character.Repository
	scene     *scene.State
	assembler *prompt.Assembler
	gw        *gateway.Gateway
	updater   *ltm.Updater

	logger  *slog.Logger
	metrics *observe.Metrics
	now     func() time.Time

	mu           sync.Mutex
	state        State
	writer       *scenelog.Writer
	log          *scenelog.Log
	turnIndex    int
	turnCount    int
	endRequested bool
	pending      map[string][]string
}

// New creates an Engine from cfg. No files are touched until [Engine.Setup].
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	chars := character.NewRepository(cfg.CharactersDir, character.WithLogger(logger))

	assembler, err := prompt.NewAssembler(chars)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	gwOpts := []gateway.Option{gateway.WithLogger(logger)}
	if cfg.Temperature != 0 {
		gwOpts = append(gwOpts, gateway.WithTemperature(cfg.Temperature))
	}
	if cfg.MaxTokens != 0 {
		gwOpts = append(gwOpts, gateway.WithMaxTokens(cfg.MaxTokens))
	}
	gw, err := gateway.New(cfg.Provider, cfg.PromptsDir, gwOpts...)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	updater, err := ltm.NewUpdater(gw, assembler, chars, ltm.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	return &Engine{
		sceneFile: cfg.SceneFile,
		logDir:    cfg.LogDir,
		chars:     chars,
		scene:     scene.NewState(),
		assembler: assembler,
		gw:        gw,
		updater:   updater,
		logger:    logger,
		metrics:   metrics,
		now:       now,
		state:     StateNotStarted,
		pending:   make(map[string][]string),
	}, nil
}

// Setup loads the scene declaration and the participating characters,
// initialises a fresh scene log, and writes its first snapshot to disk.
// A participant whose profile fails to load stays in the scene; its turns
// fall back to an error thought until the profile becomes loadable.
func (e *Engine) Setup() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateNotStarted {
		return fmt.Errorf("engine: setup in state %q: %w", e.state, ErrAlreadySetUp)
	}

	info, err := scene.LoadFile(e.sceneFile)
	if err != nil {
		e.state = StateError
		return fmt.Errorf("engine: setup: %w", err)
	}

	for _, id := range info.ParticipantCharacterIDs {
		if err := e.chars.Load(id); err != nil {
			e.logger.Warn("participant profile failed to load, keeping participant",
				"character_id", id, "error", err)
		}
	}

	if err := e.scene.Load(info); err != nil {
		e.state = StateError
		return fmt.Errorf("engine: setup: %w", err)
	}

	simulationID := scenelog.NewSimulationID(e.now())
	writer, err := scenelog.NewWriter(e.logDir, simulationID, scenelog.WithWriterLogger(e.logger))
	if err != nil {
		e.scene.Clear()
		e.state = StateError
		return fmt.Errorf("engine: setup: %w", err)
	}

	e.writer = writer
	e.log = scenelog.NewLog(*info)
	e.turnIndex = 0
	e.turnCount = 0
	e.endRequested = false
	e.pending = make(map[string][]string)

	e.writer.FlushBestEffort(e.log)
	e.metrics.ActiveParticipants.Add(context.Background(), int64(len(info.ParticipantCharacterIDs)))

	e.state = StateIdle
	e.logger.Info("scene set up",
		"scene_id", info.SceneID,
		"simulation_id", simulationID,
		"participants", info.ParticipantCharacterIDs)
	return nil
}

// ExecuteOneTurn runs the next character's turn. It returns true while the
// simulation can continue and false once the scene has completed, either
// because an end was requested or because no participants remain.
//
// A failed thought generation does not fail the turn: the character records
// a fallback thought and the simulation moves on.
func (e *Engine) ExecuteOneTurn(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle || e.log == nil {
		return false, fmt.Errorf("engine: execute turn in state %q: %w", e.state, ErrNotRunning)
	}

	if e.endRequested {
		e.completeScene("end requested")
		return false, nil
	}

	participants, err := e.scene.Participants()
	if err != nil {
		return false, fmt.Errorf("engine: execute turn: %w", err)
	}
	if len(participants) == 0 {
		e.completeScene("no participants remain")
		return false, nil
	}

	// Round wrap: everyone acted once, start over.
	if e.turnIndex >= len(participants) {
		e.turnCount += len(participants)
		e.turnIndex = 0
		e.logger.Info("round completed", "turns_total", e.turnCount)
	}

	characterID := participants[e.turnIndex]
	characterName := e.chars.ResolveName(characterID)

	e.state = StateRunning
	start := e.now()

	// Pending revelations are delivered exactly once, on the very next turn.
	var previousSummary string
	if revs := e.pending[characterID]; len(revs) > 0 {
		previousSummary = prompt.FormatRevelations(revs)
		delete(e.pending, characterID)
		e.logger.Info("delivering pending revelations",
			"character_id", characterID, "count", len(revs))
	}

	think, act, talk, status := e.generateTurn(ctx, characterID, characterName, previousSummary)

	turn := e.log.RecordTurn(characterID, characterName, think, act, talk)
	e.metrics.RecordTurn(ctx, characterID, status, e.now().Sub(start).Seconds())

	persistStart := e.now()
	e.writer.FlushBestEffort(e.log)
	e.metrics.PersistDuration.Record(ctx, e.now().Sub(persistStart).Seconds())

	e.turnIndex++
	e.state = StateIdle

	e.logger.Info("turn completed",
		"turn_number", turn.TurnNumber,
		"character_id", characterID,
		"character_name", characterName,
		"status", status)
	return true, nil
}

// generateTurn produces the think/act/talk triple for one character. Any
// failure along the pipeline yields a fallback turn instead of an error.
func (e *Engine) generateTurn(ctx context.Context, characterID, characterName, previousSummary string) (think, act, talk, status string) {
	info, err := e.scene.Info()
	if err != nil {
		e.logger.Error("scene state unavailable during turn", "character_id", characterID, "error", err)
		return fallbackThink(err), "", "", "fallback"
	}

	thoughtCtx, err := e.assembler.BuildThoughtContext(characterID, &info, e.log.Turns, previousSummary)
	if err != nil {
		e.logger.Error("context assembly failed", "character_id", characterID, "error", err)
		return fallbackThink(err), "", "", "fallback"
	}

	llmStart := e.now()
	thought, err := e.gw.GenerateThought(ctx, thoughtCtx.TemplateValues(characterName))
	e.metrics.RecordLLMCall(ctx, "thought", e.now().Sub(llmStart).Seconds())
	if err != nil {
		e.logger.Error("thought generation failed", "character_id", characterID, "error", err)
		return fallbackThink(err), "", "", "fallback"
	}

	return thought.Think, thought.Act, thought.Talk, "ok"
}

// fallbackThink renders the in-world thought recorded when generation fails.
func fallbackThink(err error) string {
	return fmt.Sprintf("（エラーにより思考できませんでした: %s）", errorKind(err))
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, gateway.ErrTemplateNotFound):
		return "template_not_found"
	case errors.Is(err, gateway.ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, gateway.ErrGeneration):
		return "generation_failed"
	case errors.Is(err, character.ErrNotFound):
		return "character_not_found"
	default:
		return "context_unavailable"
	}
}

// completeScene flushes the log and transitions to StateCompleted.
// Callers must hold e.mu.
func (e *Engine) completeScene(reason string) {
	e.writer.FlushBestEffort(e.log)
	e.state = StateCompleted
	e.logger.Info("scene completed", "reason", reason, "turns", len(e.log.Turns))
}

// UpdateCharacterLongTermInfo runs a long-term memory update for one current
// participant and returns the applied proposal.
func (e *Engine) UpdateCharacterLongTermInfo(ctx context.Context, characterID string) (*gateway.UpdateProposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateLongTerm(ctx, characterID)
}

// updateLongTerm is the locked core of the long-term update path.
// Callers must hold e.mu.
func (e *Engine) updateLongTerm(ctx context.Context, characterID string) (*gateway.UpdateProposal, error) {
	if e.log == nil {
		return nil, fmt.Errorf("engine: long-term update for %q: %w", characterID, ErrNotRunning)
	}
	if !e.scene.Contains(characterID) {
		e.metrics.RecordLTMUpdate(ctx, characterID, "error")
		return nil, fmt.Errorf("engine: long-term update for %q: %w", characterID, scene.ErrNotInScene)
	}

	llmStart := e.now()
	proposal, err := e.updater.Update(ctx, characterID, e.log)
	e.metrics.RecordLLMCall(ctx, "ltm_update", e.now().Sub(llmStart).Seconds())
	if err != nil {
		e.metrics.RecordLTMUpdate(ctx, characterID, "error")
		return nil, fmt.Errorf("engine: %w", err)
	}

	e.metrics.RecordLTMUpdate(ctx, characterID, "ok")
	return proposal, nil
}

// NextCharacter identifies who acts on the upcoming turn.
type NextCharacter struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Status is a point-in-time snapshot of the simulation.
type Status struct {
	State                State          `json:"state"`
	SceneID              string         `json:"scene_id,omitempty"`
	Location             string         `json:"location,omitempty"`
	Time                 string         `json:"time,omitempty"`
	Situation            string         `json:"situation,omitempty"`
	Participants         []string       `json:"participants,omitempty"`
	CurrentTurnIndex     int            `json:"current_turn_index"`
	TurnCount            int            `json:"turn_count"`
	TurnsCompleted       int            `json:"turns_completed"`
	InterventionsApplied int            `json:"interventions_applied"`
	EndRequested         bool           `json:"end_requested"`
	NextCharacter        *NextCharacter `json:"next_character,omitempty"`
}

// Status returns a snapshot of the current simulation state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		State:            e.state,
		CurrentTurnIndex: e.turnIndex,
		TurnCount:        e.turnCount,
		EndRequested:     e.endRequested,
	}
	if e.log == nil {
		return st
	}

	info, err := e.scene.Info()
	if err != nil {
		info = e.log.SceneInfo
	}
	st.SceneID = info.SceneID
	st.Location = info.Location
	st.Time = info.Time
	st.Situation = info.Situation
	st.Participants = append([]string(nil), info.ParticipantCharacterIDs...)
	st.TurnsCompleted = len(e.log.Turns)
	st.InterventionsApplied = len(e.log.Interventions)

	if e.state == StateIdle && len(st.Participants) > 0 {
		idx := e.turnIndex
		if idx >= len(st.Participants) {
			idx = 0
		}
		id := st.Participants[idx]
		st.NextCharacter = &NextCharacter{ID: id, Name: e.chars.ResolveName(id)}
	}

	return st
}

// LastTurn returns the most recently recorded turn. The bool is false when
// no turn has been recorded yet or no scene is active.
func (e *Engine) LastTurn() (scenelog.Turn, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.log == nil {
		return scenelog.Turn{}, false
	}
	turns := e.log.LastTurns(1)
	if len(turns) == 0 {
		return scenelog.Turn{}, false
	}
	return turns[0], true
}

// End finishes the simulation: every remaining participant gets a long-term
// memory update (failures are logged and skipped), the scene log is flushed
// one final time, and the engine returns to StateNotStarted. Calling End
// without an active scene is a no-op.
func (e *Engine) End(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.log == nil {
		e.resetLocked()
		return nil
	}

	participants, err := e.scene.Participants()
	if err != nil {
		participants = append([]string(nil), e.log.SceneInfo.ParticipantCharacterIDs...)
	}
	for _, id := range participants {
		if _, err := e.updateLongTerm(ctx, id); err != nil {
			e.logger.Error("long-term update failed during scene end",
				"character_id", id, "error", err)
		}
	}

	if err := e.writer.Flush(e.log); err != nil {
		e.logger.Error("final scene log flush failed", "error", err)
	}

	e.logger.Info("scene ended",
		"scene_id", e.log.SceneInfo.SceneID,
		"turns", len(e.log.Turns),
		"interventions", len(e.log.Interventions))

	e.resetLocked()
	return nil
}

// Reset discards all simulation state and returns to StateNotStarted. It is
// the recovery path out of StateError.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

// resetLocked clears all per-simulation state. Callers must hold e.mu.
func (e *Engine) resetLocked() {
	if participants, err := e.scene.Participants(); err == nil && len(participants) > 0 {
		e.metrics.ActiveParticipants.Add(context.Background(), -int64(len(participants)))
	}
	e.scene.Clear()
	e.log = nil
	e.writer = nil
	e.turnIndex = 0
	e.turnCount = 0
	e.endRequested = false
	e.pending = make(map[string][]string)
	e.state = StateNotStarted
}
