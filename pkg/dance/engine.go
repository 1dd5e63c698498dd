package dance

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-rave/pkg/analysis"
	"github.com/teslashibe/go-rave/pkg/eyes"
	"github.com/teslashibe/go-rave/pkg/motion"
)

// Source tags commands the engine emits.
const Source = "dance"

// State is the engine's phase.
type State uint8

const (
	Idle State = iota
	Selecting
	Dancing
)

func (s State) String() string {
	switch s {
	case Selecting:
		return "selecting"
	case Dancing:
		return "dancing"
	default:
		return "idle"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Tempo is a BPM bucket.
type Tempo uint8

const (
	TempoMedium Tempo = iota
	TempoSlow
	TempoFast
)

func (t Tempo) String() string {
	switch t {
	case TempoSlow:
		return "slow"
	case TempoFast:
		return "fast"
	default:
		return "medium"
	}
}

// MarshalText encodes the tempo by name.
func (t Tempo) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Inputs is what one tick sees.
type Inputs struct {
	Now            time.Duration
	Classification analysis.Classification
	Beat           analysis.BeatState
	Energy         float64
	Band           analysis.Band
	Autonomous     bool

	// Quiet is set while the signal sits under the silence threshold
	// EnergyFloor; a quiet room never starts a dance.
	Quiet       bool
	EnergyFloor float64
}

// Transition records a state change.
type Transition struct {
	From State `json:"from"`
	To   State `json:"to"`
}

// Output is what one tick produced.
type Output struct {
	// Command and Hint are set together, once per started move.
	Command *motion.Command
	Hint    *eyes.Hint

	Transitions      []Transition
	PatternCompleted bool

	// Reason explains why the robot is not dancing; empty while dancing.
	Reason string
}

// Snapshot describes the engine for status and logs.
type Snapshot struct {
	State             State  `json:"state"`
	Pattern           string `json:"pattern,omitempty"`
	Category          string `json:"category,omitempty"`
	Move              string `json:"move,omitempty"`
	MoveIndex         int    `json:"move_index"`
	Tempo             Tempo  `json:"tempo"`
	PatternsCompleted uint64 `json:"patterns_completed"`
	Reason            string `json:"reason,omitempty"`
}

// Engine selects and sequences patterns. It is owned by one goroutine.
type Engine struct {
	cfg     Config
	catalog *Catalog
	rng     *rand.Rand

	state     State
	active    int // catalog index, -1 when idle
	moveIndex int
	moveStart time.Duration
	moveDur   time.Duration
	tempo     Tempo

	previous   int // last pattern played, -1 for none
	recent     []int
	completed  uint64
	nonMusic   int
	everDanced bool
	reason     string
}

// NewEngine creates an engine. seed fixes the selection randomness for a
// session; the same seed and inputs give the same dance.
func NewEngine(cfg Config, catalog *Catalog, seed uint64) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Engine{
		cfg:      cfg,
		catalog:  catalog,
		rng:      rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb)),
		active:   -1,
		previous: -1,
		reason:   ReasonWaiting,
	}
}

// Reasons reported while not dancing.
const (
	ReasonWaiting      = "Waiting for music to start"
	ReasonMusicStopped = "Music stopped"
	ReasonAutoOff      = "Autonomous mode OFF"
	ReasonManual       = "Manual control"
)

// Tick advances the engine by one frame.
func (e *Engine) Tick(in Inputs) Output {
	var out Output

	if !in.Autonomous {
		if e.state != Idle {
			e.idle(&out, ReasonAutoOff)
		}
		e.reason = ReasonAutoOff
		out.Reason = e.reason
		return out
	}

	switch e.state {
	case Idle:
		if r := e.startBlocker(in); r != "" {
			e.reason = r
			out.Reason = r
			return out
		}
		e.transition(&out, Selecting)
		e.everDanced = true
		e.nonMusic = 0
		e.selectPattern(in)
		e.transition(&out, Dancing)
		e.start(&out, in)

	case Dancing:
		if in.Classification.Type != analysis.Music {
			e.nonMusic++
		} else {
			e.nonMusic = 0
		}
		if e.nonMusic >= e.cfg.NonMusicHold {
			e.idle(&out, ReasonMusicStopped)
			out.Reason = e.reason
			return out
		}
		if in.Now-e.moveStart < e.moveDur {
			return out
		}
		e.moveIndex++
		if e.moveIndex >= len(e.catalog.pattern(e.active).Moves) {
			out.PatternCompleted = e.finishPattern()
			e.transition(&out, Selecting)
			e.selectPattern(in)
			e.transition(&out, Dancing)
		}
		e.start(&out, in)
	}
	return out
}

// ForceIdle ends any dance, e.g. on sustained silence or manual control.
// It reports whether a dance was in progress.
func (e *Engine) ForceIdle(reason string) bool {
	was := e.state != Idle
	var out Output
	e.idle(&out, reason)
	return was
}

// State returns the current phase.
func (e *Engine) State() State { return e.state }

// Dancing reports whether a pattern is active.
func (e *Engine) Dancing() bool { return e.state == Dancing }

// Snapshot describes the engine.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		State:             e.state,
		Tempo:             e.tempo,
		PatternsCompleted: e.completed,
		Reason:            e.reason,
	}
	if e.active >= 0 {
		p := e.catalog.pattern(e.active)
		s.Pattern = p.Name
		s.Category = p.Category.String()
		s.MoveIndex = e.moveIndex
		s.Move = p.Moves[e.moveIndex].Name
	}
	return s
}

// Reset forgets the session: state, pattern history and counters. The
// random source keeps its position.
func (e *Engine) Reset() {
	e.state = Idle
	e.active = -1
	e.moveIndex = 0
	e.moveStart = 0
	e.moveDur = 0
	e.previous = -1
	e.recent = e.recent[:0]
	e.completed = 0
	e.nonMusic = 0
	e.everDanced = false
	e.reason = ReasonWaiting
}

func (e *Engine) startBlocker(in Inputs) string {
	cls := in.Classification
	switch {
	case cls.Type == analysis.Silence && e.everDanced:
		return ReasonMusicStopped
	case cls.Type == analysis.Silence:
		return ReasonWaiting
	case in.Quiet:
		return fmt.Sprintf("Energy too low (%.0f%% < %.0f%%)", in.Energy, in.EnergyFloor)
	case cls.Type != analysis.Music:
		return fmt.Sprintf("No music detected (type: %s)", cls.Type)
	case in.Beat.Confidence < e.cfg.MinBeatConfidence:
		return fmt.Sprintf("No beat detected (BPM conf: %.0f%%)", in.Beat.Confidence*100)
	}
	return ""
}

func (e *Engine) idle(out *Output, reason string) {
	if e.state != Idle {
		e.transition(out, Idle)
	}
	e.state = Idle
	e.active = -1
	e.moveIndex = 0
	e.nonMusic = 0
	e.reason = reason
}

func (e *Engine) transition(out *Output, to State) {
	out.Transitions = append(out.Transitions, Transition{From: e.state, To: to})
	e.state = to
}

// finishPattern books the active pattern as played and reports whether
// it counts as a completed dance pattern.
func (e *Engine) finishPattern() bool {
	p := e.catalog.pattern(e.active)
	if p.Category == Spin {
		return false
	}
	e.completed++
	return true
}

func (e *Engine) selectPattern(in Inputs) {
	e.tempo = e.tempoOf(in.Beat)
	level := e.levelOf(in.Energy)

	var pool []int
	transition := e.active >= 0 &&
		e.catalog.pattern(e.active).Category != Spin &&
		e.completed > 0 && e.completed%uint64(e.cfg.TransitionEvery) == 0
	if transition {
		pool = e.transitions(level)
	}
	if len(pool) == 0 {
		pool = e.catalog.byCategory[categoryFor(e.tempo, level, in.Band)]
		if len(pool) == 0 {
			pool = allIndices(len(e.catalog.patterns))
		}
	}

	choice := e.pick(pool, level)
	e.active = choice
	e.moveIndex = 0
	e.previous = choice
	if e.catalog.pattern(choice).Category != Spin && e.cfg.RecentMemory > 0 {
		e.recent = append(e.recent, choice)
		if len(e.recent) > e.cfg.RecentMemory {
			e.recent = e.recent[len(e.recent)-e.cfg.RecentMemory:]
		}
	}
}

// categoryFor maps tempo, level and dominant band to a category.
func categoryFor(t Tempo, l Level, band analysis.Band) Category {
	switch {
	case t == TempoFast && (l == High || band == analysis.BandLow):
		return Pump
	case t == TempoSlow || l == Low:
		return Sway
	case band == analysis.BandHigh:
		return Shuffle
	default:
		return Bounce
	}
}

// transitions returns the spin patterns suited to level: high energy
// takes high and medium ones, low energy low and medium ones.
func (e *Engine) transitions(l Level) []int {
	var out []int
	for _, i := range e.catalog.byCategory[Spin] {
		pl := e.catalog.pattern(i).Energy
		if l == Medium || pl == Medium || pl == l {
			out = append(out, i)
		}
	}
	return out
}

// pick draws a weighted pattern from pool, never the previous one and
// avoiding recent ones while alternatives remain.
func (e *Engine) pick(pool []int, level Level) int {
	candidates := slices.DeleteFunc(slices.Clone(pool), func(i int) bool { return i == e.previous })
	if len(candidates) == 0 {
		candidates = slices.Clone(pool)
	}
	if fresh := slices.DeleteFunc(slices.Clone(candidates), func(i int) bool {
		return slices.Contains(e.recent, i)
	}); len(fresh) > 0 {
		candidates = fresh
	}

	total := 0
	weights := make([]int, len(candidates))
	for k, i := range candidates {
		weights[k] = e.weight(e.catalog.pattern(i).Energy, level)
		total += weights[k]
	}
	r := e.rng.IntN(total)
	for k, w := range weights {
		if r < w {
			return candidates[k]
		}
		r -= w
	}
	return candidates[len(candidates)-1]
}

func (e *Engine) weight(pattern, music Level) int {
	switch {
	case pattern == music:
		return e.cfg.MatchWeight
	case pattern == Medium:
		return e.cfg.MediumWeight
	default:
		return e.cfg.OtherWeight
	}
}

// start emits the current move.
func (e *Engine) start(out *Output, in Inputs) {
	p := e.catalog.pattern(e.active)
	m := p.Moves[e.moveIndex]
	d := e.scale(m.Duration, in.Beat)

	cmd := motion.Command{
		ID:        uuid.New(),
		Direction: m.Direction,
		Duration:  d,
		Priority:  motion.Autonomous,
		Source:    Source,
		Label:     m.Name,
	}
	if m.Direction.Moving() {
		cmd.Left, cmd.Right = m.Direction.Wheels(e.cfg.Power)
		cmd.Left.Power *= 1 - e.rng.Float64()*e.cfg.Jitter
		cmd.Right.Power *= 1 - e.rng.Float64()*e.cfg.Jitter
	}

	e.moveStart = in.Now
	e.moveDur = d
	e.reason = ""

	out.Command = &cmd
	out.Hint = &eyes.Hint{Direction: m.Direction, Duration: d}
}

// scale converts a reference-tempo duration to the current tempo.
func (e *Engine) scale(d time.Duration, b analysis.BeatState) time.Duration {
	bpm := e.effectiveBPM(b)
	scaled := float64(d) * e.cfg.ReferenceBPM / bpm
	switch e.tempoOf(b) {
	case TempoFast:
		scaled *= e.cfg.FastScale
	case TempoSlow:
		scaled *= e.cfg.SlowScale
	}
	return max(e.cfg.MinMove, min(e.cfg.MaxMove, time.Duration(scaled)))
}

func (e *Engine) effectiveBPM(b analysis.BeatState) float64 {
	if !b.Known || b.BPM <= 0 {
		return e.cfg.ReferenceBPM
	}
	return max(e.cfg.MinBPM, min(e.cfg.MaxBPM, b.BPM))
}

func (e *Engine) tempoOf(b analysis.BeatState) Tempo {
	if !b.Known || b.BPM <= 0 {
		return TempoMedium
	}
	switch {
	case b.BPM < e.cfg.SlowBPM:
		return TempoSlow
	case b.BPM < e.cfg.FastBPM:
		return TempoMedium
	default:
		return TempoFast
	}
}

func (e *Engine) levelOf(energy float64) Level {
	switch {
	case energy < e.cfg.LowEnergy:
		return Low
	case energy < e.cfg.HighEnergy:
		return Medium
	default:
		return High
	}
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
