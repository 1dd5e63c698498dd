// Package dance chooses and sequences dance patterns from the analysis
// results. The Engine is a small state machine (Idle, Selecting, Dancing)
// driven once per audio frame by the coordinator; each move it starts
// comes out as one motion.Command plus one eyes.Hint.
package dance

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-rave/pkg/motion"
	"github.com/teslashibe/go-rave/pkg/robot"
)

// Category groups patterns by feel.
type Category uint8

const (
	Bounce Category = iota
	Sway
	Shuffle
	Pump
	Spin // transitions between patterns
	numCategories
)

var categoryNames = [...]string{
	Bounce:  "bounce",
	Sway:    "sway",
	Shuffle: "shuffle",
	Pump:    "pump",
	Spin:    "spin",
}

func (c Category) String() string {
	if c < numCategories {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", c)
}

// MarshalText encodes the category by name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Level is an energy level, used both for the music and for patterns.
type Level uint8

const (
	Low Level = iota
	Medium
	High
)

func (l Level) String() string {
	switch l {
	case Low:
		return "low"
	case High:
		return "high"
	default:
		return "medium"
	}
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Move is one timed step. Duration is written at the reference tempo.
type Move struct {
	Name      string
	Direction motion.Direction
	Left      robot.WheelAction
	Right     robot.WheelAction
	Duration  time.Duration
}

// MarshalJSON encodes the move with its duration in milliseconds.
func (m Move) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name       string           `json:"name"`
		Direction  motion.Direction `json:"direction"`
		DurationMS int64            `json:"duration_ms"`
	}{m.Name, m.Direction, m.Duration.Milliseconds()})
}

// Pattern is an ordered list of moves.
type Pattern struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Energy   Level    `json:"energy"`
	Moves    []Move   `json:"moves"`
}

// Length is the pattern's total duration at the reference tempo.
func (p Pattern) Length() time.Duration {
	var d time.Duration
	for _, m := range p.Moves {
		d += m.Duration
	}
	return d
}

const beat = 500 * time.Millisecond // one beat at 120 BPM

func step(name string, dir motion.Direction, beats float64) Move {
	left, right := dir.Wheels(100)
	return Move{
		Name:      name,
		Direction: dir,
		Left:      left,
		Right:     right,
		Duration:  time.Duration(beats * float64(beat)),
	}
}

var (
	pulseForward  = step("pulse_forward", motion.Forward, 1)
	pulseBack     = step("pulse_back", motion.Backward, 1)
	pulseLeft     = step("pulse_left", motion.Left, 1)
	pulseRight    = step("pulse_right", motion.Right, 1)
	stepForward   = step("step_forward", motion.Forward, 1.5)
	stepBack      = step("step_back", motion.Backward, 1.5)
	stepLeft      = step("step_left", motion.Left, 1.5)
	stepRight     = step("step_right", motion.Right, 1.5)
	thrustForward = step("thrust_forward", motion.Forward, 1.5)
	thrustBack    = step("thrust_back", motion.Backward, 1.5)
	spinQuarter   = step("spin_quarter", motion.Spin, 1)
	spinHalf      = step("spin_half", motion.Spin, 1.5)
	spinFull      = step("spin_full", motion.Spin, 2.5)
	spin360       = step("spin_360", motion.Spin, 3.5)
	holdShort     = step("hold_short", motion.Hold, 0.5)
	holdBeat      = step("hold_beat", motion.Hold, 1)
	wiggleSide    = step("wiggle_side", motion.Left, 0.5)
	wiggleFront   = step("wiggle_front", motion.Forward, 0.5)
)

func moves(m ...Move) []Move { return m }

var defaultPatterns = []Pattern{
	{"Sway", Sway, Low, moves(pulseLeft, holdShort, pulseRight, holdShort, pulseLeft, holdShort, pulseRight, holdShort)},
	{"Slow Groove", Sway, Low, moves(stepForward, holdBeat, stepBack, holdBeat)},
	{"Dreamy", Sway, Low, moves(pulseForward, pulseLeft, pulseBack, pulseRight, holdBeat, spinQuarter)},
	{"Float", Sway, Medium, moves(pulseLeft, pulseForward, pulseRight, pulseForward, spinQuarter, holdShort, spinQuarter, holdShort)},

	{"Basic Bounce", Bounce, Medium, moves(pulseForward, pulseBack, pulseForward, pulseBack, pulseForward, pulseBack, stepLeft, stepRight)},
	{"Side Step", Bounce, Medium, moves(stepLeft, pulseForward, stepRight, pulseForward, stepLeft, pulseBack, stepRight, pulseBack)},
	{"Strobe", Bounce, High, moves(pulseForward, pulseBack, pulseForward, pulseBack, pulseLeft, pulseRight, pulseLeft, pulseRight)},

	{"Shuffle", Shuffle, Medium, moves(pulseLeft, pulseRight, pulseLeft, pulseRight, pulseForward, pulseForward, pulseBack, pulseBack)},
	{"Groove Box", Shuffle, Medium, moves(stepForward, stepRight, stepBack, stepLeft)},
	{"Twirl", Shuffle, Medium, moves(spinHalf, pulseForward, spinHalf, pulseBack)},

	{"Pump", Pump, High, moves(thrustForward, pulseBack, thrustForward, pulseBack, thrustForward, thrustBack, spinQuarter, spinQuarter)},
	{"Hyperdrive", Pump, High, moves(thrustForward, spinQuarter, thrustBack, spinQuarter, thrustForward, spinQuarter, thrustBack, spinQuarter)},
	{"Bass Drop", Pump, High, moves(thrustForward, holdShort, thrustForward, holdShort, thrustBack, thrustBack, holdBeat)},
	{"Head Bang", Pump, High, moves(thrustForward, pulseBack, thrustForward, pulseBack, thrustForward, pulseBack, thrustForward, pulseBack)},

	{"Spin!", Spin, Medium, moves(spin360)},
	{"Double Spin!", Spin, High, moves(spinFull, spinFull)},
	{"Quick Turn", Spin, Medium, moves(spinHalf, holdShort)},
	{"Thrust Spin", Spin, High, moves(thrustForward, spinFull)},
	{"Reverse Spin", Spin, Medium, moves(stepBack, spinFull)},
	{"Wiggle Break", Spin, Low, moves(wiggleSide, wiggleFront, holdBeat)},
}

// Catalog is an immutable, indexed set of patterns.
type Catalog struct {
	patterns   []Pattern
	byName     map[string]int
	byCategory [numCategories][]int
}

var defaultCatalog = mustCatalog(defaultPatterns)

// DefaultCatalog returns the built-in patterns.
func DefaultCatalog() *Catalog { return defaultCatalog }

// NewCatalog validates and indexes patterns. Names must be unique, every
// pattern must have moves, and its first move must turn the wheels so a
// pattern start is always visible.
func NewCatalog(patterns []Pattern) (*Catalog, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("%w: no patterns", ErrInvalidCatalog)
	}
	c := &Catalog{
		patterns: make([]Pattern, len(patterns)),
		byName:   make(map[string]int, len(patterns)),
	}
	for i, p := range patterns {
		switch {
		case p.Name == "":
			return nil, fmt.Errorf("%w: pattern %d has no name", ErrInvalidCatalog, i)
		case len(p.Moves) == 0:
			return nil, fmt.Errorf("%w: %q has no moves", ErrInvalidCatalog, p.Name)
		case !p.Moves[0].Direction.Moving():
			return nil, fmt.Errorf("%w: %q starts with %s", ErrInvalidCatalog, p.Name, p.Moves[0].Direction)
		case p.Category >= numCategories:
			return nil, fmt.Errorf("%w: %q has unknown category", ErrInvalidCatalog, p.Name)
		}
		if _, dup := c.byName[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate pattern %q", ErrInvalidCatalog, p.Name)
		}
		for j, m := range p.Moves {
			if m.Duration <= 0 {
				return nil, fmt.Errorf("%w: %q move %d has no duration", ErrInvalidCatalog, p.Name, j)
			}
		}
		p.Moves = append([]Move(nil), p.Moves...)
		c.patterns[i] = p
		c.byName[p.Name] = i
		c.byCategory[p.Category] = append(c.byCategory[p.Category], i)
	}
	return c, nil
}

func mustCatalog(patterns []Pattern) *Catalog {
	c, err := NewCatalog(patterns)
	if err != nil {
		panic(err)
	}
	return c
}

// Patterns returns every pattern in catalog order.
func (c *Catalog) Patterns() []Pattern {
	return append([]Pattern(nil), c.patterns...)
}

// Lookup finds a pattern by name.
func (c *Catalog) Lookup(name string) (Pattern, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Pattern{}, false
	}
	return c.patterns[i], true
}

// Category returns the patterns in cat.
func (c *Catalog) Category(cat Category) []Pattern {
	if cat >= numCategories {
		return nil
	}
	out := make([]Pattern, 0, len(c.byCategory[cat]))
	for _, i := range c.byCategory[cat] {
		out = append(out, c.patterns[i])
	}
	return out
}

func (c *Catalog) pattern(i int) *Pattern { return &c.patterns[i] }
