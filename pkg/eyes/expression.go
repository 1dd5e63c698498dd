// Package eyes picks what the LED eyes show. The ExpressionController turns
// beat, energy and movement state into expressions and hands them to a
// robot.EyeDisplay on its own goroutine, so a slow or missing display never
// stalls the audio loop.
package eyes

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownExpression is returned by ParseExpression.
	ErrUnknownExpression = errors.New("eyes: unknown expression")

	// ErrUnknownSpecial is returned by ParseSpecial.
	ErrUnknownSpecial = errors.New("eyes: unknown special animation")
)

// Expression is a static eye state.
type Expression uint8

const (
	Off Expression = iota
	Normal
	Happy
	Excited
	Wide
	Medium
	Small
	Sleepy
	Closed
	Angry
	Heart
	Star
	Dizzy
	Dead
	LookLeft
	LookRight
	LookUp
	LookDown
	WinkLeft
	WinkRight
)

var expressionNames = [...]string{
	Off:       "off",
	Normal:    "normal",
	Happy:     "happy",
	Excited:   "excited",
	Wide:      "wide",
	Medium:    "medium",
	Small:     "small",
	Sleepy:    "sleepy",
	Closed:    "closed",
	Angry:     "angry",
	Heart:     "heart",
	Star:      "star",
	Dizzy:     "dizzy",
	Dead:      "dead",
	LookLeft:  "look_left",
	LookRight: "look_right",
	LookUp:    "look_up",
	LookDown:  "look_down",
	WinkLeft:  "wink_left",
	WinkRight: "wink_right",
}

func (e Expression) String() string {
	if int(e) < len(expressionNames) {
		return expressionNames[e]
	}
	return fmt.Sprintf("expression(%d)", e)
}

// MarshalText encodes the expression by name.
func (e Expression) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// ParseExpression resolves an expression name, case-insensitively.
func ParseExpression(name string) (Expression, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range expressionNames {
		if s == n {
			return Expression(i), nil
		}
	}
	return Normal, fmt.Errorf("%w: %q", ErrUnknownExpression, name)
}

// Expressions lists the catalog in declaration order.
func Expressions() []Expression {
	out := make([]Expression, len(expressionNames))
	for i := range out {
		out[i] = Expression(i)
	}
	return out
}

// Special is a short animation played over the current expression.
type Special uint8

const (
	SpecialHeart Special = iota
	SpecialStar
	SpecialWink
	SpecialAngry
	SpecialHappy
	SpecialDead
	SpecialBlink
)

var specialNames = [...]string{
	SpecialHeart: "heart",
	SpecialStar:  "star",
	SpecialWink:  "wink",
	SpecialAngry: "angry",
	SpecialHappy: "happy",
	SpecialDead:  "dead",
	SpecialBlink: "blink",
}

func (s Special) String() string {
	if int(s) < len(specialNames) {
		return specialNames[s]
	}
	return fmt.Sprintf("special(%d)", s)
}

// MarshalText encodes the special by name.
func (s Special) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseSpecial resolves a special animation name, case-insensitively.
func ParseSpecial(name string) (Special, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range specialNames {
		if s == n {
			return Special(i), nil
		}
	}
	return SpecialBlink, fmt.Errorf("%w: %q", ErrUnknownSpecial, name)
}

// Specials lists the special animations.
func Specials() []Special {
	out := make([]Special, len(specialNames))
	for i := range out {
		out[i] = Special(i)
	}
	return out
}
