package scheduler

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Quality bounds for a self-reported recall score.
const (
	MinQuality = 0 // complete blackout
	MaxQuality = 5 // perfect recall
)

// passingQuality is the lowest score that counts as a successful recall.
const passingQuality = 3

const (
	// InitialEase is the ease factor assigned to a brand-new card.
	InitialEase = 2.5
	// MinEase is the floor below which the ease factor never drops.
	MinEase = 1.3
	// MasteryInterval is the interval, in days, at or above which a
	// card counts as mastered.
	MasteryInterval = 30
)

// ErrInvalidQuality is returned when a review score falls outside
// [MinQuality, MaxQuality]. The card state is untouched on this path.
var ErrInvalidQuality = errors.New("quality must be between 0 and 5")

// State is the scheduling state of a single card. It is a plain value;
// Review never mutates its input.
type State struct {
	Interval   int       // days until the next review; 0 only before the first review
	Repetition int       // consecutive successful reviews since the last failure
	EaseFactor float64   // interval growth multiplier, never below MinEase
	NextReview time.Time // the card is due when NextReview <= now
}

// NewState is the state of a freshly created card: immediately due,
// never reviewed.
func NewState(now time.Time) State {
	return State{
		Interval:   0,
		Repetition: 0,
		EaseFactor: InitialEase,
		NextReview: now,
	}
}

// Review applies one SM-2 step to a card state and returns the new
// state. quality is the learner's recall score in [0,5]; scores below 3
// count as failures and reset the repetition streak and interval. The
// interval for a mature card grows by the ease factor in effect before
// this review; the ease factor itself is then adjusted by the quality
// and clamped at MinEase. The same state and quality always produce the
// same result.
func Review(s State, quality int, now time.Time) (State, error) {
	if quality < MinQuality || quality > MaxQuality {
		return State{}, fmt.Errorf("%w: got %d", ErrInvalidQuality, quality)
	}

	next := s
	if quality < passingQuality {
		next.Repetition = 0
		next.Interval = 1
	} else {
		switch next.Repetition {
		case 0:
			next.Interval = 1
		case 1:
			next.Interval = 6
		default:
			next.Interval = int(math.Round(float64(next.Interval) * next.EaseFactor))
		}
		next.Repetition++
	}

	q := float64(quality)
	next.EaseFactor = math.Max(MinEase, next.EaseFactor+0.1-(5-q)*(0.08+(5-q)*0.02))
	next.NextReview = now.Add(time.Duration(next.Interval) * 24 * time.Hour)

	return next, nil
}

// Phase is where a card sits in its learning lifecycle. It is derived
// from the interval alone; a failed review sends any card back to an
// interval-1 state while its ease factor carries over.
type Phase int

const (
	PhaseNew      Phase = iota // never successfully scheduled
	PhaseLearning              // interval 1..29 days
	PhaseMastered              // interval of MasteryInterval days or more
)

func (p Phase) String() string {
	switch p {
	case PhaseNew:
		return "new"
	case PhaseLearning:
		return "learning"
	case PhaseMastered:
		return "mastered"
	default:
		return "unknown"
	}
}

// PhaseOf classifies a card state by its current interval.
func PhaseOf(s State) Phase {
	switch {
	case s.Interval == 0:
		return PhaseNew
	case s.Interval >= MasteryInterval:
		return PhaseMastered
	default:
		return PhaseLearning
	}
}
