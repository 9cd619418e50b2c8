package biomass

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/pthm-cable/blight/simerr"
)

func TestTimerLifetime(t *testing.T) {
	timers, err := NewTimers(DefaultResproutLongevity, DefaultResproutProbability)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(11))

	// Death at timestep T.
	timers.Schedule(4, "tanoak")

	for step := 1; step <= 5; step++ {
		if timers.Remaining(4, "tanoak") != 6-step {
			t.Fatalf("T+%d: remaining = %d, want %d", step, timers.Remaining(4, "tanoak"), 6-step)
		}
		timers.Tick(rng, func(int, string) {})
	}
	if timers.Len() != 0 {
		t.Errorf("timer still live after T+5")
	}
}

func TestTimerRefresh(t *testing.T) {
	timers, _ := NewTimers(3, 0)
	rng := rand.New(rand.NewSource(1))
	timers.Schedule(0, "bay")
	timers.Tick(rng, func(int, string) {})
	timers.Schedule(0, "bay")
	if got := timers.Remaining(0, "bay"); got != 3 {
		t.Errorf("refreshed timer remaining = %d, want 3", got)
	}
}

func TestTimerSpawnRate(t *testing.T) {
	timers, _ := NewTimers(1, DefaultResproutProbability)
	rng := rand.New(rand.NewSource(99))

	const sites = 20000
	for i := 0; i < sites; i++ {
		timers.Schedule(i, "tanoak")
	}
	spawned := 0
	timers.Tick(rng, func(site int, species string) {
		if species != "tanoak" {
			t.Fatalf("spawned %q", species)
		}
		spawned++
	})
	rate := float64(spawned) / sites
	if math.Abs(rate-DefaultResproutProbability) > 0.015 {
		t.Errorf("spawn rate = %v, want ~%v", rate, DefaultResproutProbability)
	}
	if timers.Len() != 0 {
		t.Error("timers with longevity 1 must expire after one tick")
	}
}

func TestNewTimersValidation(t *testing.T) {
	if _, err := NewTimers(0, 0.15); !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
	if _, err := NewTimers(5, 1.5); !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
