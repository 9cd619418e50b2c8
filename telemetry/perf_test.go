package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseHostIndex)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseInfection)
		time.Sleep(200 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()
	if stats.AvgStepDuration <= 0 {
		t.Error("expected positive average step duration")
	}
	if _, ok := stats.PhaseAvg[PhaseHostIndex]; !ok {
		t.Error("expected host_index phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseInfection]; !ok {
		t.Error("expected infection phase to be tracked")
	}
	if pc.Last().Phases[PhaseInfection] <= 0 {
		t.Error("expected last sample to carry infection timing")
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseClassify)
		time.Sleep(10 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()
	if stats.AvgStepDuration <= 0 {
		t.Error("expected positive average step duration after window filled")
	}
	if stats.StepsPerSecond <= 0 {
		t.Error("expected positive steps per second")
	}
	if stats.MinStepDuration > stats.MaxStepDuration {
		t.Errorf("min %v > max %v", stats.MinStepDuration, stats.MaxStepDuration)
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseCandidates)
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase(PhaseProportion)
		time.Sleep(2 * time.Millisecond)
		pc.EndStep()
	}

	stats := pc.Stats()
	fast := stats.PhasePct[PhaseCandidates]
	slow := stats.PhasePct[PhaseProportion]
	if slow <= fast {
		t.Errorf("expected proportion (%v%%) > candidates (%v%%)", slow, fast)
	}
	row := stats.ToCSV(7)
	if row.Timestep != 7 || row.ProportionPct != slow {
		t.Errorf("csv row = %+v", row)
	}
}

func TestPerfCollector_EmptyAndNil(t *testing.T) {
	stats := NewPerfCollector(10).Stats()
	if stats.AvgStepDuration != 0 {
		t.Error("expected zero avg step duration for empty collector")
	}
	if stats.PhaseAvg == nil || stats.PhasePct == nil {
		t.Error("expected non-nil maps")
	}

	var pc *PerfCollector
	pc.StartStep()
	pc.StartPhase(PhaseClassify)
	pc.EndStep()
	if pc.Stats().PhaseAvg == nil {
		t.Error("nil collector should return empty stats")
	}
}
