package system

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type recordingService struct {
	name     string
	startErr error
	stopErr  error
	events   *[]string
}

func (s recordingService) Name() string { return s.name }

func (s recordingService) Start(ctx context.Context) error {
	*s.events = append(*s.events, "start "+s.name)
	return s.startErr
}

func (s recordingService) Stop(ctx context.Context) error {
	*s.events = append(*s.events, "stop "+s.name)
	return s.stopErr
}

func mustRegister(t *testing.T, m *Manager, svc Service) {
	t.Helper()
	if err := m.Register(svc); err != nil {
		t.Fatalf("Register(%s): %v", svc.Name(), err)
	}
}

func TestManagerStartsInOrderAndStopsInReverse(t *testing.T) {
	var events []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		mustRegister(t, m, recordingService{name: name, events: &events})
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []string{"start a", "start b", "start c", "stop c", "stop b", "stop a"}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	var events []string
	boom := errors.New("boom")
	m := NewManager()
	mustRegister(t, m, recordingService{name: "a", events: &events})
	mustRegister(t, m, recordingService{name: "b", startErr: boom, events: &events})
	mustRegister(t, m, recordingService{name: "c", events: &events})

	if err := m.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Start error = %v, want %v", err, boom)
	}
	want := []string{"start a", "start b", "stop a"}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestManagerStopCollectsErrors(t *testing.T) {
	var events []string
	first, second := errors.New("first"), errors.New("second")
	m := NewManager()
	mustRegister(t, m, recordingService{name: "a", stopErr: first, events: &events})
	mustRegister(t, m, recordingService{name: "b", stopErr: second, events: &events})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err := m.Stop(context.Background())
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Errorf("Stop error = %v, want both %v and %v", err, first, second)
	}
	want := []string{"start a", "start b", "stop b", "stop a"}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}

	if err := m.Stop(context.Background()); err != nil {
		t.Errorf("second Stop = %v, want nil", err)
	}
}

func TestManagerRegisterRules(t *testing.T) {
	m := NewManager()
	if err := m.Register(nil); err == nil {
		t.Error("Register(nil) should fail")
	}
	mustRegister(t, m, NoopService{ServiceName: "x"})
	if err := m.Register(NoopService{ServiceName: "x"}); err == nil {
		t.Error("duplicate Register should fail")
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Register(NoopService{ServiceName: "y"}); err == nil {
		t.Error("Register after Start should fail")
	}
	if err := m.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
}
