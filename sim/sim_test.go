package sim

import (
	"errors"
	"testing"

	"github.com/daqline/readoutcard/generator"
	"github.com/daqline/readoutcard/roc"
)

const pageSize = roc.DefaultDmaPageSize

func TestRoundTrip(t *testing.T) {
	c, err := New(16*pageSize, roc.Parameters{})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.StartDma(); err != nil {
		t.Fatal(err)
	}
	sp := roc.Superpage{Offset: 0, Size: 2 * pageSize}
	if err := c.PushSuperpage(sp); err != nil {
		t.Fatal(err)
	}
	if err := c.FillSuperpages(); err != nil {
		t.Fatal(err)
	}
	got, err := c.PopSuperpage()
	if err != nil {
		t.Fatal(err)
	}
	if !got.Ready || got.Received != sp.Size {
		t.Errorf("expected a fully received superpage, got %+v", got)
	}
	if err := generator.Verify(c.Bytes(got)); err != nil {
		t.Errorf("expected filled payload to verify, got %v", err)
	}
}

func TestInjectError(t *testing.T) {
	c, err := New(16*pageSize, roc.Parameters{})
	if err != nil {
		t.Fatal(err)
	}
	c.StartDma()
	if !c.InjectError() {
		t.Fatal("expected injection to be accepted")
	}
	sp := roc.Superpage{Offset: 0, Size: pageSize}
	c.PushSuperpage(sp)
	c.FillSuperpages()
	got, _ := c.PopSuperpage()
	if err := generator.Verify(c.Bytes(got)); err == nil {
		t.Error("expected the corrupted superpage to fail verification")
	}

	// the corruption is one-shot
	c.PushSuperpage(roc.Superpage{Offset: pageSize, Size: pageSize})
	c.FillSuperpages()
	got, _ = c.PopSuperpage()
	if err := generator.Verify(c.Bytes(got)); err != nil {
		t.Errorf("expected the next superpage to verify, got %v", err)
	}
}

func TestInjectErrorGeneratorDisabled(t *testing.T) {
	c, err := New(16*pageSize, roc.Parameters{GeneratorDisabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if c.InjectError() {
		t.Error("expected injection to be refused with the generator disabled")
	}
}

func TestFillBoundedByReadyQueue(t *testing.T) {
	c, err := New(16*pageSize, roc.Parameters{ReadyQueueCapacity: 2})
	if err != nil {
		t.Fatal(err)
	}
	c.StartDma()
	for i := 0; i < 3; i++ {
		if err := c.PushSuperpage(roc.Superpage{Offset: i * pageSize, Size: pageSize}); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.FillSuperpages(); err != nil {
		t.Fatal(err)
	}
	if got := c.ReadyQueueSize(); got != 2 {
		t.Errorf("expected ready queue capped at 2, got %d", got)
	}
	if c.IsTransferQueueEmpty() {
		t.Error("the deferred superpage should stay in flight")
	}
}

func TestLifecycle(t *testing.T) {
	c, err := New(16*pageSize, roc.Parameters{})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.StopDma(); !errors.Is(err, roc.ErrInvalidState) {
		t.Errorf("stop while idle: expected ErrInvalidState, got %v", err)
	}
	if err := c.StartDma(); err != nil {
		t.Fatal(err)
	}
	if err := c.StartDma(); !errors.Is(err, roc.ErrInvalidState) {
		t.Errorf("double start: expected ErrInvalidState, got %v", err)
	}
	c.PushSuperpage(roc.Superpage{Offset: 0, Size: pageSize})
	if err := c.StopDma(); err != nil {
		t.Fatal(err)
	}
	if got := c.ReadyQueueSize(); got != 1 {
		t.Errorf("stop should drain in-flight superpages, ready queue holds %d", got)
	}
}

func TestPushValidation(t *testing.T) {
	c, err := New(16*pageSize, roc.Parameters{})
	if err != nil {
		t.Fatal(err)
	}
	c.StartDma()
	if err := c.PushSuperpage(roc.Superpage{Offset: 3, Size: pageSize}); !errors.Is(err, roc.ErrInvalidSuperpage) {
		t.Errorf("expected ErrInvalidSuperpage, got %v", err)
	}
	if err := c.PushSuperpage(roc.Superpage{Offset: 15 * pageSize, Size: 2 * pageSize}); !errors.Is(err, roc.ErrInvalidSuperpage) {
		t.Errorf("expected ErrInvalidSuperpage, got %v", err)
	}
}

func TestTelemetry(t *testing.T) {
	c, err := New(16*pageSize, roc.Parameters{})
	if err != nil {
		t.Fatal(err)
	}
	if c.CardType() != roc.CardSim {
		t.Errorf("expected card type sim, got %s", c.CardType())
	}
	if serial, err := c.Serial(); err != nil || serial != -1 {
		t.Errorf("expected serial -1 with nil error, got %d, %v", serial, err)
	}
	if temp, err := c.Temperature(); err != nil || temp != 30.0 {
		t.Errorf("expected temperature 30 with nil error, got %v, %v", temp, err)
	}
	if c.DroppedPackets() != 0 {
		t.Errorf("simulation should never drop packets")
	}
}
