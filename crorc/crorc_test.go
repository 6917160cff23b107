package crorc

import (
	"errors"
	"testing"
	"time"

	"github.com/daqline/readoutcard/bar"
	"github.com/daqline/readoutcard/dmabuf"
	"github.com/daqline/readoutcard/roc"
)

const pageSize = roc.DefaultDmaPageSize

func testRegion(t *testing.T) *dmabuf.Region {
	t.Helper()
	r, err := dmabuf.NewRegion(0x200000, 256*pageSize, pageSize)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func newTestChannel(t *testing.T, m *bar.Mock, params roc.Parameters) *Channel {
	t.Helper()
	c, err := New(m, testRegion(t), params)
	if err != nil {
		t.Fatal(err)
	}
	c.sleep = func(time.Duration) {}
	return c
}

// page4 returns the i-th four-page superpage of the region.
func page4(i int) roc.Superpage {
	return roc.Superpage{Offset: i * 4 * pageSize, Size: 4 * pageSize}
}

func TestNewRejectsBadConfig(t *testing.T) {
	region := testRegion(t)
	cases := []struct {
		desc   string
		params roc.Parameters
	}{
		{"ddg loopback", roc.Parameters{LoopbackMode: "ddg"}},
		{"bad pattern", roc.Parameters{GeneratorPattern: "random"}},
		{"nonzero link", roc.Parameters{LinkMask: []int{1}}},
		{"multiple links", roc.Parameters{LinkMask: []int{0, 1}}},
		{"page size mismatch", roc.Parameters{DmaPageSize: 4096}},
	}
	for _, tc := range cases {
		if _, err := New(bar.NewMock(), region, tc.params); !errors.Is(err, roc.ErrConfiguration) {
			t.Errorf("%s: expected ErrConfiguration, got %v", tc.desc, err)
		}
	}
}

func TestFirstPushArmsDma(t *testing.T) {
	m := bar.NewMock()
	c := newTestChannel(t, m, roc.Parameters{LinkQueueCapacity: 4})
	if err := c.StartDma(); err != nil {
		t.Fatal(err)
	}
	if m.EmulatorEnabled() || m.DataTaking() {
		t.Error("data path armed before the first superpage was pushed")
	}

	if err := c.PushSuperpage(page4(0)); err != nil {
		t.Fatal(err)
	}
	if !m.EmulatorEnabled() {
		t.Error("first push should arm the data emulator")
	}
	if !m.DataTaking() {
		t.Error("first push should open the data-taking gate")
	}
}

func TestPushBeforeStart(t *testing.T) {
	m := bar.NewMock()
	c := newTestChannel(t, m, roc.Parameters{LinkQueueCapacity: 4})
	if err := c.PushSuperpage(page4(0)); !errors.Is(err, roc.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestPushValidation(t *testing.T) {
	m := bar.NewMock()
	c := newTestChannel(t, m, roc.Parameters{LinkQueueCapacity: 4})
	if err := c.StartDma(); err != nil {
		t.Fatal(err)
	}

	huge := roc.Superpage{Offset: 0, Size: (ReadyFifoEntries + 1) * pageSize}
	if err := c.PushSuperpage(huge); !errors.Is(err, roc.ErrInvalidSuperpage) {
		t.Errorf("oversized superpage: expected ErrInvalidSuperpage, got %v", err)
	}
	misaligned := roc.Superpage{Offset: 17, Size: pageSize}
	if err := c.PushSuperpage(misaligned); !errors.Is(err, roc.ErrInvalidSuperpage) {
		t.Errorf("misaligned superpage: expected ErrInvalidSuperpage, got %v", err)
	}
	if got := c.TransferQueueAvailable(); got != 4 {
		t.Errorf("rejected pushes changed availability, expected 4, got %d", got)
	}
}

func TestDefaultCapacityIsOneSuperpage(t *testing.T) {
	m := bar.NewMock()
	c := newTestChannel(t, m, roc.Parameters{})
	if got := c.TransferQueueAvailable(); got != 1 {
		t.Fatalf("expected capacity 1 at the default page size, got %d", got)
	}
	if err := c.StartDma(); err != nil {
		t.Fatal(err)
	}
	if err := c.PushSuperpage(roc.Superpage{Offset: 0, Size: SuperpageSize}); err != nil {
		t.Fatal(err)
	}
	err := c.PushSuperpage(roc.Superpage{Offset: SuperpageSize, Size: SuperpageSize})
	if !errors.Is(err, roc.ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestPushWritesFreeFifoPages(t *testing.T) {
	m := bar.NewMock()
	c := newTestChannel(t, m, roc.Parameters{LinkQueueCapacity: 4})
	if err := c.StartDma(); err != nil {
		t.Fatal(err)
	}
	if err := c.PushSuperpage(page4(0)); err != nil {
		t.Fatal(err)
	}
	if err := c.PushSuperpage(page4(1)); err != nil {
		t.Fatal(err)
	}
	if c.freeFifoSize != 8 {
		t.Errorf("expected 8 occupied free FIFO slots, got %d", c.freeFifoSize)
	}
	if got := c.freeFifoFront(); got != 8 {
		t.Errorf("expected next free slot 8, got %d", got)
	}
}

func TestFillMovesCompletedInOrder(t *testing.T) {
	m := bar.NewMock()
	c := newTestChannel(t, m, roc.Parameters{LinkQueueCapacity: 4})
	if err := c.StartDma(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := c.PushSuperpage(page4(i)); err != nil {
			t.Fatal(err)
		}
	}
	m.AdvanceCount(0, 2)

	if err := c.FillSuperpages(); err != nil {
		t.Fatal(err)
	}
	if got := c.ReadyQueueSize(); got != 2 {
		t.Fatalf("expected 2 ready superpages, got %d", got)
	}
	for i := 0; i < 2; i++ {
		sp, err := c.PopSuperpage()
		if err != nil {
			t.Fatal(err)
		}
		if sp.Offset != i*4*pageSize {
			t.Errorf("pop %d: expected offset %d, got %d", i, i*4*pageSize, sp.Offset)
		}
		if !sp.Ready || sp.Received != sp.Size {
			t.Errorf("pop %d: expected fully received, got %+v", i, sp)
		}
	}
	if c.freeFifoSize != 4 {
		t.Errorf("expected 4 occupied free FIFO slots after retiring 2 superpages, got %d", c.freeFifoSize)
	}
}

func TestFillProtocolViolation(t *testing.T) {
	m := bar.NewMock()
	c := newTestChannel(t, m, roc.Parameters{LinkQueueCapacity: 4})
	if err := c.StartDma(); err != nil {
		t.Fatal(err)
	}
	if err := c.PushSuperpage(page4(0)); err != nil {
		t.Fatal(err)
	}
	m.AdvanceCount(0, 5)

	err := c.FillSuperpages()
	if !errors.Is(err, roc.ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}
	if got := c.ReadyQueueSize(); got != 0 {
		t.Errorf("violating poll moved %d superpage(s)", got)
	}
	if got := c.TransferQueueAvailable(); got != 3 {
		t.Errorf("violating poll changed availability, expected 3, got %d", got)
	}
}

func TestFreeFifoWrapAround(t *testing.T) {
	m := bar.NewMock()
	c := newTestChannel(t, m, roc.Parameters{LinkQueueCapacity: 4})
	if err := c.StartDma(); err != nil {
		t.Fatal(err)
	}
	// 40 cycles of 4 pages walk the 128-entry FIFO past its end
	for i := 0; i < 40; i++ {
		if err := c.PushSuperpage(page4(i % 8)); err != nil {
			t.Fatalf("cycle %d: push: %v", i, err)
		}
		m.AdvanceCount(0, 1)
		if err := c.FillSuperpages(); err != nil {
			t.Fatalf("cycle %d: fill: %v", i, err)
		}
		sp, err := c.PopSuperpage()
		if err != nil {
			t.Fatalf("cycle %d: pop: %v", i, err)
		}
		if !sp.Ready {
			t.Fatalf("cycle %d: expected ready superpage, got %+v", i, sp)
		}
	}
	if c.freeFifoSize != 0 {
		t.Errorf("expected empty free FIFO, %d slots occupied", c.freeFifoSize)
	}
	if c.freeFifoBack != (40*4)%ReadyFifoEntries {
		t.Errorf("expected back index %d, got %d", (40*4)%ReadyFifoEntries, c.freeFifoBack)
	}
}

func TestStopDrainPartialByteAccounting(t *testing.T) {
	m := bar.NewMock()
	c := newTestChannel(t, m, roc.Parameters{LinkQueueCapacity: 4})
	if err := c.StartDma(); err != nil {
		t.Fatal(err)
	}
	if err := c.PushSuperpage(page4(0)); err != nil {
		t.Fatal(err)
	}
	if err := c.PushSuperpage(page4(1)); err != nil {
		t.Fatal(err)
	}
	// the first superpage completes; the second stops mid-page: two whole
	// pages plus 512 bytes of a third
	m.AdvanceCount(0, 1)
	m.MarkPageArrived(4)
	m.MarkPageArrived(5)
	m.MarkPagePartial(6, 512)

	if err := c.StopDma(); err != nil {
		t.Fatal(err)
	}
	if got := c.ReadyQueueSize(); got != 2 {
		t.Fatalf("expected both superpages drained, ready queue holds %d", got)
	}
	sp, _ := c.PopSuperpage()
	if !sp.Ready || sp.Received != sp.Size {
		t.Errorf("confirmed superpage: expected fully received, got %+v", sp)
	}
	sp, _ = c.PopSuperpage()
	if sp.Ready {
		t.Errorf("trailing superpage should not be marked ready, got %+v", sp)
	}
	if expected := 2*pageSize + 512; sp.Received != expected {
		t.Errorf("trailing superpage: expected %d bytes received, got %d", expected, sp.Received)
	}
	if !c.IsTransferQueueEmpty() {
		t.Error("transfer queue should be empty after stop")
	}
}

func TestStopWithNothingInFlight(t *testing.T) {
	m := bar.NewMock()
	c := newTestChannel(t, m, roc.Parameters{LinkQueueCapacity: 4})
	if err := c.StartDma(); err != nil {
		t.Fatal(err)
	}
	if err := c.StopDma(); err != nil {
		t.Fatal(err)
	}
	if err := c.StartDma(); err != nil {
		t.Errorf("restart after stop: expected nil error, got %v", err)
	}
}

func TestTelemetry(t *testing.T) {
	m := bar.NewMock()
	c := newTestChannel(t, m, roc.Parameters{})

	if _, err := c.Temperature(); !errors.Is(err, roc.ErrNotSupported) {
		t.Errorf("temperature: expected ErrNotSupported, got %v", err)
	}
	if _, err := c.CardID(); !errors.Is(err, roc.ErrNotSupported) {
		t.Errorf("card ID: expected ErrNotSupported, got %v", err)
	}
	if serial, err := c.Serial(); err != nil || serial != m.Serial() {
		t.Errorf("serial: expected %d with nil error, got %d, %v", m.Serial(), serial, err)
	}
	if c.InjectError() {
		t.Error("error injection should not be available")
	}
	if c.CardType() != roc.CardCrorc {
		t.Errorf("expected card type crorc, got %s", c.CardType())
	}
}
