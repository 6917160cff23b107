package bar

import "testing"

func TestFeaturesRoundTrip(t *testing.T) {
	cases := []FirmwareFeatures{
		{},
		{Standalone: true},
		{Standalone: true, FirmwareInfo: true, Serial: true, Temperature: true, DataSelection: true, ChipID: true},
		{Serial: true, ChipID: true},
		{Temperature: true, DataSelection: true},
	}
	for _, f := range cases {
		got := DecodeFeatures(EncodeFeatures(f))
		if got != f {
			t.Errorf("round trip of %+v gave %+v", f, got)
		}
	}
}

func TestDecodeFeaturesBits(t *testing.T) {
	// bit 0 standalone, bit 3 temperature
	f := DecodeFeatures(0b1001)
	if !f.Standalone || !f.Temperature {
		t.Errorf("expected standalone and temperature set, got %+v", f)
	}
	if f.FirmwareInfo || f.Serial || f.DataSelection || f.ChipID {
		t.Errorf("unexpected bits set: %+v", f)
	}
}

func TestMockDescriptorCompletion(t *testing.T) {
	m := NewMock()
	m.SetDataEmulatorEnabled(true)
	m.EnableDataTaking()

	m.PushSuperpageDescriptor(0, 8, 0x1000)
	if got := m.SuperpageCount(0); got != 0 {
		t.Errorf("expected count 0 before completion, got %d", got)
	}
	if !m.CompleteSuperpage(0) {
		t.Error("expected an outstanding descriptor to complete")
	}
	if got := m.SuperpageCount(0); got != 1 {
		t.Errorf("expected count 1 after completion, got %d", got)
	}
	if m.CompleteSuperpage(0) {
		t.Error("expected no more outstanding descriptors")
	}
}

func TestMockAutoComplete(t *testing.T) {
	m := NewMock()
	m.AutoComplete = true
	m.SetDataEmulatorEnabled(true)
	m.EnableDataTaking()

	m.PushSuperpageDescriptor(2, 4, 0x2000)
	m.PushSuperpageDescriptor(2, 4, 0x4000)
	if got := m.SuperpageCount(2); got != 2 {
		t.Errorf("expected both descriptors completed, got count %d", got)
	}
}

func TestMockAutoCompleteSweepsOnArm(t *testing.T) {
	m := NewMock()
	m.AutoComplete = true

	// pushed before the emulator is armed; completed by the arming sweep
	m.PushSuperpageDescriptor(0, 4, 0x2000)
	if got := m.SuperpageCount(0); got != 0 {
		t.Errorf("expected no completion before arming, got %d", got)
	}
	m.SetDataEmulatorEnabled(true)
	if got := m.SuperpageCount(0); got != 1 {
		t.Errorf("expected the arming sweep to complete the descriptor, got %d", got)
	}
}

func TestMockReadyFifo(t *testing.T) {
	m := NewMock()
	m.ResetReadyFifo()
	length, status := m.ReadyFifoEntry(0)
	if status != ReadyFifoStatusNone {
		t.Errorf("expected empty entry status %d, got %d", ReadyFifoStatusNone, status)
	}
	_ = length

	m.MarkPageArrived(0)
	_, status = m.ReadyFifoEntry(0)
	if status != ReadyFifoStatusDone {
		t.Errorf("expected done status, got %d", status)
	}

	m.MarkPagePartial(1, 512)
	length, status = m.ReadyFifoEntry(1)
	if status == ReadyFifoStatusNone || status == ReadyFifoStatusDone {
		t.Errorf("expected a partial status, got %d", status)
	}
	if length != 512 {
		t.Errorf("expected partial length 512, got %d", length)
	}

	m.ResetReadyFifoEntry(0)
	_, status = m.ReadyFifoEntry(0)
	if status != ReadyFifoStatusNone {
		t.Errorf("expected reset entry status %d, got %d", ReadyFifoStatusNone, status)
	}
}

func TestMockResetCardClearsState(t *testing.T) {
	m := NewMock()
	m.SetDataEmulatorEnabled(true)
	m.EnableDataTaking()
	m.PushSuperpageDescriptor(0, 4, 0x1000)
	m.CompleteSuperpage(0)

	m.ResetCard()
	if m.CardResets() != 1 {
		t.Errorf("expected 1 card reset, got %d", m.CardResets())
	}
	if got := m.SuperpageCount(0); got != 0 {
		t.Errorf("expected counts cleared by reset, got %d", got)
	}
}
