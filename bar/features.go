package bar

import "github.com/daqline/readoutcard/util"

// Bit positions of the firmware feature register.
const (
	featureBitStandalone    = 0
	featureBitFirmwareInfo  = 1
	featureBitSerial        = 2
	featureBitTemperature   = 3
	featureBitDataSelection = 4
	featureBitChipID        = 5
)

// DecodeFeatures unpacks a raw firmware feature register word into a
// FirmwareFeatures snapshot.  Bar implementations over real hardware use
// it after reading the register once at channel construction.
func DecodeFeatures(word uint32) FirmwareFeatures {
	return FirmwareFeatures{
		Standalone:    util.GetBit(word, featureBitStandalone),
		FirmwareInfo:  util.GetBit(word, featureBitFirmwareInfo),
		Serial:        util.GetBit(word, featureBitSerial),
		Temperature:   util.GetBit(word, featureBitTemperature),
		DataSelection: util.GetBit(word, featureBitDataSelection),
		ChipID:        util.GetBit(word, featureBitChipID),
	}
}

// EncodeFeatures packs a FirmwareFeatures snapshot back into a register
// word.  It is the inverse of DecodeFeatures.
func EncodeFeatures(f FirmwareFeatures) uint32 {
	var w uint32
	w = util.SetBit(w, featureBitStandalone, f.Standalone)
	w = util.SetBit(w, featureBitFirmwareInfo, f.FirmwareInfo)
	w = util.SetBit(w, featureBitSerial, f.Serial)
	w = util.SetBit(w, featureBitTemperature, f.Temperature)
	w = util.SetBit(w, featureBitDataSelection, f.DataSelection)
	w = util.SetBit(w, featureBitChipID, f.ChipID)
	return w
}
