package roc

import "fmt"

// ResetLevel describes how much of the card is reset by a channel reset.
type ResetLevel int

// LoopbackMode is a data path loopback selection.
type LoopbackMode int

// GeneratorPattern is a data pattern produced by the on-card data generator.
type GeneratorPattern int

// CardType discriminates the hardware variants a channel may drive.
type CardType int

const (
	// ResetNothing performs no reset at all
	ResetNothing ResetLevel = iota

	// ResetInternal resets the card channel only
	ResetInternal

	// ResetInternalDiu resets the card channel and the DIU
	ResetInternalDiu

	// ResetInternalDiuSiu resets the card channel, DIU, and SIU
	ResetInternalDiuSiu

	// LoopbackNone disables loopback; data comes from the front-end links
	LoopbackNone LoopbackMode = iota

	// LoopbackInternal loops the data generator back inside the card.
	// Selecting it flips the card's debug mode register.
	LoopbackInternal

	// LoopbackDdg loops data through the detector data generator
	LoopbackDdg

	// LoopbackDiu loops data at the DIU.  Only the legacy single-link
	// card supports it.
	LoopbackDiu

	// LoopbackSiu loops data at the SIU.  Only the legacy single-link
	// card supports it.
	LoopbackSiu

	// PatternIncremental counts up one word at a time
	PatternIncremental GeneratorPattern = iota

	// PatternAlternating flips between 0xA and 0x5 nibble fills
	PatternAlternating

	// PatternConstant repeats the seed word
	PatternConstant

	// CardCru is the multi-link readout card
	CardCru CardType = iota

	// CardCrorc is the legacy single-link readout card
	CardCrorc

	// CardSim is the simulated card
	CardSim
)

// ValidateResetLevel converts a string to a ResetLevel.
// s must be a member of {nothing, internal, internal-diu, internal-diu-siu}.
func ValidateResetLevel(s string) (ResetLevel, error) {
	switch s {
	case "nothing", "":
		return ResetNothing, nil
	case "internal":
		return ResetInternal, nil
	case "internal-diu":
		return ResetInternalDiu, nil
	case "internal-diu-siu":
		return ResetInternalDiuSiu, nil
	default:
		return -1, fmt.Errorf("reset level must be a member of {nothing, internal, internal-diu, internal-diu-siu}, got %q", s)
	}
}

// FormatResetLevel converts a ResetLevel to its string representation
func FormatResetLevel(l ResetLevel) string {
	switch l {
	case ResetNothing:
		return "nothing"
	case ResetInternal:
		return "internal"
	case ResetInternalDiu:
		return "internal-diu"
	case ResetInternalDiuSiu:
		return "internal-diu-siu"
	default:
		return ""
	}
}

// IncludesExternal returns true if the reset level reaches beyond the card
// itself into the DIU or SIU.
func (l ResetLevel) IncludesExternal() bool {
	return l == ResetInternalDiu || l == ResetInternalDiuSiu
}

// ValidateLoopbackMode converts a string to a LoopbackMode.
// s must be a member of {none, internal, ddg, diu, siu}.
func ValidateLoopbackMode(s string) (LoopbackMode, error) {
	switch s {
	case "none":
		return LoopbackNone, nil
	case "internal", "":
		return LoopbackInternal, nil
	case "ddg":
		return LoopbackDdg, nil
	case "diu":
		return LoopbackDiu, nil
	case "siu":
		return LoopbackSiu, nil
	default:
		return -1, fmt.Errorf("loopback mode must be a member of {none, internal, ddg, diu, siu}, got %q", s)
	}
}

// FormatLoopbackMode converts a LoopbackMode to its string representation
func FormatLoopbackMode(m LoopbackMode) string {
	switch m {
	case LoopbackNone:
		return "none"
	case LoopbackInternal:
		return "internal"
	case LoopbackDdg:
		return "ddg"
	case LoopbackDiu:
		return "diu"
	case LoopbackSiu:
		return "siu"
	default:
		return ""
	}
}

// ValidateGeneratorPattern converts a string to a GeneratorPattern.
// s must be a member of {incremental, alternating, constant}.
func ValidateGeneratorPattern(s string) (GeneratorPattern, error) {
	switch s {
	case "incremental", "":
		return PatternIncremental, nil
	case "alternating":
		return PatternAlternating, nil
	case "constant":
		return PatternConstant, nil
	default:
		return -1, fmt.Errorf("generator pattern must be a member of {incremental, alternating, constant}, got %q", s)
	}
}

// FormatGeneratorPattern converts a GeneratorPattern to its string representation
func FormatGeneratorPattern(p GeneratorPattern) string {
	switch p {
	case PatternIncremental:
		return "incremental"
	case PatternAlternating:
		return "alternating"
	case PatternConstant:
		return "constant"
	default:
		return ""
	}
}

// String returns the card type as a short lowercase tag
func (c CardType) String() string {
	switch c {
	case CardCru:
		return "cru"
	case CardCrorc:
		return "crorc"
	case CardSim:
		return "sim"
	default:
		return "unknown"
	}
}
