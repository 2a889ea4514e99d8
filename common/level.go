package common

import "strings"

//go:generate go run github.com/dmarkham/enumer -json -type ProcessingLevel -trimprefix Level

// ProcessingLevel is the ordered processing level of a product, independent of the platform.
// LevelOpen is used when the level is unknown or when a request accepts any level.
type ProcessingLevel int

const (
	LevelOpen ProcessingLevel = iota
	LevelRaw
	LevelIntermediate
	LevelFinal
)

// ParseProcessingLevel maps the level, or the product type, reported by a provider to a ProcessingLevel
func ParseProcessingLevel(platform Platform, level string) ProcessingLevel {
	l := strings.ToUpper(strings.TrimSpace(level))
	switch platform {
	case Sentinel1:
		switch l {
		case "L0", "LEVEL-0", "RAW":
			return LevelRaw
		case "L1", "LEVEL-1", "SLC", "GRD":
			return LevelIntermediate
		case "L2", "LEVEL-2", "OCN":
			return LevelFinal
		}
	case Sentinel2:
		switch l {
		case "L1C", "LEVEL-1C", "S2MSI1C":
			return LevelRaw
		case "L2A", "LEVEL-2A", "S2MSI2A", "S2MSI2AP":
			return LevelFinal
		}
	}
	return LevelOpen
}

// Higher returns true if l is strictly more processed than other.
// LevelOpen is comparable to nothing.
func (l ProcessingLevel) Higher(other ProcessingLevel) bool {
	if l == LevelOpen || other == LevelOpen {
		return false
	}
	return l > other
}
