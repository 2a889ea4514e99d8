package common

import (
	"fmt"
	"strings"
)

//go:generate go run github.com/dmarkham/enumer -json -type Platform

// Platform defines the kind of satellites that acquired a product
type Platform int

const (
	Unknown   Platform = iota
	Sentinel1          // MMM_BB_TTTR_LFPP_YYYYMMDDTHHMMSS_YYYMMDDTHHMMSS_OOOOOO_DDDDDD_CCCC.SAFE
	Sentinel2          // MMM_MSIXXX_YYYYMMDDTHHMMSS_Nxxyy_ROOO_Txxxxx_<Product Discriminator>.SAFE
)

// Family groups the platforms sharing the same deduplication semantics
type Family int

const (
	UndefinedFamily Family = iota
	// TiledOptical products are cut along a fixed tiling grid and delivered at several processing levels
	TiledOptical
	// ContinuousSwath products are slices of a continuous acquisition along the orbit
	ContinuousSwath
)

func (f Family) String() string {
	switch f {
	case TiledOptical:
		return "TiledOptical"
	case ContinuousSwath:
		return "ContinuousSwath"
	}
	return "Undefined"
}

// Family returns the family of the platform
func (p Platform) Family() Family {
	switch p {
	case Sentinel1:
		return ContinuousSwath
	case Sentinel2:
		return TiledOptical
	}
	return UndefinedFamily
}

// PlatformName returns the name of the platform as used by the Copernicus hubs (platformname)
func (p Platform) PlatformName() string {
	switch p {
	case Sentinel1:
		return "Sentinel-1"
	case Sentinel2:
		return "Sentinel-2"
	}
	return ""
}

// GetPlatformFromString returns the platform from the user input
func GetPlatformFromString(input string) Platform {
	switch strings.ToLower(input) {
	case "sentinel1", "sentinel-1", "s1":
		return Sentinel1
	case "sentinel2", "sentinel-2", "s2":
		return Sentinel2
	}
	return GetPlatformFromProductId(input)
}

// GetPlatformFromProductId returns the platform from the name of a product
func GetPlatformFromProductId(productName string) Platform {
	if strings.HasPrefix(productName, "S1") {
		return Sentinel1
	}
	if strings.HasPrefix(productName, "S2") {
		return Sentinel2
	}
	return Unknown
}

// Info splits the name of the product into its fields.
// ACQUISITION is the name without the product discriminator, shared by all the reprocessings of an acquisition.
func Info(productName string) (map[string]string, error) {
	switch GetPlatformFromProductId(productName) {
	case Sentinel1:
		if len(productName) < len("MMM_BB_TTTR_LFPP_YYYYMMDDTHHMMSS_YYYYMMDDTHHMMSS_OOOOOO_DDDDDD_CCCC") {
			return nil, fmt.Errorf("invalid Sentinel1 file name: %s", productName)
		}
		return map[string]string{
			"SCENE":            productName,
			"ACQUISITION":      productName[0:62],
			"MISSION_ID":       productName[0:3],
			"MISSION_VERSION":  productName[2:3],
			"MODE":             productName[4:6],
			"PRODUCT_TYPE":     productName[7:10],
			"RESOLUTION":       productName[10:11],
			"PROCESSING_LEVEL": productName[12:13],
			"PRODUCT_CLASS":    productName[13:14],
			"POLARISATION":     productName[14:16],
			"DATE":             productName[17:25],
			"YEAR":             productName[17:21],
			"MONTH":            productName[21:23],
			"DAY":              productName[23:25],
			"TIME":             productName[26:32],
			"HOUR":             productName[26:28],
			"MINUTE":           productName[28:30],
			"SECOND":           productName[30:32],
			"END_DATE":         productName[33:41],
			"END_TIME":         productName[42:48],
			"ORBIT":            productName[49:55],
			"MISSION":          productName[56:62],
			"UNIQUE_ID":        productName[63:67],
		}, nil
	case Sentinel2:
		if len(productName) < len("MMM_MSIXXX_YYYYMMDDTHHMMSS_Nxxyy_ROOO_Txxxxx_<Product Disc.>") {
			return nil, fmt.Errorf("invalid Sentinel2 file name: %s", productName)
		}
		if productName[10] != '_' {
			return nil, fmt.Errorf("unsupported Sentinel2 naming convention: %s", productName)
		}
		return map[string]string{
			"SCENE":           productName,
			"ACQUISITION":     productName[0:44],
			"MISSION_ID":      productName[0:3],
			"MISSION_VERSION": productName[2:3],
			"PRODUCT_LEVEL":   productName[7:10],
			"DATE":            productName[11:19],
			"YEAR":            productName[11:15],
			"MONTH":           productName[15:17],
			"DAY":             productName[17:19],
			"TIME":            productName[20:26],
			"HOUR":            productName[20:22],
			"MINUTE":          productName[22:24],
			"SECOND":          productName[24:26],
			"PDGS":            productName[28:32],
			"ORBIT":           productName[34:37],
			"TILE":            productName[38:44],
			"LATITUDE_BAND":   productName[39:41],
			"GRID_SQUARE":     productName[41:42],
			"GRANULE_ID":      productName[42:44],
			"PRODUCT_DISC":    productName[45:60],
		}, nil
	}
	return nil, fmt.Errorf("Info: platform not supported")
}
