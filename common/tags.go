package common

// Product metadata tags
const (
	TagUUID                 = "uuid"
	TagTitle                = "title"
	TagPlatformName         = "platformname"
	TagProcessingLevel      = "processinglevel"
	TagProductType          = "producttype"
	TagPolarisationMode     = "polarisationmode"
	TagSensorMode           = "sensoroperationalmode"
	TagOrbitDirection       = "orbitdirection"
	TagRelativeOrbit        = "relativeorbitnumber"
	TagOrbit                = "orbitnumber"
	TagCloudCoverPercentage = "cloudcoverpercentage"
	TagIngestionDate        = "ingestiondate"
	TagDownloadURL          = "link"
	TagSize                 = "size"

	// TagProviderTileID is the tile identifier reported by the provider (S2 only).
	// It is kept for information, the annotation always comes from the grid.
	TagProviderTileID = "tileid"
)
