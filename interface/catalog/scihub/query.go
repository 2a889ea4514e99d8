package scihub

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/airbusgeo/geocube-tilefinder/catalog/entities"
	"github.com/airbusgeo/geocube-tilefinder/common"
	"github.com/airbusgeo/geocube-tilefinder/service/geometry"
)

// Parameters of SceneType supported by the provider
const (
	ParamProcLevel    = entities.ProcLevelParameter
	ParamProductType  = common.TagProductType
	ParamMode         = common.TagSensorMode
	ParamPolarisation = common.TagPolarisationMode
	ParamResolution   = "resolution"
	ParamCloudCover   = common.TagCloudCoverPercentage
)

// Processing levels that can be requested
const (
	LevelBest = "BEST"
	LevelAll  = "ALL"
)

var (
	s1ProcLevels    = []string{"L0", "L1", "L2", LevelAll}
	s1ProductTypes  = []string{"RAW", "SLC", "GRD", "OCN"}
	s1Modes         = []string{"SM", "IW", "EW", "WV"}
	s1Polarisations = []string{"HH", "VV", "HV", "VH", "HH HV", "VV VH"}
	s1Resolutions   = []string{"F", "H", "M"}
	s2ProcLevels    = []string{"L1C", "L2A", LevelBest, LevelAll}
	s1OnlyParams    = []string{ParamProductType, ParamMode, ParamPolarisation, ParamResolution}
)

func oneOf(param, value string, values []string) error {
	for _, v := range values {
		if v == value {
			return nil
		}
	}
	return fmt.Errorf("unsupported %s '%s' (expecting one of %s)", param, value, strings.Join(values, ", "))
}

// ProcLevel returns the processing level requested for the area (upper case).
// Sentinel-2 defaults to BEST, Sentinel-1 to all the levels matching the other parameters.
func ProcLevel(area *entities.AreaToSearch) string {
	level := strings.ToUpper(area.SceneType.Parameters[ParamProcLevel])
	if level == "" && common.GetPlatformFromString(area.SceneType.Constellation) == common.Sentinel2 {
		return LevelBest
	}
	return level
}

// ValidateParameters checks the parameters of the scene type of the area
func ValidateParameters(area *entities.AreaToSearch) error {
	params := area.SceneType.Parameters
	level := ProcLevel(area)
	switch common.GetPlatformFromString(area.SceneType.Constellation) {
	case common.Sentinel1:
		if level != "" {
			if err := oneOf(ParamProcLevel, level, s1ProcLevels); err != nil {
				return err
			}
		}
		checks := []struct {
			param  string
			values []string
		}{
			{ParamProductType, s1ProductTypes},
			{ParamMode, s1Modes},
			{ParamPolarisation, s1Polarisations},
			{ParamResolution, s1Resolutions},
		}
		for _, c := range checks {
			if v, ok := params[c.param]; ok {
				if err := oneOf(c.param, strings.ToUpper(v), c.values); err != nil {
					return err
				}
			}
		}
		if _, ok := params[ParamCloudCover]; ok {
			return fmt.Errorf("%s is only supported for Sentinel-2 products", ParamCloudCover)
		}
	case common.Sentinel2:
		if err := oneOf(ParamProcLevel, level, s2ProcLevels); err != nil {
			return err
		}
		for _, param := range s1OnlyParams {
			if _, ok := params[param]; ok {
				return fmt.Errorf("%s is only supported for Sentinel-1 products", param)
			}
		}
		if v, ok := params[ParamCloudCover]; ok {
			cloud, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s must be an integer: %w", ParamCloudCover, err)
			}
			if cloud < 0 || cloud > 100 {
				return fmt.Errorf("%s must be in [0, 100]", ParamCloudCover)
			}
		}
	default:
		return fmt.Errorf("constellation not supported: %s", area.SceneType.Constellation)
	}
	return nil
}

// footprintTerm returns the spatial term of the query.
// A roi crossing the antimeridian (longitudes beyond 180°) is searched with its bounding box split on both sides.
func footprintTerm(roi geometry.Polygon) string {
	ext := roi.Extent()
	if ext.MaxX() <= 180 {
		return fmt.Sprintf("footprint:\"intersects(%s)\"", roi.WKT())
	}
	box := func(minx, miny, maxx, maxy float64) string {
		return fmt.Sprintf("POLYGON((%[1]g %[2]g,%[3]g %[2]g,%[3]g %[4]g,%[1]g %[4]g,%[1]g %[2]g))", minx, miny, maxx, maxy)
	}
	if ext.MinX() >= 180 {
		return fmt.Sprintf("footprint:\"intersects(%s)\"", box(ext.MinX()-360, ext.MinY(), ext.MaxX()-360, ext.MaxY()))
	}
	west := box(ext.MinX(), ext.MinY(), 180, ext.MaxY())
	east := box(-180, ext.MinY(), ext.MaxX()-360, ext.MaxY())
	return fmt.Sprintf("(footprint:\"intersects(%s)\" OR footprint:\"intersects(%s)\")", west, east)
}

func term(field, value string) string {
	if strings.Contains(value, " ") {
		value = "\"" + value + "\""
	}
	return field + ":" + value
}

// BuildQuery returns the full-text query of the area.
// The sensing start is searched from the start day (00:00) to the day after the end day (or the start day if undefined).
func BuildQuery(area *entities.AreaToSearch, roi geometry.Polygon) (string, error) {
	if err := ValidateParameters(area); err != nil {
		return "", fmt.Errorf("BuildQuery.%w", err)
	}
	if roi.IsZero() {
		return "", fmt.Errorf("BuildQuery: %w", geometry.ErrInvalidGeometry{Reason: "empty region of interest"})
	}
	platform := common.GetPlatformFromString(area.SceneType.Constellation)
	params := area.SceneType.Parameters

	end := area.EndTime
	if end.IsZero() {
		end = area.StartTime
	}
	startDate := area.StartTime.UTC().Format("2006-01-02") + "T00:00:00.000Z"
	endDate := end.UTC().AddDate(0, 0, 1).Format("2006-01-02") + "T00:00:00.000Z"
	terms := []string{
		"platformname:" + platform.PlatformName(),
		fmt.Sprintf("beginposition:[%s TO %s]", startDate, endDate),
		footprintTerm(roi),
	}

	level := ProcLevel(area)
	switch platform {
	case common.Sentinel1:
		for _, param := range []string{ParamProductType, ParamMode, ParamPolarisation, ParamResolution} {
			if v, ok := params[param]; ok {
				terms = append(terms, term(param, strings.ToUpper(v)))
			}
		}
		if level != "" && level != LevelAll {
			// Level shorthand of the full-text search
			terms = append(terms, level)
		}
	case common.Sentinel2:
		if v, ok := params[ParamCloudCover]; ok {
			terms = append(terms, fmt.Sprintf("%s:[0 TO %s]", ParamCloudCover, v))
		}
		switch level {
		case "L1C":
			terms = append(terms, term(ParamProductType, "S2MSI1C"))
		case "L2A":
			terms = append(terms, term(ParamProductType, "S2MSI2A"))
		}
	}
	return strings.Join(terms, " AND "), nil
}
