package geo

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

const wgs84GeogCS = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

var utmZonePattern = regexp.MustCompile(`(?i)UTM[ _]zone[ _](\d{1,2})([NS])`)

// PRJ returns the ESRI WKT written to a shapefile .prj sidecar for epsg.
func PRJ(epsg int) (string, error) {
	switch {
	case epsg == WGS84:
		return wgs84GeogCS, nil
	case epsg == WebMercator:
		return `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",` + wgs84GeogCS +
			`,PROJECTION["Mercator_Auxiliary_Sphere"],PARAMETER["False_Easting",0.0],PARAMETER["False_Northing",0.0],` +
			`PARAMETER["Central_Meridian",0.0],PARAMETER["Standard_Parallel_1",0.0],PARAMETER["Auxiliary_Sphere_Type",0.0],UNIT["Meter",1.0]]`, nil
	case epsg > utmNorthBase && epsg <= utmNorthBase+60, epsg > utmSouthBase && epsg <= utmSouthBase+60:
		zone, hemi, northing := epsg-utmNorthBase, "N", 0
		if epsg > utmSouthBase {
			zone, hemi, northing = epsg-utmSouthBase, "S", 10000000
		}
		return fmt.Sprintf(`PROJCS["WGS_1984_UTM_Zone_%d%s",%s,PROJECTION["Transverse_Mercator"],`+
			`PARAMETER["False_Easting",500000.0],PARAMETER["False_Northing",%d.0],PARAMETER["Central_Meridian",%d.0],`+
			`PARAMETER["Scale_Factor",0.9996],PARAMETER["Latitude_Of_Origin",0.0],UNIT["Meter",1.0]]`,
			zone, hemi, wgs84GeogCS, northing, zone*6-183), nil
	}
	return "", eris.Wrapf(ErrUnsupportedEPSG, "geo: no .prj for EPSG:%d", epsg)
}

// EPSGFromPRJ recognises the WKT flavours PRJ writes, plus the OGC spellings
// GDAL emits for the same systems.
func EPSGFromPRJ(wkt string) (int, error) {
	wkt = strings.TrimSpace(wkt)
	if m := utmZonePattern.FindStringSubmatch(wkt); m != nil {
		zone, _ := strconv.Atoi(m[1])
		if zone >= 1 && zone <= 60 {
			if strings.EqualFold(m[2], "S") {
				return utmSouthBase + zone, nil
			}
			return utmNorthBase + zone, nil
		}
	}
	upper := strings.ToUpper(wkt)
	switch {
	case strings.Contains(upper, "WEB_MERCATOR"), strings.Contains(upper, "PSEUDO-MERCATOR"), strings.Contains(upper, "PSEUDO_MERCATOR"):
		return WebMercator, nil
	case strings.HasPrefix(upper, "GEOGCS[") && strings.Contains(upper, "WGS") && strings.Contains(upper, "84"):
		return WGS84, nil
	}
	return 0, eris.Wrap(ErrUnsupportedEPSG, "geo: unrecognised .prj")
}
