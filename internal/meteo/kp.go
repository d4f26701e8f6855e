package meteo

import (
	"bufio"
	"strconv"
	"strings"

	"meteo-station/internal/mailbox"
)

const (
	kpHeader = "NOAA Kp index forecast"
	kpRows   = 8
)

// ParseKp reads the eight three-hour rows of the SWPC 3-day forecast table
// and keeps the largest value per day column. Annotations such as "(G1)" are
// skipped. A table with fewer rows is rejected as a whole.
func ParseKp(text string) (mailbox.GeomagneticForecast, bool) {
	var g mailbox.GeomagneticForecast

	i := strings.Index(text, kpHeader)
	if i < 0 {
		return g, false
	}

	sc := bufio.NewScanner(strings.NewReader(text[i:]))
	sc.Scan() // header line
	sc.Scan() // day column titles

	rows := 0
	for rows < kpRows && sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if !strings.HasSuffix(fields[0], "UT") {
			break
		}

		col := 0
		for _, f := range fields[1:] {
			if col == len(g.Kp) {
				break
			}
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				continue
			}
			g.Kp[col] = max(g.Kp[col], v)
			col++
		}
		if col != len(g.Kp) {
			return mailbox.GeomagneticForecast{}, false
		}
		rows++
	}
	if rows != kpRows {
		return mailbox.GeomagneticForecast{}, false
	}
	return g, true
}
