package environment

// Heavy rain starts at this daily amount.
const HeavyRainMM = 50.0

var rainCodes = map[int]bool{51: true, 53: true, 55: true, 61: true, 63: true, 65: true, 80: true, 81: true, 82: true}

// IsRainCode reports whether a WMO weather code denotes rain or showers.
func IsRainCode(code int) bool { return rainCodes[code] }

// AlertFor derives an alert from a WMO weather code and rainfall amount.
func AlertFor(code int, rainfallMM float64) string {
	switch {
	case code >= 95:
		return "Thunderstorm warning: heavy rain expected"
	case code == 65 || code == 82 || rainfallMM >= HeavyRainMM:
		return "Heavy rain alert"
	case IsRainCode(code) || rainfallMM >= 10:
		return "Rain expected"
	default:
		return ""
	}
}
