package nmea

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseLatitude converts ddmm.mmmm plus N/S into signed decimal degrees.
func ParseLatitude(value, hemi string) (float64, error) {
	return parseCoord(value, hemi, 2, "N", "S")
}

// ParseLongitude converts dddmm.mmmm plus E/W into signed decimal degrees.
func ParseLongitude(value, hemi string) (float64, error) {
	return parseCoord(value, hemi, 3, "E", "W")
}

func parseCoord(value, hemi string, degDigits int, pos, neg string) (float64, error) {
	value = strings.TrimSpace(value)
	hemi = strings.ToUpper(strings.TrimSpace(hemi))
	if hemi != pos && hemi != neg {
		return 0, fmt.Errorf("%w: hemisphere %q", ErrFormat, hemi)
	}
	if len(value) <= degDigits {
		return 0, fmt.Errorf("%w: coordinate %q", ErrFormat, value)
	}
	deg, err := strconv.Atoi(value[:degDigits])
	if err != nil {
		return 0, fmt.Errorf("%w: coordinate %q", ErrFormat, value)
	}
	mins, err := strconv.ParseFloat(value[degDigits:], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: coordinate %q", ErrFormat, value)
	}
	dec := float64(deg) + mins/60.0
	if hemi == neg {
		dec = -dec
	}
	return dec, nil
}
