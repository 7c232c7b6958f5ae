package indi

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// sexagesimalFormatRE matches the INDI "%<w>.<f>m" number format specifier.
var sexagesimalFormatRE = regexp.MustCompile(`^%(-?\d+)\.(\d+)m$`)

// ParseNumber converts a NumberVector member's wire string to a float64.
// It accepts plain decimal and scientific notation (anything strconv's
// ParseFloat accepts) as well as the INDI sexagesimal forms "D:M",
// "D:M:S" and "D:M:S.s".
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &NumberFormatError{Input: s, Cause: fmt.Errorf("empty value")}
	}

	if strings.Contains(s, ":") {
		v, err := parseSexagesimal(s)
		if err != nil {
			return 0, &NumberFormatError{Input: s, Cause: err}
		}
		return v, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &NumberFormatError{Input: s, Cause: err}
	}
	return v, nil
}

func parseSexagesimal(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) == 0 || len(parts) > 3 {
		return 0, fmt.Errorf("malformed sexagesimal value")
	}

	first := parts[0]
	sign := 1.0
	switch {
	case strings.HasPrefix(first, "-"):
		sign = -1
		first = first[1:]
	case strings.HasPrefix(first, "+"):
		first = first[1:]
	}

	deg, err := strconv.ParseFloat(first, 64)
	if err != nil {
		return 0, fmt.Errorf("degrees component: %w", err)
	}

	val := deg

	if len(parts) > 1 {
		min, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0, fmt.Errorf("minutes component: %w", err)
		}
		val += min / 60
	}

	if len(parts) > 2 {
		sec, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return 0, fmt.Errorf("seconds component: %w", err)
		}
		val += sec / 3600
	}

	return sign * val, nil
}

// FormatNumber renders value for the wire according to a NumberVector
// member's format string: ordinary printf float verbs pass straight
// through to fmt.Sprintf, and the sexagesimal specifier "%<w>.<f>m"
// is computed from f (f in {3,5,6,8,9} selects :mm, :mm.m, :mm:ss,
// :mm:ss.s, :mm:ss.ss).
func FormatNumber(value float64, format string) (string, error) {
	if format == "" {
		return fmt.Sprintf("%g", value), nil
	}

	if m := sexagesimalFormatRE.FindStringSubmatch(format); m != nil {
		width, err := strconv.Atoi(m[1])
		if err != nil {
			return "", &NumberFormatError{Input: format, Cause: err}
		}
		frac, err := strconv.Atoi(m[2])
		if err != nil {
			return "", &NumberFormatError{Input: format, Cause: err}
		}
		s, err := formatSexagesimal(value, frac)
		if err != nil {
			return "", err
		}
		return padLeft(s, width), nil
	}

	s := fmt.Sprintf(format, value)
	return s, nil
}

func formatSexagesimal(value float64, frac int) (string, error) {
	sign := ""
	abs := value
	if value < 0 {
		sign = "-"
		abs = -value
	}

	deg := math.Floor(abs)
	remMinutes := (abs - deg) * 60

	switch frac {
	case 3: // D:MM
		min := math.Round(remMinutes)
		if min >= 60 {
			min = 0
			deg++
		}
		return fmt.Sprintf("%s%d:%02d", sign, int64(deg), int64(min)), nil

	case 5: // D:MM.M
		minInt := math.Floor(remMinutes)
		minFrac := math.Round((remMinutes - minInt) * 10)
		if minFrac >= 10 {
			minFrac = 0
			minInt++
		}
		if minInt >= 60 {
			minInt = 0
			deg++
		}
		return fmt.Sprintf("%s%d:%02d.%01d", sign, int64(deg), int64(minInt), int64(minFrac)), nil

	case 6, 8, 9: // D:MM:SS[.s[s]]
		minInt := math.Floor(remMinutes)
		remSeconds := (remMinutes - minInt) * 60

		switch frac {
		case 6:
			sec := math.Round(remSeconds)
			if sec >= 60 {
				sec = 0
				minInt++
			}
			if minInt >= 60 {
				minInt = 0
				deg++
			}
			return fmt.Sprintf("%s%d:%02d:%02d", sign, int64(deg), int64(minInt), int64(sec)), nil
		case 8:
			sec := math.Round(remSeconds*10) / 10
			if sec >= 60 {
				sec -= 60
				minInt++
			}
			if minInt >= 60 {
				minInt = 0
				deg++
			}
			return fmt.Sprintf("%s%d:%02d:%04.1f", sign, int64(deg), int64(minInt), sec), nil
		default: // 9
			sec := math.Round(remSeconds*100) / 100
			if sec >= 60 {
				sec -= 60
				minInt++
			}
			if minInt >= 60 {
				minInt = 0
				deg++
			}
			return fmt.Sprintf("%s%d:%02d:%05.2f", sign, int64(deg), int64(minInt), sec), nil
		}

	default:
		return "", &NumberFormatError{Input: fmt.Sprintf("%%*.%dm", frac), Cause: fmt.Errorf("unsupported sexagesimal precision %d", frac)}
	}
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}
