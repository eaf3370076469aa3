package engine

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrNoMRZ is returned when no machine readable zone is found in the text
var ErrNoMRZ = errors.New("no machine readable zone found")

// MRZ layouts per ICAO 9303
const (
	td1Width = 30 // ID cards, 3 lines
	td2Width = 36 // older ID cards and visas, 2 lines
	td3Width = 44 // passports, 2 lines
)

// parseMRZ finds and parses a machine readable zone in OCR text. now picks
// the century for two-digit birth years.
func parseMRZ(text string, now time.Time) (MRZ, error) {
	lines := mrzCandidates(text)

	for i := 0; i+2 < len(lines); i++ {
		l1, ok1 := fitWidth(lines[i], td1Width)
		l2, ok2 := fitWidth(lines[i+1], td1Width)
		l3, ok3 := fitWidth(lines[i+2], td1Width)
		if ok1 && ok2 && ok3 {
			return parseTD1(l1, l2, l3, now), nil
		}
	}
	for i := 0; i+1 < len(lines); i++ {
		if l1, ok := fitWidth(lines[i], td3Width); ok {
			if l2, ok := fitWidth(lines[i+1], td3Width); ok {
				return parseTD3(l1, l2, now), nil
			}
		}
		if l1, ok := fitWidth(lines[i], td2Width); ok {
			if l2, ok := fitWidth(lines[i+1], td2Width); ok {
				return parseTD2(l1, l2, now), nil
			}
		}
	}
	return MRZ{}, ErrNoMRZ
}

// mrzCandidates normalizes OCR lines and keeps those that look like MRZ rows
func mrzCandidates(text string) []string {
	var out []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.ToUpper(raw)
		line = strings.NewReplacer(" ", "", "\t", "", "«", "<", "\r", "").Replace(line)
		if len(line) < td1Width-2 || !strings.Contains(line, "<") {
			continue
		}
		valid := true
		for _, c := range line {
			if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') && c != '<' {
				valid = false
				break
			}
		}
		if valid {
			out = append(out, line)
		}
	}
	return out
}

// fitWidth pads lines OCR cut short by up to two filler characters
func fitWidth(line string, width int) (string, bool) {
	if len(line) > width || len(line) < width-2 {
		return "", false
	}
	return line + strings.Repeat("<", width-len(line)), true
}

func parseTD1(l1, l2, l3 string, now time.Time) MRZ {
	m := MRZ{DocumentNumber: field(l1[5:14])}
	docOK := checkDigit(l1[5:14]) == l1[14]
	m.DateOfBirth, m.Verified = birthDate(l2[0:6], l2[6], now)
	m.Verified = m.Verified && docOK
	m.PrimaryID, m.SecondaryID = names(l3)
	return m
}

func parseTD2(l1, l2 string, now time.Time) MRZ {
	m := MRZ{DocumentNumber: field(l2[0:9])}
	docOK := checkDigit(l2[0:9]) == l2[9]
	m.DateOfBirth, m.Verified = birthDate(l2[13:19], l2[19], now)
	m.Verified = m.Verified && docOK
	m.PrimaryID, m.SecondaryID = names(l1[5:])
	return m
}

func parseTD3(l1, l2 string, now time.Time) MRZ {
	m := MRZ{DocumentNumber: field(l2[0:9])}
	docOK := checkDigit(l2[0:9]) == l2[9]
	m.DateOfBirth, m.Verified = birthDate(l2[13:19], l2[19], now)
	m.Verified = m.Verified && docOK
	m.PrimaryID, m.SecondaryID = names(l1[5:])
	return m
}

// names splits "SURNAME<<GIVEN<NAMES" into primary and secondary identifiers
func names(s string) (string, string) {
	primary, secondary, _ := strings.Cut(s, "<<")
	return field(primary), field(secondary)
}

// field turns filler characters into spaces and trims
func field(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool { return r == '<' }), " ")
}

// birthDate decodes YYMMDD. A date failing its check digit is dropped.
func birthDate(s string, check byte, now time.Time) (Date, bool) {
	if checkDigit(s) != check {
		return Date{}, false
	}
	yy, err1 := strconv.Atoi(s[0:2])
	mm, err2 := strconv.Atoi(s[2:4])
	dd, err3 := strconv.Atoi(s[4:6])
	if err1 != nil || err2 != nil || err3 != nil {
		return Date{}, false
	}
	// Birth dates are in the past, so a two-digit year after this year is last century
	year := 2000 + yy
	if year > now.Year() {
		year -= 100
	}
	return cleanDate(Date{Year: year, Month: mm, Day: dd}), true
}

// checkDigit computes the ICAO 9303 check digit with weights 7, 3, 1
func checkDigit(s string) byte {
	weights := [3]int{7, 3, 1}
	sum := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c >= 'A' && c <= 'Z':
			v = int(c-'A') + 10
		default:
			v = 0
		}
		sum += v * weights[i%3]
	}
	return byte('0' + sum%10)
}
