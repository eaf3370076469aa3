package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseFrameJSON parses the JSON reply of a vision model
func parseFrameJSON(text string) (*FrameData, error) {
	text = strings.TrimSpace(text)

	// Remove opening markdown code blocks
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Models sometimes wrap the object in prose; keep the outermost braces
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var data FrameData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.Side = strings.ToLower(strings.TrimSpace(data.Side))
	if data.Side != "front" && data.Side != "back" {
		data.Side = ""
	}
	cleanScript(&data.FirstName)
	cleanScript(&data.LastName)
	cleanScript(&data.FullName)
	data.DocumentNumber = strings.TrimSpace(data.DocumentNumber)
	data.DateOfBirth = cleanDate(data.DateOfBirth)

	data.MRZ.PrimaryID = strings.TrimSpace(data.MRZ.PrimaryID)
	data.MRZ.SecondaryID = strings.TrimSpace(data.MRZ.SecondaryID)
	data.MRZ.DocumentNumber = strings.TrimSpace(data.MRZ.DocumentNumber)
	data.MRZ.DateOfBirth = cleanDate(data.MRZ.DateOfBirth)
	// Values typed by a model are never check-digit verified
	data.MRZ.Verified = false

	return &data, nil
}

func cleanScript(s *ScriptString) {
	s.Latin = strings.TrimSpace(s.Latin)
	s.Cyrillic = strings.TrimSpace(s.Cyrillic)
	s.Arabic = strings.TrimSpace(s.Arabic)
}

// cleanDate drops components that are out of range
func cleanDate(d Date) Date {
	if d.Year < 1000 || d.Year > 9999 {
		d.Year = 0
	}
	if d.Month < 1 || d.Month > 12 {
		d.Month = 0
	}
	if d.Day < 1 || d.Day > 31 {
		d.Day = 0
	}
	return d
}
