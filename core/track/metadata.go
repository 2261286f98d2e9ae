package track

import (
	"encoding/json"
	"strconv"
	"strings"

	"mixflow/core/apperr"
	"mixflow/core/upload"
)

const (
	minBPM = 60
	maxBPM = 300
)

// Metadata is the validated descriptive part of an upload.
type Metadata struct {
	Title        string
	Description  *string
	Genre        string
	SubGenre     *string
	BPM          *int
	KeySignature *string
	IsExplicit   bool
	IsPublic     bool
	Tags         []string
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func parseBool(s string, fallback bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return fallback, nil
	case "true", "1", "on", "yes":
		return true, nil
	case "false", "0", "off", "no":
		return false, nil
	}
	return false, apperr.Validation("Invalid boolean value " + strconv.Quote(s))
}

// ParseTags accepts repeated values, a JSON array or a comma separated
// string. Blank entries are dropped.
func ParseTags(values []string) []string {
	var raw []string
	if len(values) == 1 {
		v := strings.TrimSpace(values[0])
		var arr []string
		if strings.HasPrefix(v, "[") && json.Unmarshal([]byte(v), &arr) == nil {
			raw = arr
		} else {
			raw = strings.Split(v, ",")
		}
	} else {
		raw = values
	}
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// ParseMetadata validates the text fields of an upload.
func ParseMetadata(res *upload.Result) (Metadata, error) {
	m := Metadata{
		Title:        strings.TrimSpace(res.Value("title")),
		Description:  optional(res.Value("description")),
		Genre:        strings.TrimSpace(res.Value("genre")),
		SubGenre:     optional(res.Value("subGenre")),
		KeySignature: optional(res.Value("keySignature")),
		Tags:         ParseTags(res.Values["tags"]),
	}
	if m.Title == "" {
		return Metadata{}, apperr.Validation("Title is required")
	}
	if len([]rune(m.Title)) > 255 {
		return Metadata{}, apperr.Validation("Title must be at most 255 characters")
	}
	if m.Genre == "" {
		return Metadata{}, apperr.Validation("Genre is required")
	}
	if raw := strings.TrimSpace(res.Value("bpm")); raw != "" {
		bpm, err := strconv.Atoi(raw)
		if err != nil || bpm < minBPM || bpm > maxBPM {
			return Metadata{}, apperr.Validation("BPM must be a number between 60 and 300")
		}
		m.BPM = &bpm
	}
	if m.KeySignature != nil && len(*m.KeySignature) > 10 {
		return Metadata{}, apperr.Validation("Key signature must be at most 10 characters")
	}

	var err error
	if m.IsExplicit, err = parseBool(res.Value("isExplicit"), false); err != nil {
		return Metadata{}, err
	}
	if m.IsPublic, err = parseBool(res.Value("isPublic"), true); err != nil {
		return Metadata{}, err
	}
	return m, nil
}
