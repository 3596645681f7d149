package pipeline

import (
	"encoding/json"
	"log/slog"
	"strings"
	"unicode"
)

// Persona is one parsed record from a content generation response.
type Persona struct {
	Firstname string
	Lastname  string
	Gender    string

	BioFacebook  string
	BioInstagram string
	BioX         string
	BioTiktok    string

	JobTitle         string
	Workplace        string
	EduEstablishment string
	EduStudy         string
	CurrentCity      string
	CurrentState     string
	PrevCity         string
	PrevState        string
	About            string
	Ethnicity        string
	Age              *int64
}

type rawPersona struct {
	Firstname *string `json:"firstname"`
	Lastname  *string `json:"lastname"`
	Gender    *string `json:"gender"`
	Bios      *string `json:"bios"`

	JobTitle         string `json:"job_title"`
	Workplace        string `json:"workplace"`
	EduEstablishment string `json:"edu_establishment"`
	EduStudy         string `json:"edu_study"`
	CurrentCity      string `json:"current_city"`
	CurrentState     string `json:"current_state"`
	PrevCity         string `json:"prev_city"`
	PrevState        string `json:"prev_state"`
	About            string `json:"about"`
	Ethnicity        string `json:"ethnicity"`
	Age              *int64 `json:"age"`
}

type rawBios struct {
	Facebook  string `json:"facebook_bio"`
	Instagram string `json:"instagram_bio"`
	X         string `json:"x_bio"`
	Tiktok    string `json:"tiktok_bio"`
}

// ParsePersonas extracts persona records from a response blob containing
// concatenated JSON objects. The blob is not a JSON document: objects are
// separated by arbitrary whitespace, so a brace-matching scan that is aware
// of string literals and escape sequences is used to find object boundaries.
// Bio text routinely contains emojis, quotes and literal braces; those must
// survive verbatim.
//
// Objects that fail to decode or lack a required key are skipped, never
// aborting the scan. A bios payload that is not valid JSON degrades to empty
// bios rather than dropping the record.
func ParsePersonas(text, taskToken string, batch int) []Persona {
	var personas []Persona

	text = strings.TrimSpace(text)

	i := 0
	objNum := 0

	for i < len(text) {
		for i < len(text) && unicode.IsSpace(rune(text[i])) {
			i++
		}
		if i >= len(text) {
			break
		}

		if text[i] != '{' {
			slog.Warn("unexpected character between persona objects", "task", taskToken, "batch", batch, "position", i, "char", string(text[i]))
			break
		}

		start := i
		depth := 0
		inString := false
		escaped := false
		matched := false

		for i < len(text) && !matched {
			char := text[i]

			switch {
			case escaped:
				escaped = false
			case char == '\\':
				escaped = true
			case char == '"':
				inString = !inString
			case !inString && char == '{':
				depth++
			case !inString && char == '}':
				depth--
				if depth == 0 {
					objNum++
					if persona, ok := decodePersona(text[start:i+1], taskToken, batch, objNum); ok {
						personas = append(personas, persona)
					}
					matched = true
				}
			}

			i++
		}
	}

	slog.Info("parsed personas from response", "task", taskToken, "batch", batch, "count", len(personas))
	return personas
}

func decodePersona(raw, taskToken string, batch, objNum int) (Persona, bool) {
	var data rawPersona
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		slog.Warn("skipping unparseable persona object", "task", taskToken, "batch", batch, "object", objNum, "error", err)
		return Persona{}, false
	}

	if data.Firstname == nil || data.Lastname == nil || data.Gender == nil || data.Bios == nil {
		slog.Warn("skipping persona object with missing required fields", "task", taskToken, "batch", batch, "object", objNum)
		return Persona{}, false
	}

	// The bios value is itself a JSON-encoded string. A malformed payload
	// here keeps the record with empty bios.
	var bios rawBios
	if err := json.Unmarshal([]byte(*data.Bios), &bios); err != nil {
		slog.Warn("failed to decode bios payload, keeping persona with empty bios", "task", taskToken, "batch", batch, "object", objNum, "error", err)
		bios = rawBios{}
	}

	return Persona{
		Firstname:        *data.Firstname,
		Lastname:         *data.Lastname,
		Gender:           *data.Gender,
		BioFacebook:      bios.Facebook,
		BioInstagram:     bios.Instagram,
		BioX:             bios.X,
		BioTiktok:        bios.Tiktok,
		JobTitle:         data.JobTitle,
		Workplace:        data.Workplace,
		EduEstablishment: data.EduEstablishment,
		EduStudy:         data.EduStudy,
		CurrentCity:      data.CurrentCity,
		CurrentState:     data.CurrentState,
		PrevCity:         data.PrevCity,
		PrevState:        data.PrevState,
		About:            data.About,
		Ethnicity:        data.Ethnicity,
		Age:              data.Age,
	}, true
}
