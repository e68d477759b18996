package app

import (
	"strings"
	"unicode/utf8"

	"mcq-exam-service/internal/domain"
)

type fieldRule struct {
	name     string
	value    string
	required bool
	max      int
}

func validateStart(req StartRequest) error {
	fields := map[string]string{}
	if req.ExamID <= 0 {
		fields["exam_id"] = "is required"
	}
	id := req.Identity
	rules := []fieldRule{
		{name: "full_name", value: id.FullName, required: true, max: 255},
		{name: "phone", value: id.Phone, required: true, max: 20},
		{name: "group", value: id.Group, max: 100},
		{name: "hsc_roll", value: id.HSCRoll, max: 50},
		{name: "hsc_passing_year", value: id.HSCPassingYear, max: 10},
		{name: "board", value: id.Board, max: 100},
		{name: "college", value: id.College, max: 255},
	}
	for _, r := range rules {
		switch {
		case r.required && strings.TrimSpace(r.value) == "":
			fields[r.name] = "is required"
		case utf8.RuneCountInString(r.value) > r.max:
			fields[r.name] = "is too long"
		}
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

func validateAnswer(questionID, optionID int64) error {
	fields := map[string]string{}
	if questionID <= 0 {
		fields["question_id"] = "is required"
	}
	if optionID <= 0 {
		fields["option_id"] = "is required"
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

func normalizeIdentity(id domain.Identity) domain.Identity {
	id.FullName = strings.TrimSpace(id.FullName)
	id.Phone = strings.TrimSpace(id.Phone)
	id.Group = strings.TrimSpace(id.Group)
	id.HSCRoll = strings.TrimSpace(id.HSCRoll)
	id.HSCPassingYear = strings.TrimSpace(id.HSCPassingYear)
	id.Board = strings.TrimSpace(id.Board)
	id.College = strings.TrimSpace(id.College)
	return id
}
