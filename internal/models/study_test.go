package models

import (
	"errors"
	"reflect"
	"testing"
)

func fullStudy() Study {
	return Study{
		ID:                 "s1",
		Description:        "checkout redesign",
		StudyType:          string(StudyTypeExploratory),
		Objective:          "understand drop-off",
		TargetAudience:     "new shoppers",
		InterviewQuestions: "1. Why?",
	}
}

func TestMissingFields_CanonicalOrderForEveryPermutation(t *testing.T) {
	// Every subset of the five fields, encoded as a bitmask of empty fields.
	for mask := 0; mask < 1<<len(FieldOrder); mask++ {
		s := fullStudy()
		var want []FieldName
		for i, f := range FieldOrder {
			if mask&(1<<i) != 0 {
				if err := s.SetField(f, "   "); err != nil {
					t.Fatalf("SetField(%s): %v", f, err)
				}
				want = append(want, f)
			}
		}
		got := MissingFields(s)
		if len(want) == 0 {
			if len(got) != 0 {
				t.Errorf("mask %05b: expected no missing fields, got %v", mask, got)
			}
		} else if !reflect.DeepEqual(got, want) {
			t.Errorf("mask %05b: expected %v, got %v", mask, want, got)
		}

		next, ok := NextField(s)
		if ok != (len(want) > 0) {
			t.Errorf("mask %05b: NextField ok=%v but %d fields missing", mask, ok, len(want))
		}
		if ok && next != want[0] {
			t.Errorf("mask %05b: expected next %s, got %s", mask, want[0], next)
		}

		state := DeriveSetupState(s)
		if state.AllFilled() != (len(want) == 0) {
			t.Errorf("mask %05b: AllFilled=%v with missing %v", mask, state.AllFilled(), want)
		}
	}
}

func TestIsFilled(t *testing.T) {
	cases := map[string]bool{
		"":         false,
		"   ":      false,
		"\n\t":     false,
		"x":        true,
		"  text  ": true,
	}
	for in, want := range cases {
		if got := IsFilled(FieldObjective, in); got != want {
			t.Errorf("IsFilled(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupState_MissingField(t *testing.T) {
	s := fullStudy()
	s.Objective = ""
	s.TargetAudience = ""
	field, ok := DeriveSetupState(s).MissingField()
	if !ok || field != FieldObjective {
		t.Fatalf("expected objective missing, got %q ok=%v", field, ok)
	}
	if DeriveSetupState(s).String() != "missing:objective" {
		t.Errorf("unexpected state string %q", DeriveSetupState(s).String())
	}
}

func TestNormalizeFieldValue(t *testing.T) {
	v, err := NormalizeFieldValue(FieldStudyType, " behavioral ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != string(StudyTypeBehavioral) {
		t.Errorf("expected canonical Behavioral, got %q", v)
	}

	if _, err := NormalizeFieldValue(FieldStudyType, "Qualitative"); !errors.Is(err, ErrInvalidStudyType) {
		t.Errorf("expected ErrInvalidStudyType, got %v", err)
	}
	if _, err := NormalizeFieldValue("budget", "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
	if v, _ := NormalizeFieldValue(FieldObjective, "  keep spacing "); v != "  keep spacing " {
		t.Errorf("free text fields must be stored verbatim, got %q", v)
	}
}

func TestStudy_SetFieldUnknown(t *testing.T) {
	var s Study
	if err := s.SetField("title", "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}
