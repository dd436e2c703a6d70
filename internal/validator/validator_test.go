package validator

import (
	"errors"
	"testing"
)

type answerPayload struct {
	QuestionID     uint    `validate:"required"`
	SelectedOption *string `validate:"omitempty,option_key"`
	Violation      string  `validate:"omitempty,violation_type"`
}

func strPtr(s string) *string { return &s }

func TestValidate(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		payload answerPayload
		wantErr bool
	}{
		{name: "valid", payload: answerPayload{QuestionID: 1, SelectedOption: strPtr("B")}},
		{name: "missing question id", payload: answerPayload{SelectedOption: strPtr("A")}, wantErr: true},
		{name: "option out of range", payload: answerPayload{QuestionID: 1, SelectedOption: strPtr("E")}, wantErr: true},
		{name: "lowercase option rejected", payload: answerPayload{QuestionID: 1, SelectedOption: strPtr("a")}, wantErr: true},
		{name: "nil option allowed", payload: answerPayload{QuestionID: 1}},
		{name: "known violation type", payload: answerPayload{QuestionID: 1, Violation: "tab_switch"}},
		{name: "unknown violation type", payload: answerPayload{QuestionID: 1, Violation: "mind_reading"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.payload)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReturnsTypedErrors(t *testing.T) {
	v := New()

	err := v.Validate(&answerPayload{})
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("err = %T, want ValidationErrors", err)
	}
	if len(verrs) != 1 {
		t.Fatalf("errors = %v, want one entry", verrs)
	}
	if verrs[0].Field != "questionid" || verrs[0].Rule != "required" {
		t.Errorf("entry = %+v, want required questionid", verrs[0])
	}
}
