// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package validation

import (
	"strings"
	"testing"
)

type detectionRequest struct {
	Identifier string  `validate:"required,canid"`
	Monitored  string  `validate:"canidlist"`
	Lambda     float64 `validate:"forgetting"`
	Policy     string  `validate:"oneof=same-batch previous-batch adaptive-baseline"`
	Limit      int     `validate:"min=0,max=10000"`
}

func validRequest() detectionRequest {
	return detectionRequest{
		Identifier: "0x011",
		Monitored:  "0x011, 0x022",
		Lambda:     0.9995,
		Policy:     "previous-batch",
		Limit:      100,
	}
}

func TestValidateStruct_Valid(t *testing.T) {
	req := validRequest()
	if err := ValidateStruct(&req); err != nil {
		t.Fatalf("ValidateStruct() = %v, want nil", err)
	}

	req.Monitored = ""
	req.Lambda = 1
	if err := ValidateStruct(&req); err != nil {
		t.Errorf("empty list and lambda=1 should pass: %v", err)
	}
}

func TestValidateStruct_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*detectionRequest)
		field   string
		tag     string
		message string
	}{
		{"missing identifier", func(r *detectionRequest) { r.Identifier = "" }, "Identifier", "required", "Identifier is required"},
		{"bad identifier", func(r *detectionRequest) { r.Identifier = "0xZZ" }, "Identifier", "canid", "CAN identifier"},
		{"identifier too wide", func(r *detectionRequest) { r.Identifier = "0x20000000" }, "Identifier", "canid", "29 bits"},
		{"bad list", func(r *detectionRequest) { r.Monitored = "0x011,nope" }, "Monitored", "canidlist", "comma-separated"},
		{"lambda zero", func(r *detectionRequest) { r.Lambda = 0 }, "Lambda", "forgetting", "(0, 1]"},
		{"lambda above one", func(r *detectionRequest) { r.Lambda = 1.01 }, "Lambda", "forgetting", "(0, 1]"},
		{"unknown policy", func(r *detectionRequest) { r.Policy = "latest" }, "Policy", "oneof", "must be one of"},
		{"limit too large", func(r *detectionRequest) { r.Limit = 20000 }, "Limit", "max", "at most 10000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := ValidateStruct(&req)
			if err == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			errs := err.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), err)
			}
			if errs[0].Field() != tt.field || errs[0].Tag() != tt.tag {
				t.Errorf("error = %s/%s, want %s/%s", errs[0].Field(), errs[0].Tag(), tt.field, tt.tag)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("message %q does not contain %q", err.Error(), tt.message)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	req := validRequest()
	req.Identifier = ""
	err := ValidateStruct(&req)
	api := err.ToAPIError()
	if api.Code != "VALIDATION_ERROR" || api.Details["field"] != "Identifier" {
		t.Errorf("single-field APIError = %+v", api)
	}

	req.Limit = -1
	api = ValidateStruct(&req).ToAPIError()
	fields, ok := api.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Fatalf("multi-field APIError details = %+v", api.Details)
	}
	if !strings.Contains(api.Message, "Identifier: ") || !strings.Contains(api.Message, "Limit: ") {
		t.Errorf("multi-field message = %q", api.Message)
	}

	empty := (&RequestValidationError{}).ToAPIError()
	if empty.Message != "Validation failed" {
		t.Errorf("empty APIError = %+v", empty)
	}
}

func TestParseIdentifier(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"0x011", 0x11, false},
		{"0X7DF", 0x7DF, false},
		{"7df", 0x7DF, false},
		{" 123 ", 0x123, false},
		{"0x1FFFFFFF", 0x1FFFFFFF, false},
		{"0x20000000", 0, true},
		{"", 0, true},
		{"0x", 0, true},
		{"g1", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseIdentifier(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseIdentifier(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseIdentifier(%q) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}

func TestParseIdentifierList(t *testing.T) {
	got, err := ParseIdentifierList("0x011, ,0x022,7DF")
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{0x11, 0x22, 0x7DF}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %#x, want %#x", i, got[i], want[i])
		}
	}

	if ids, err := ParseIdentifierList(""); err != nil || len(ids) != 0 {
		t.Errorf("empty list = %v, %v", ids, err)
	}
	if _, err := ParseIdentifierList("0x011,xyz"); err == nil {
		t.Error("expected error for invalid entry")
	}
}
