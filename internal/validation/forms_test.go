package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateCatchForm(t *testing.T) {
	tests := []struct {
		name    string
		form    CatchForm
		wantErr bool
		wantMsg string
	}{
		{"minimal", CatchForm{Species: "Tilápia"}, false, ""},
		{"full", CatchForm{Species: "Robalo", Weight: "2,5", Length: "48", Bait: "camarão", Notes: "maré alta", IsPublic: true}, false, ""},
		{"blank species", CatchForm{Species: "   "}, true, "species is required"},
		{"species too long", CatchForm{Species: strings.Repeat("a", 101)}, true, "species must be at most 100"},
		{"notes too long", CatchForm{Species: "Robalo", Notes: strings.Repeat("n", 2001)}, true, "notes must be at most 2000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.form
			err := ValidateCatchForm(&f)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateCatchForm() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestValidateCatchForm_TrimsFields(t *testing.T) {
	f := CatchForm{Species: "  Dourado ", Bait: " minhoca "}
	if err := ValidateCatchForm(&f); err != nil {
		t.Fatalf("ValidateCatchForm() error = %v", err)
	}
	if f.Species != "Dourado" || f.Bait != "minhoca" {
		t.Errorf("fields not trimmed: %+v", f)
	}
}

func TestValidateSignUpForm(t *testing.T) {
	tests := []struct {
		name    string
		form    SignUpForm
		wantErr bool
	}{
		{"valid", SignUpForm{Email: "Pescador@Example.com ", Username: "pescador42", Password: "segredo123"}, false},
		{"bad email", SignUpForm{Email: "not-an-email", Username: "pescador", Password: "segredo123"}, true},
		{"short username", SignUpForm{Email: "a@b.com", Username: "ab", Password: "segredo123"}, true},
		{"username with space", SignUpForm{Email: "a@b.com", Username: "joao silva", Password: "segredo123"}, true},
		{"short password", SignUpForm{Email: "a@b.com", Username: "pescador", Password: "123"}, true},
		{"password over bcrypt limit", SignUpForm{Email: "a@b.com", Username: "pescador", Password: strings.Repeat("x", 73)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.form
			err := ValidateSignUpForm(&f)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSignUpForm() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestValidateSignUpForm_NormalizesEmail(t *testing.T) {
	f := SignUpForm{Email: "  Pescador@Example.COM ", Username: "pescador", Password: "segredo123"}
	if err := ValidateSignUpForm(&f); err != nil {
		t.Fatalf("ValidateSignUpForm() error = %v", err)
	}
	if f.Email != "pescador@example.com" {
		t.Errorf("Email = %q, want pescador@example.com", f.Email)
	}
}
