package validate

import "testing"

func validRegistration() Registration {
	return Registration{
		FirstName: "Mary Ann",
		LastName:  "Smith",
		Email:     "mary-smith@example.com",
		Username:  "mary.smith_1",
		Password:  "Whiskers#2024",
		Repeat:    "Whiskers#2024",
	}
}

func TestCheckRegistrationAcceptsValidForm(t *testing.T) {
	if err := CheckRegistration(validRegistration()); err != nil {
		t.Fatalf("expected valid registration, got %v", err)
	}
}

func TestCheckRegistrationRuleOrder(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Registration)
		field   string
		message string
	}{
		{
			name:    "blank field wins over mismatch",
			mutate:  func(r *Registration) { r.FirstName = "   "; r.Repeat = "other" },
			field:   FieldForm,
			message: MsgEmptyFields,
		},
		{
			name:    "mismatch before name check",
			mutate:  func(r *Registration) { r.Repeat = "Whiskers#2025"; r.LastName = "Sm1th" },
			field:   FieldRepeat,
			message: MsgPasswordMismatch,
		},
		{
			name:    "digits in name",
			mutate:  func(r *Registration) { r.LastName = "Sm1th" },
			field:   FieldLastName,
			message: MsgNameLetters,
		},
		{
			name:    "weak password",
			mutate:  func(r *Registration) { r.Password = "whiskers"; r.Repeat = "whiskers" },
			field:   FieldPassword,
			message: MsgPasswordPolicy,
		},
		{
			name:    "short username",
			mutate:  func(r *Registration) { r.Username = "ab" },
			field:   FieldUsername,
			message: MsgUsernamePolicy,
		},
		{
			name:    "bad email",
			mutate:  func(r *Registration) { r.Email = "not-an-email" },
			field:   FieldEmail,
			message: MsgEmailFormat,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := validRegistration()
			tc.mutate(&r)
			err := CheckRegistration(r)
			if err == nil {
				t.Fatal("expected violation")
			}
			if err.Field != tc.field || err.Message != tc.message {
				t.Fatalf("got %s/%q want %s/%q", err.Field, err.Message, tc.field, tc.message)
			}
		})
	}
}

func TestPasswordPolicy(t *testing.T) {
	cases := map[string]bool{
		"Whiskers#2024":   true,
		"Ab1!abcd":        true,
		"Ab1!abc":         false,
		"whiskers#2024":   false,
		"WHISKERS#2024":   false,
		"Whiskers#abcd":   false,
		"Whiskers2024":    false,
		"Whisk rs#2024":   false,
		"Whiskers\t#2024": false,
		"Éclair#2024":     false,
		"WHISKERSé#2024":  false,
		"Whiskers2024中":   false,
		"Whiskers2024€":   false,
		"Whiskers2024~":   true,
		"Whiskers2024\"":  true,
	}
	for pw, ok := range cases {
		if got := Password(pw) == nil; got != ok {
			t.Fatalf("Password(%q) ok=%v want %v", pw, got, ok)
		}
	}
}

func TestUsernamePolicy(t *testing.T) {
	cases := map[string]bool{
		"alice1":                          true,
		"a.b-c_d":                         true,
		"ab":                              false,
		"1alice":                          false,
		"alice@home":                      false,
		"alice smith":                     false,
		"alice!x":                         false,
		"abcdefghijabcdefghijabcdefghij":  true,
		"abcdefghijabcdefghijabcdefghijk": false,
	}
	for name, ok := range cases {
		if got := Username(name) == nil; got != ok {
			t.Fatalf("Username(%q) ok=%v want %v", name, got, ok)
		}
	}
}

func TestEmailPattern(t *testing.T) {
	cases := map[string]bool{
		"cat@feed.org":      true,
		"cat-lover@mail.ae": true,
		"cat.lover@mail.ae": false,
		"catfeed.org":       false,
		"cat@ab":            false,
	}
	for email, ok := range cases {
		if got := Email(email) == nil; got != ok {
			t.Fatalf("Email(%q) ok=%v want %v", email, got, ok)
		}
	}
}

func TestNormalizeTrims(t *testing.T) {
	r := Registration{FirstName: " Mary ", Username: " mary_01 ", Password: " keep "}.Normalize()
	if r.FirstName != "Mary" || r.Username != "mary_01" {
		t.Fatalf("unexpected normalized form %+v", r)
	}
	if r.Password != " keep " {
		t.Fatalf("password must not be trimmed, got %q", r.Password)
	}
}

func TestCheckRegistrationReportsFormFieldNames(t *testing.T) {
	r := validRegistration()
	r.Email = "cat.lover@mail.ae"
	r.Username = "1cat_lover"

	err := CheckRegistration(r)
	if err == nil || err.Field != FieldUsername {
		t.Fatalf("expected username to be reported before email, got %v", err)
	}
}

func TestBlankTreatsWhitespaceAsEmpty(t *testing.T) {
	if !Blank("cat", " \t ") {
		t.Fatal("expected whitespace-only value to be blank")
	}
	if Blank("cat", "feed") {
		t.Fatal("expected filled values not to be blank")
	}
}

func TestPasswordsMatch(t *testing.T) {
	if err := PasswordsMatch("Whiskers#2024", "Whiskers#2024"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	err := PasswordsMatch("Whiskers#2024", "whiskers#2024")
	if err == nil || err.Field != FieldRepeat || err.Message != MsgPasswordMismatch {
		t.Fatalf("expected repeat mismatch, got %v", err)
	}
}

func TestNameRule(t *testing.T) {
	cases := map[string]bool{
		"Mary Ann": true,
		"Smith":    true,
		"Sm1th":    false,
		"Zoë":      false,
		"O'Brien":  false,
	}
	for name, ok := range cases {
		if got := Name(FieldFirstName, name) == nil; got != ok {
			t.Fatalf("Name(%q) ok=%v want %v", name, got, ok)
		}
	}
}
