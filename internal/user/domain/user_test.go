package domain

import (
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	wat := time.FixedZone("WAT", 3600)
	u := &User{
		Email:     "  Ada@Example.COM ",
		Username:  " AdaL ",
		CreatedAt: time.Date(2026, 1, 1, 13, 0, 0, 0, wat),
		OTP:       OTPState{Hash: "h", ExpiresAt: time.Date(2026, 1, 1, 13, 10, 0, 0, wat)},
	}
	u.Normalize()
	if u.Email != "ada@example.com" {
		t.Errorf("Email = %q", u.Email)
	}
	if u.Username != "adal" {
		t.Errorf("Username = %q", u.Username)
	}
	if u.CreatedAt.Location() != time.UTC || u.CreatedAt.Hour() != 12 {
		t.Errorf("CreatedAt = %v", u.CreatedAt)
	}
	if u.OTP.ExpiresAt.Location() != time.UTC {
		t.Errorf("OTP.ExpiresAt not UTC")
	}
	if !u.UpdatedAt.IsZero() {
		t.Errorf("zero UpdatedAt should stay zero")
	}
}

func TestValidate(t *testing.T) {
	valid := User{ID: "1", Email: "a@x.com", Username: "a", PasswordHash: "h"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	tests := []struct {
		name   string
		mutate func(*User)
	}{
		{"missing id", func(u *User) { u.ID = "" }},
		{"missing email", func(u *User) { u.Email = "" }},
		{"missing username", func(u *User) { u.Username = "" }},
		{"missing hash", func(u *User) { u.PasswordHash = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := valid
			tt.mutate(&u)
			if u.Validate() == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestOTPState(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	o := OTPState{Hash: "h", ExpiresAt: now}
	if !o.Active() {
		t.Error("Active = false")
	}
	if o.Expired(now) {
		t.Error("OTP must still be valid exactly at its expiry instant")
	}
	if !o.Expired(now.Add(time.Nanosecond)) {
		t.Error("Expired = false after expiry")
	}
	if (OTPState{}).Active() {
		t.Error("zero OTPState should be inactive")
	}
}

func TestFullName(t *testing.T) {
	if got := (&User{FirstName: "Ada", LastName: "Lovelace"}).FullName(); got != "Ada Lovelace" {
		t.Errorf("FullName = %q", got)
	}
	if got := (&User{Username: "ada"}).FullName(); got != "ada" {
		t.Errorf("FullName fallback = %q", got)
	}
}
