package listing

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestAddPhotoCap(t *testing.T) {
	d := New(Classifieds, 1, 1)
	for i, ref := range []string{"a", "b", "c"} {
		full, err := d.AddPhoto(ref)
		if err != nil {
			t.Fatalf("AddPhoto(%s) error = %v", ref, err)
		}
		if wantFull := i == 2; full != wantFull {
			t.Errorf("after %d photos full = %v, want %v", i+1, full, wantFull)
		}
	}
	if _, err := d.AddPhoto("d"); !errors.Is(err, ErrPhotoLimit) {
		t.Errorf("fourth AddPhoto error = %v, want ErrPhotoLimit", err)
	}
	if len(d.Photos) != MaxPhotos {
		t.Errorf("photos = %d, want %d", len(d.Photos), MaxPhotos)
	}
}

func TestValidateClassifieds(t *testing.T) {
	d := New(Classifieds, 1, 1)
	d.Category = Sell
	d.Contact = Contact{Mode: ByPhone, Value: "8 913 123 45 67"}
	if err := d.Validate(); !errors.Is(err, ErrEmptyListing) {
		t.Fatalf("contact-only draft error = %v, want ErrEmptyListing", err)
	}

	d.Body = "   "
	if err := d.Validate(); !errors.Is(err, ErrEmptyListing) {
		t.Fatalf("blank body error = %v, want ErrEmptyListing", err)
	}

	d.Photos = []string{"p1"}
	if err := d.Validate(); err != nil {
		t.Errorf("photo-only draft error = %v, want nil", err)
	}

	d.Photos = nil
	d.Body = "bike"
	if err := d.Validate(); err != nil {
		t.Errorf("text-only draft error = %v, want nil", err)
	}
}

func TestValidateRejectsForeignCategory(t *testing.T) {
	d := New(Classifieds, 1, 1)
	d.Category = Driver
	d.Body = "x"
	if err := d.Validate(); !errors.Is(err, ErrIncomplete) {
		t.Errorf("error = %v, want ErrIncomplete", err)
	}
}

func TestValidateRides(t *testing.T) {
	complete := func() *Draft {
		d := New(Rides, 1, 1)
		d.Category = Driver
		d.Route = Route{Origin: "Asino", Destination: "Tomsk"}
		d.Date = "2024-06-10"
		d.Time = "07:00 - 08:00"
		d.Price = Price{Amount: 450}
		d.Seats = 3
		return d
	}
	if err := complete().Validate(); err != nil {
		t.Fatalf("complete ride error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Draft)
	}{
		{"no destination", func(d *Draft) { d.Route.Destination = "" }},
		{"no date", func(d *Draft) { d.Date = "" }},
		{"blank time", func(d *Draft) { d.Time = " " }},
		{"no seats", func(d *Draft) { d.Seats = 0 }},
		{"driver without price", func(d *Draft) { d.Price = Price{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := complete()
			tt.mutate(d)
			if err := d.Validate(); !errors.Is(err, ErrIncomplete) {
				t.Errorf("error = %v, want ErrIncomplete", err)
			}
		})
	}

	p := complete()
	p.Category = Passenger
	p.Price = Price{}
	if err := p.Validate(); err != nil {
		t.Errorf("passenger without price error = %v, want nil", err)
	}
}

func TestSetCommentTruncates(t *testing.T) {
	d := New(Rides, 1, 1)
	d.SetComment(strings.Repeat("я", MaxComment+50))
	if n := utf8.RuneCountInString(d.Comment); n != MaxComment {
		t.Errorf("comment length = %d runes, want %d", n, MaxComment)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"500", 500, false},
		{" 1 ", 1, false},
		{"5000", 5000, false},
		{"0", 0, true},
		{"5001", 0, true},
		{"-5", 0, true},
		{"500р", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePrice(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePrice(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePrice(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestParseVariant(t *testing.T) {
	if v, err := ParseVariant(" Rides "); err != nil || v != Rides {
		t.Errorf("ParseVariant(Rides) = %v, %v", v, err)
	}
	if _, err := ParseVariant("auction"); err == nil {
		t.Error("ParseVariant(auction) expected error")
	}
}

func TestSetBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"short", "  Велосипед  ", false},
		{"at limit", strings.Repeat("я", MaxBody), false},
		{"over limit", strings.Repeat("я", MaxBody+1), true},
		// Emoji outside the BMP count twice.
		{"emoji over limit", strings.Repeat("🚲", MaxBody/2+1), true},
		{"emoji at limit", strings.Repeat("🚲", MaxBody/2), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(Classifieds, 1, 1)
			d.Body = "previous"
			err := d.SetBody(tt.body)
			if tt.wantErr {
				if !errors.Is(err, ErrBodyTooLong) {
					t.Fatalf("SetBody() error = %v, want ErrBodyTooLong", err)
				}
				if d.Body != "previous" {
					t.Errorf("Body changed to %q on rejection", d.Body)
				}
				return
			}
			if err != nil {
				t.Fatalf("SetBody() error = %v", err)
			}
			if d.Body != strings.TrimSpace(tt.body) {
				t.Errorf("Body = %q", d.Body)
			}
		})
	}
}
