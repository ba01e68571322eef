package expiry

import (
	"fmt"
	"testing"
	"time"

	"github.com/matheus3301/doska/internal/listing"
)

func testPlanner(t *testing.T) *Planner {
	t.Helper()
	loc, err := LoadZone(DefaultZone)
	if err != nil {
		t.Fatal(err)
	}
	return NewPlanner(loc, 0)
}

func TestPlanSlots(t *testing.T) {
	p := testPlanner(t)
	loc := p.Location()
	now := time.Date(2024, 6, 9, 12, 0, 0, 0, loc)

	tests := []struct {
		name string
		date string
		slot string
		want time.Time
	}{
		{"hourly morning", "2024-06-10", "07:00 - 08:00", time.Date(2024, 6, 10, 9, 0, 0, 0, loc)},
		{"wider block", "2024-06-10", "07:00 - 10:00", time.Date(2024, 6, 10, 11, 0, 0, 0, loc)},
		{"hourly wrap", "2024-06-10", "23:00 - 00:00", time.Date(2024, 6, 10, 1, 0, 0, 0, loc)},
		{"block ending at 23 rolls over", "2024-06-10", "20:00 - 23:00", time.Date(2024, 6, 11, 0, 0, 0, 0, loc)},
		{"block ending at 22", "2024-06-10", "18:00 - 22:00", time.Date(2024, 6, 10, 23, 0, 0, 0, loc)},
		{"month boundary", "2024-06-30", "21:00 - 23:00", time.Date(2024, 7, 1, 0, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Plan(tt.date, tt.slot, now)
			if !got.Equal(tt.want) {
				t.Errorf("Plan(%q, %q) = %v, want %v", tt.date, tt.slot, got, tt.want)
			}
		})
	}
}

func TestPlanHourlyProperty(t *testing.T) {
	p := testPlanner(t)
	loc := p.Location()
	now := time.Date(2024, 6, 9, 12, 0, 0, 0, loc)
	for h := 0; h < 24; h++ {
		slot := FormatSlot(h, (h+1)%24)
		got := p.Plan("2024-06-10", slot, now)
		want := time.Date(2024, 6, 10, (h+2)%24, 0, 0, 0, loc)
		if h == 22 {
			want = now.Add(DefaultFallback)
		}
		if !got.Equal(want) {
			t.Errorf("Plan(%q) = %v, want %v", slot, got, want)
		}
	}
}

func TestPlanFallback(t *testing.T) {
	p := testPlanner(t)
	now := time.Date(2024, 6, 9, 12, 34, 56, 0, p.Location())
	want := now.Add(48 * time.Hour)

	inputs := []struct {
		date string
		slot string
	}{
		{"2024-06-10", "около 16 часов"},
		{"2024-06-10", "15:30"},
		{"2024-06-10", "07:00-08:00"},
		{"2024-06-10", "07:30 - 08:00"},
		{"2024-06-10", "07:00 - 08:15"},
		{"2024-06-10", "24:00 - 01:00"},
		{"2024-06-10", "aa:00 - 08:00"},
		{"2024-06-10", "07:00 - 08:00 - 09:00"},
		{"2024-06-10", ""},
		{"10.06.2024", "07:00 - 08:00"},
		{"", "07:00 - 08:00"},
	}
	for _, in := range inputs {
		t.Run(fmt.Sprintf("%s|%s", in.date, in.slot), func(t *testing.T) {
			got := p.Plan(in.date, in.slot, now)
			if !got.Equal(want) {
				t.Errorf("Plan(%q, %q) = %v, want fallback %v", in.date, in.slot, got, want)
			}
		})
	}
}

func TestForDraft(t *testing.T) {
	p := testPlanner(t)
	loc := p.Location()
	now := time.Date(2024, 6, 9, 12, 0, 0, 0, loc)

	ad := listing.New(listing.Classifieds, 1, 1)
	if got := p.ForDraft(ad, now); !got.Equal(now.Add(48 * time.Hour)) {
		t.Errorf("classifieds deadline = %v, want now+48h", got)
	}

	ride := listing.New(listing.Rides, 1, 1)
	ride.Date = "2024-06-10"
	ride.Time = "07:00 - 08:00"
	if got, want := p.ForDraft(ride, now), time.Date(2024, 6, 10, 9, 0, 0, 0, loc); !got.Equal(want) {
		t.Errorf("slot ride deadline = %v, want %v", got, want)
	}

	ride.TimeManual = true
	if got := p.ForDraft(ride, now); !got.Equal(now.Add(48 * time.Hour)) {
		t.Errorf("manual ride deadline = %v, want now+48h", got)
	}
}

func TestCustomFallback(t *testing.T) {
	p := NewPlanner(time.UTC, 6*time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := p.Plan("", "manual", now); !got.Equal(now.Add(6 * time.Hour)) {
		t.Errorf("fallback = %v, want now+6h", got)
	}
}

func TestPlanTwentyTwoSlotUsesFlatWindow(t *testing.T) {
	p := testPlanner(t)
	loc := p.Location()
	published := time.Date(2024, 6, 10, 18, 0, 0, 0, loc)

	d := &listing.Draft{Variant: listing.Rides, Category: listing.Driver, Date: "2024-06-10", Time: "22:00 - 23:00"}
	got := p.ForDraft(d, published)
	if !got.After(published) {
		t.Fatalf("ForDraft() = %v, not after publish time %v", got, published)
	}
	if want := published.Add(DefaultFallback); !got.Equal(want) {
		t.Errorf("ForDraft() = %v, want %v", got, want)
	}
}
