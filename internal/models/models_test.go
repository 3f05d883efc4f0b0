package models

import (
	"testing"
	"time"
)

func TestEntryValidate(t *testing.T) {
	valid := Entry{
		ID:        "e1",
		Title:     "Tala'a al-Badru",
		OwnerID:   "user-1",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	t.Run("valid entry", func(t *testing.T) {
		if err := valid.Validate(); err != nil {
			t.Errorf("expected valid entry, got %v", err)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		e := valid
		e.ID = ""
		if err := e.Validate(); err == nil {
			t.Error("expected error for missing id")
		}
	})

	t.Run("missing owner", func(t *testing.T) {
		e := valid
		e.OwnerID = ""
		if err := e.Validate(); err == nil {
			t.Error("expected error for missing owner")
		}
	})

	t.Run("missing creation time", func(t *testing.T) {
		e := valid
		e.CreatedAt = time.Time{}
		if err := e.Validate(); err == nil {
			t.Error("expected error for missing creation time")
		}
	})

	t.Run("empty title and lyrics are allowed", func(t *testing.T) {
		e := valid
		e.Title = ""
		e.Lyrics = ""
		if err := e.Validate(); err != nil {
			t.Errorf("blank content should validate, got %v", err)
		}
	})
}

func TestParseSortOption(t *testing.T) {
	cases := []struct {
		in      string
		want    SortOption
		wantErr bool
	}{
		{"date_desc", SortDateDesc, false},
		{"date_asc", SortDateAsc, false},
		{"title_asc", SortTitleAsc, false},
		{"", SortDateDesc, false},
		{"bogus", "", true},
	}

	for _, tc := range cases {
		got, err := ParseSortOption(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseSortOption(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSortOption(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseSortOption(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
