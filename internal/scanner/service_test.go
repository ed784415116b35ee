package scanner

import (
	"testing"
)

func TestParseTrackNumber(t *testing.T) {
	t.Parallel()

	number, title := parseTrackNumber("01 - Glass Wings")
	if number == nil || *number != 1 {
		t.Fatalf("expected track number 1, got %v", number)
	}
	if title != "Glass Wings" {
		t.Fatalf("expected stripped title, got %q", title)
	}

	number, title = parseTrackNumber("Glass Wings")
	if number != nil {
		t.Fatalf("expected no track number, got %v", number)
	}
	if title != "Glass Wings" {
		t.Fatalf("expected title unchanged, got %q", title)
	}

	number, _ = parseTrackNumber("00 - Untitled")
	if number != nil {
		t.Fatalf("expected zero prefix to be rejected, got %v", number)
	}
}

func TestParseNumericTag(t *testing.T) {
	t.Parallel()

	if got := parseNumericTag("7/12"); got == nil || *got != 7 {
		t.Fatalf("expected 7 from a slash pair, got %v", got)
	}
	if got := parseNumericTag("  "); got != nil {
		t.Fatalf("expected nil for blank input, got %v", got)
	}
	if got := parseNumericTag("junk"); got != nil {
		t.Fatalf("expected nil for non-numeric input, got %v", got)
	}
}

func TestParseYearTag(t *testing.T) {
	t.Parallel()

	if got := parseYearTag("2021-06-01"); got == nil || *got != 2021 {
		t.Fatalf("expected 2021 from a date, got %v", got)
	}
	if got := parseYearTag("1987"); got == nil || *got != 1987 {
		t.Fatalf("expected 1987, got %v", got)
	}
	if got := parseYearTag("12"); got != nil {
		t.Fatalf("expected nil for an implausible year, got %v", got)
	}
}

func TestSplitGenres(t *testing.T) {
	t.Parallel()

	got := splitGenres("Dream Pop; Shoegaze / Ambient")
	want := []string{"Dream Pop", "Shoegaze", "Ambient"}
	if len(got) != len(want) {
		t.Fatalf("expected %d genres, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %q at %d, got %q", want[i], i, got[i])
		}
	}

	if got := splitGenres("   "); got != nil {
		t.Fatalf("expected nil for blank input, got %v", got)
	}
}

func TestFallbackRecordUsesDirectoryLayout(t *testing.T) {
	t.Parallel()

	record := fallbackRecord("/music", "/music/The Owls/Night Flights/03 - Salt Lines.flac")
	if record.ArtistName != "The Owls" {
		t.Fatalf("expected artist from the first directory, got %q", record.ArtistName)
	}
	if record.AlbumTitle != "Night Flights" {
		t.Fatalf("expected album from the second directory, got %q", record.AlbumTitle)
	}
	if record.Title != "Salt Lines" {
		t.Fatalf("expected title from the file name, got %q", record.Title)
	}
	if record.TrackNo == nil || *record.TrackNo != 3 {
		t.Fatalf("expected track number 3, got %v", record.TrackNo)
	}

	flat := fallbackRecord("/music", "/music/loose-file.mp3")
	if flat.ArtistName != "Unknown Artist" || flat.AlbumTitle != "Unknown Album" {
		t.Fatalf("expected unknown placeholders for a flat file, got %q / %q",
			flat.ArtistName, flat.AlbumTitle)
	}
}
