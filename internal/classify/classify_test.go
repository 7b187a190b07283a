package classify

import "testing"

func TestTextLike(t *testing.T) {
	cases := []struct {
		filename string
		mime     string
		want     bool
	}{
		{"notes.txt", "text/plain", true},
		{"data.csv", "text/csv", true},
		{"config.json", "application/json", true},
		{"page.html", "", true},
		{"script.py", "", true},
		{"README.MD", "", true},
		// MIME alone suffices when the extension is unknown.
		{"weird.bin", "text/plain", true},
		{"payload", "application/json; charset=utf-8", true},
		{"photo.png", "image/png", false},
		{"report.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", false},
		{"archive.zip", "application/zip", false},
		{"", "", false},
	}
	for _, tc := range cases {
		if got := TextLike(tc.filename, tc.mime); got != tc.want {
			t.Errorf("TextLike(%q, %q) = %v, want %v", tc.filename, tc.mime, got, tc.want)
		}
	}
}

func TestStructured(t *testing.T) {
	cases := []struct {
		filename string
		want     bool
	}{
		{"sales.csv", true},
		{"sales.XLSX", true},
		{"legacy.xls", true},
		{"dump.json", true},
		{"server.log", true},
		{"notes.txt", true},
		{"photo.png", false},
		{"paper.pdf", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := Structured(tc.filename); got != tc.want {
			t.Errorf("Structured(%q) = %v, want %v", tc.filename, got, tc.want)
		}
	}
}
