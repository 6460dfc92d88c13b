package fasfmt

import (
	"errors"
	"testing"
)

func TestReadLine(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a\r\nb\n", []string{"a", "b"}},
		{"\n\n", []string{"", ""}},
		{"FAS4-FILE ; Do not change it!\r\n", []string{"FAS4-FILE ; Do not change it!"}},
	}
	for _, tt := range tests {
		s := NewStream([]byte(tt.in))
		for i, want := range tt.want {
			got, err := s.ReadLine()
			if err != nil {
				t.Fatalf("ReadLine(%q)[%d]: %v", tt.in, i, err)
			}
			if got != want {
				t.Errorf("ReadLine(%q)[%d] = %q, want %q", tt.in, i, got, want)
			}
		}
		if s.Remaining() != 0 {
			t.Errorf("ReadLine(%q): %d bytes left", tt.in, s.Remaining())
		}
	}
}

func TestReadLineUnterminated(t *testing.T) {
	s := NewStream([]byte("no newline"))
	_, err := s.ReadLine()
	if !errors.Is(err, ErrStreamEOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReadDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"517\r\n", 517, true},
		{"0\n", 0, true},
		{" 42 \n", 42, true},
		{"\n", 0, false},
		{"12a\n", 0, false},
		{"99999999999\n", 0, false},
	}
	for _, tt := range tests {
		got, err := NewStream([]byte(tt.in)).ReadDecimal()
		if tt.ok && err != nil {
			t.Errorf("ReadDecimal(%q): %v", tt.in, err)
			continue
		}
		if !tt.ok {
			if err == nil {
				t.Errorf("ReadDecimal(%q) = %d, want error", tt.in, got)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("ReadDecimal(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFixedWidthReads(t *testing.T) {
	s := NewStream([]byte{0x34, 0x12, 0x78, 0x56, 0x34, 0x12, 0xff, 0xff, 0xff, 0xff})
	u16, err := s.ReadUint16()
	if err != nil || u16 != 0x1234 {
		t.Fatalf("ReadUint16 = 0x%x, %v", u16, err)
	}
	u32, err := s.ReadUint32()
	if err != nil || u32 != 0x12345678 {
		t.Fatalf("ReadUint32 = 0x%x, %v", u32, err)
	}
	i32, err := s.ReadInt32()
	if err != nil || i32 != -1 {
		t.Fatalf("ReadInt32 = %d, %v", i32, err)
	}
	if _, err := s.ReadUint16(); err != ErrStreamEOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestSliceIsView(t *testing.T) {
	data := []byte("abcdef")
	s := NewStreamAt(data, 2)
	v, err := s.Slice(3)
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "cde" {
		t.Fatalf("Slice = %q", v)
	}
	data[2] = 'X'
	if v[0] != 'X' {
		t.Error("Slice copied the buffer")
	}
	if cap(v) != 3 {
		t.Errorf("Slice cap = %d, want 3", cap(v))
	}
	if _, err := s.Slice(5); err != ErrStreamEOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestSkipSpace(t *testing.T) {
	s := NewStream([]byte(" \r\n\tFAS"))
	s.SkipSpace()
	if s.Position() != 4 {
		t.Errorf("Position = %d, want 4", s.Position())
	}
	b, _ := s.PeekByte()
	if b != 'F' {
		t.Errorf("PeekByte = %q", b)
	}
}

func TestErrorWrapsSentinel(t *testing.T) {
	err := Errorf(ErrTruncatedOrCorrupt, 0x20, "size %d exceeds %d", 10, 4)
	if !errors.Is(err, ErrTruncatedOrCorrupt) {
		t.Error("errors.Is failed")
	}
	if off, ok := OffsetOf(err); !ok || off != 0x20 {
		t.Errorf("OffsetOf = %d, %v", off, ok)
	}
	want := "truncated or corrupt container at offset 0x20: size 10 exceeds 4"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("strict"); err != nil || m != ModeStrict {
		t.Errorf("ParseMode(strict) = %v, %v", m, err)
	}
	if m, err := ParseMode(""); err != nil || m != ModeBestEffort {
		t.Errorf("ParseMode(\"\") = %v, %v", m, err)
	}
	if _, err := ParseMode("lenient"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
