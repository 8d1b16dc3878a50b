package commitlog

import (
	"bytes"
	"io"
	"os"
	"testing"
)

func withTempFile(t *testing.T, fn func(f *os.File)) {
	f, err := os.CreateTemp("", "commitlog-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	defer f.Close()
	fn(f)
}

func TestPreImageRoundTrip(t *testing.T) {
	withTempFile(t, func(f *os.File) {
		want := PreImage{Offset: 4096, Page: bytes.Repeat([]byte{0xAB}, 64)}
		if err := EncodePreImage(f, want); err != nil {
			t.Fatal(err)
		}
		f.Seek(0, io.SeekStart)

		got, err := DecodePreImage(f)
		if err != nil {
			t.Fatal(err)
		}
		if got.Offset != want.Offset || !bytes.Equal(got.Page, want.Page) {
			t.Fatalf("mismatch: got %+v", got)
		}
	})
}

func TestIterStopsAtEOF(t *testing.T) {
	withTempFile(t, func(f *os.File) {
		want := []PreImage{
			{Offset: 0, Page: []byte("page0")},
			{Offset: 64, Page: []byte("page1")},
			{Offset: 128, Page: []byte("page2")},
		}
		for _, p := range want {
			if err := EncodePreImage(f, p); err != nil {
				t.Fatal(err)
			}
		}
		f.Seek(0, io.SeekStart)

		r := NewReader(f)
		var got []PreImage
		for p, err := range r.Iter() {
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, p)
		}

		if len(got) != len(want) {
			t.Fatalf("got %d pre-images, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i].Offset != want[i].Offset || !bytes.Equal(got[i].Page, want[i].Page) {
				t.Fatalf("pre-image %d mismatch: %+v vs %+v", i, got[i], want[i])
			}
		}
	})
}

func TestIterHaltsEarlyWhenCallerStops(t *testing.T) {
	withTempFile(t, func(f *os.File) {
		for i := 0; i < 5; i++ {
			if err := EncodePreImage(f, PreImage{Offset: uint64(i), Page: []byte("x")}); err != nil {
				t.Fatal(err)
			}
		}
		f.Seek(0, io.SeekStart)

		r := NewReader(f)
		count := 0
		for range r.Iter() {
			count++
			if count == 2 {
				break
			}
		}
		if count != 2 {
			t.Fatalf("expected early stop at 2, got %d", count)
		}
	})
}
