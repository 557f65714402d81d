package mediabuffer

import "testing"

func TestSwapInvolution(t *testing.T) {
	b := New(16)
	copy(b.RawBuffer, []byte{0x00, 0x01, 0x02, 0x03})
	b.RawDataLen = 4

	if err := b.SwapBytePairs(4); err != nil {
		t.Fatalf("swap 1: %v", err)
	}
	data, _ := b.GetData()
	want := []byte{0x01, 0x00, 0x03, 0x02}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("after first swap = %v, want %v", data[:4], want)
		}
	}

	if err := b.SwapBytePairs(4); err != nil {
		t.Fatalf("swap 2: %v", err)
	}
	data, _ = b.GetData()
	orig := []byte{0x00, 0x01, 0x02, 0x03}
	for i := range orig {
		if data[i] != orig[i] {
			t.Fatalf("double swap not identity: got %v, want %v", data[:4], orig)
		}
	}
}

func TestSwapRejectsOddLength(t *testing.T) {
	b := New(16)
	b.RawDataLen = 3
	if err := b.SwapBytePairs(3); err == nil {
		t.Fatalf("expected error for odd length")
	}
}

func TestGetDataSelectsCompressionBuffer(t *testing.T) {
	b := New(16)
	copy(b.CompressionBuffer, []byte{1, 2, 3})
	b.CompressedDataLen = 3
	b.DataInCompressionBuffer = true

	data, n := b.GetData()
	if n != 3 || data[0] != 1 {
		t.Fatalf("GetData from compression buffer = %v, %d", data, n)
	}
}
