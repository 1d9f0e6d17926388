package internal

import "testing"

func TestAudioLimit(t *testing.T) {
	cases := []struct {
		httpMax, transcriberMax, want int64
	}{
		{httpMax: 25 << 20, transcriberMax: 10 << 20, want: 10 << 20},
		{httpMax: 5 << 20, transcriberMax: 25 << 20, want: 5 << 20},
		{httpMax: 0, transcriberMax: 10 << 20, want: 10 << 20},
		{httpMax: 8 << 20, transcriberMax: 0, want: 8 << 20},
	}
	for _, c := range cases {
		if got := audioLimit(c.httpMax, c.transcriberMax); got != c.want {
			t.Errorf("audioLimit(%d, %d) = %d, want %d", c.httpMax, c.transcriberMax, got, c.want)
		}
	}
}
