package layout

import (
	"testing"

	"github.com/jacobsa/oglematchers"
)

func expectThat(t *testing.T, actual interface{}, m oglematchers.Matcher) {
	t.Helper()
	if err := m.Matches(actual); err != nil {
		t.Errorf("got %v, want %s (%v)", actual, m.Description(), err)
	}
}

func TestSizes(t *testing.T) {
	for _, w := range []Width{Width4, Width8} {
		c := Codec{W: w}
		expectThat(t, c.INodeSize(), oglematchers.Equals(int(w)))
		expectThat(t, c.CNodeSize(), oglematchers.Equals(Alphabet*int(w)+2))
		expectThat(t, c.RootSize(), oglematchers.Equals(c.INodeSize()+c.CNodeSize()))
	}
}

func TestMainNodeRoundTrip(t *testing.T) {
	for _, w := range []Width{Width4, Width8} {
		c := Codec{W: w}
		buf := make([]byte, c.RootSize())

		c.InitMainNode(buf, 0, uint64(c.INodeSize()))
		expectThat(t, c.MainNode(buf, 0), oglematchers.Equals(uint64(c.INodeSize())))

		if !c.CASMainNode(buf, 0, uint64(c.INodeSize()), 12345) {
			t.Fatalf("width %d: CAS with correct old value should succeed", w)
		}
		expectThat(t, c.MainNode(buf, 0), oglematchers.Equals(uint64(12345)))

		if c.CASMainNode(buf, 0, 999, 1) {
			t.Fatalf("width %d: CAS with stale old value should fail", w)
		}
	}
}

func TestPossibilitiesAndMetadata(t *testing.T) {
	c := Codec{W: Width8}
	buf := make([]byte, c.CNodeSize())

	if c.IsEndOfString(buf, 0) {
		t.Fatalf("zeroed CNode should not be end of string")
	}
	for i := 0; i < Alphabet; i++ {
		if got := c.Possibility(buf, 0, i); got != 0 {
			t.Fatalf("zeroed CNode possibility[%d] = %d, want 0", i, got)
		}
	}

	c.SetPossibilityRaw(buf, 0, SlashIndex, 777)
	expectThat(t, c.Possibility(buf, 0, SlashIndex), oglematchers.Equals(uint64(777)))

	c.SetIsEndOfStringRaw(buf, 0, true)
	c.SetFlagsRaw(buf, 0, 0x11)

	if !c.IsEndOfString(buf, 0) {
		t.Fatalf("expected isEndOfString to be set")
	}
	expectThat(t, c.Flags(buf, 0), oglematchers.Equals(byte(0x11)))
}

func TestCopyCNode(t *testing.T) {
	c := Codec{W: Width4}
	src := make([]byte, c.CNodeSize()*2)
	dst := make([]byte, c.CNodeSize())

	srcOff := c.CNodeSize()
	c.SetPossibilityRaw(src, srcOff, 3, 42)
	c.SetIsEndOfStringRaw(src, srcOff, true)
	c.SetFlagsRaw(src, srcOff, 0x05)

	c.CopyCNode(dst, 0, src, srcOff)

	expectThat(t, c.Possibility(dst, 0, 3), oglematchers.Equals(uint64(42)))
	if !c.IsEndOfString(dst, 0) {
		t.Fatalf("expected copied isEndOfString to be true")
	}
	expectThat(t, c.Flags(dst, 0), oglematchers.Equals(byte(0x05)))
}

func TestInRange(t *testing.T) {
	cases := []struct {
		c    byte
		want bool
	}{
		{31, false},
		{32, true},
		{122, true},
		{123, false},
		{13, false}, // below LowerLimit; the skip is handled by callers, not InRange
	}
	for _, tc := range cases {
		if got := InRange(tc.c); got != tc.want {
			t.Errorf("InRange(%d) = %v, want %v", tc.c, got, tc.want)
		}
	}
}
