package cfi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		loc  Location
		want string
	}{
		{"chapter start", New(0), "epubcfi(/6/2!/4)"},
		{"third chapter", New(2), "epubcfi(/6/6!/4)"},
		{"with offset", At(1, 42), "epubcfi(/6/4!/4:42)"},
		{"zero offset", At(0, 0), "epubcfi(/6/2!/4:0)"},
		{"custom path", Location{SpineIndex: 3, ElementPath: "/4/2/1"}, "epubcfi(/6/8!/4/2/1)"},
		{"empty path", Location{SpineIndex: 1}, "epubcfi(/6/4!/4)"},
		{"escaped path", Location{SpineIndex: 0, ElementPath: "/4[a:b]"}, "epubcfi(/6/2!/4^[a^:b^])"},
		{"negative index", Location{SpineIndex: -5}, "epubcfi(/6/2!/4)"},
		{"negative offset", Location{SpineIndex: 0, Offset: -1, HasOffset: true}, "epubcfi(/6/2!/4)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.loc))
			assert.Equal(t, tt.want, tt.loc.String())
		})
	}
}

func TestRoundTrip(t *testing.T) {
	paths := []string{"", "/4", "/4/2/10/3", "/4[body01]/10[para05]/3", "a:12", "x^y", "trailing^", "(),;=", "!bang!", "日本語/パス"}
	offsets := []struct {
		n   int
		has bool
	}{{0, false}, {0, true}, {7, true}, {1 << 20, true}, {math.MaxInt32, true}}
	indices := []int{0, 1, 2, 17, 4999}

	for _, i := range indices {
		for _, p := range paths {
			for _, o := range offsets {
				in := Location{SpineIndex: i, ElementPath: p, Offset: o.n, HasOffset: o.has}
				got, err := Decode(Encode(in))
				require.NoError(t, err, Encode(in))
				assert.Equal(t, in.Normalize(), got, Encode(in))
				assert.Equal(t, i, got.SpineIndex)
				assert.Equal(t, o.has, got.HasOffset)
				assert.Equal(t, o.n, got.Offset)
			}
		}
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Location
	}{
		{"canonical", "epubcfi(/6/4!/4:10)", At(1, 10)},
		{"no wrapper", "/6/6!/4/2", Location{SpineIndex: 2, ElementPath: "/4/2"}},
		{"id assertion", "epubcfi(/6/4[chap01ref]!/4[body01]/10[para05]/3:10)", Location{SpineIndex: 1, ElementPath: "/4[body01]/10[para05]/3", Offset: 10, HasOffset: true}},
		{"no path", "epubcfi(/6/8)", New(3)},
		{"empty path", "epubcfi(/6/2!)", New(0)},
		{"odd step", "epubcfi(/6/5!/4)", New(1)},
		{"surrounding space", "  epubcfi(/6/2!/4:3) ", At(0, 3)},
		{"offset without path", "epubcfi(/6/4:10)", At(1, 10)},
		{"assertion and offset without path", "epubcfi(/6/4[c1]:3)", At(1, 3)},
		{"colon inside assertion", "/6/4[a:b]", New(1)},
		{"colon inside path assertion", "/6/4!/4[a:b]", Location{SpineIndex: 1, ElementPath: "/4[a:b]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"epubcfi()",
		"epubcfi(/6/4!/4",
		"hello",
		"/6/",
		"/6/x!/4",
		"/6/0!/4",
		"/4/2!/4",
		"/6/4junk!/4",
		"/6/4!/4:abc",
		"/6/4!/4:-1",
		"/6/4!/4:+1",
		"/6/4!/4:",
		"/6/4:x",
		"/6/4:-2",
		"/6/4:",
		"/6/99999999999999999999999!/4",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Decode(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeOrStart(t *testing.T) {
	assert.Equal(t, New(0), DecodeOrStart("garbage"))
	assert.Equal(t, New(0), DecodeOrStart(""))
	assert.Equal(t, At(4, 9), DecodeOrStart("epubcfi(/6/10!/4:9)"))
}

func TestNormalize(t *testing.T) {
	got := Location{SpineIndex: -1, Offset: 5}.Normalize()
	assert.Equal(t, Location{SpineIndex: 0, ElementPath: DefaultElementPath}, got)
}

func TestEncode_LargeSpineIndex(t *testing.T) {
	for _, i := range []int{MaxSpineIndex, MaxSpineIndex + 1, math.MaxInt} {
		got, err := Decode(Encode(New(i)))
		require.NoError(t, err, Encode(New(i)))
		assert.Equal(t, MaxSpineIndex, got.SpineIndex)
	}
}
