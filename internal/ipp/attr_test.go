package ipp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAttribute_TagOfEmptyIsOutOfBand(t *testing.T) {
	t.Parallel()

	require.Equal(t, TagOutOfBand, Attribute{}.Tag())
}

func TestAttribute_StringOnlyForStringTags(t *testing.T) {
	t.Parallel()

	require.Equal(t, "one-sided", Attribute{Values: []Value{Keyword("one-sided")}}.String())
	require.Equal(t, "", Attribute{Values: []Value{Int(4)}}.String())
}

func TestAttribute_IntAndBoolTypeGuards(t *testing.T) {
	t.Parallel()

	v, ok := Attribute{Values: []Value{Int(4)}}.Int()
	require.True(t, ok)
	require.Equal(t, int32(4), v)

	_, ok = Attribute{Values: []Value{Keyword("x")}}.Int()
	require.False(t, ok)

	b, ok := Attribute{Values: []Value{Bool(true)}}.Bool()
	require.True(t, ok)
	require.True(t, b)

	_, ok = Attribute{Values: []Value{Int(1)}}.Bool()
	require.False(t, ok)
}

func TestAttribute_Equal(t *testing.T) {
	t.Parallel()

	a := Attribute{Name: "sides-supported", Values: []Value{Keyword("one-sided"), Keyword("two-sided-long-edge")}}
	b := Attribute{Name: "sides-supported", Values: []Value{Keyword("one-sided"), Keyword("two-sided-long-edge")}}
	require.True(t, a.Equal(b))

	c := Attribute{Name: "sides-supported", Values: []Value{Keyword("one-sided")}}
	require.False(t, a.Equal(c), "differing value counts must not be equal")

	d := Attribute{Name: "sides-supported", Values: []Value{Enum(1), Enum(2)}}
	require.False(t, a.Equal(d), "differing tags must not be equal")
}

func TestAttribute_EqualIsConservativeForCollections(t *testing.T) {
	t.Parallel()

	coll := []Attribute{{Name: "media-type", Values: []Value{Keyword("stationery")}}}
	a := Attribute{Values: []Value{Coll(coll)}}
	b := Attribute{Values: []Value{Coll(coll)}}
	require.False(t, a.Equal(b), "collections are never cheaply provable equal")
}

func TestAttributeSet_Get(t *testing.T) {
	t.Parallel()

	s := AttributeSet{"color-supported": {Name: "color-supported", Values: []Value{Bool(true)}}}
	a, ok := s.Get("color-supported")
	require.True(t, ok)
	require.Equal(t, "color-supported", a.Name)

	_, ok = s.Get("missing")
	require.False(t, ok)
}

func TestFromGroups_FlattensAndSkipsOperationGroup(t *testing.T) {
	t.Parallel()

	groups := []AttributeGroup{
		{Tag: GroupOperation, Attributes: []Attribute{{Name: "printer-uri", Values: []Value{URI("ipps://x/ipp/print")}}}},
		{Tag: GroupPrinter, Attributes: []Attribute{{Name: "color-supported", Values: []Value{Bool(true)}}}},
	}

	set := FromGroups(groups, GroupOperation)
	_, ok := set.Get("printer-uri")
	require.False(t, ok)
	_, ok = set.Get("color-supported")
	require.True(t, ok)
}

func TestFromGroups_LaterGroupOverwritesEarlierSameName(t *testing.T) {
	t.Parallel()

	groups := []AttributeGroup{
		{Tag: GroupJob, Attributes: []Attribute{{Name: "job-state", Values: []Value{Enum(3)}}}},
		{Tag: GroupPrinter, Attributes: []Attribute{{Name: "job-state", Values: []Value{Enum(9)}}}},
	}

	set := FromGroups(groups, GroupOperation)
	a, ok := set.Get("job-state")
	require.True(t, ok)
	v, _ := a.Int()
	require.Equal(t, int32(9), v)
}
