package indi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSwitchFixture(t *testing.T, rule SwitchRule) *Vector {
	t.Helper()
	v := NewVector(KindSwitch, "Binning", "Binning", "Main", StateOk, PermReadWrite).WithRule(rule)
	require.NoError(t, v.AddMember(Member{Name: "a", Value: string(SwitchOn)}))
	require.NoError(t, v.AddMember(Member{Name: "b", Value: string(SwitchOff)}))
	require.NoError(t, v.AddMember(Member{Name: "c", Value: string(SwitchOff)}))
	return v
}

func TestDevice_DuplicateVectorRejected(t *testing.T) {
	d := NewDevice("Thermostat")
	require.NoError(t, d.AddVector(NewVector(KindNumber, "v", "", "", StateOk, PermReadOnly)))
	err := d.AddVector(NewVector(KindNumber, "v", "", "", StateOk, PermReadOnly))
	assert.ErrorIs(t, err, ErrDuplicateVector)
}

func TestVector_DuplicateMemberRejected(t *testing.T) {
	v := NewVector(KindText, "v", "", "", StateOk, PermReadWrite)
	require.NoError(t, v.AddMember(Member{Name: "m"}))
	err := v.AddMember(Member{Name: "m"})
	assert.ErrorIs(t, err, ErrDuplicateMember)
}

func TestVector_BlobMemberOutsideBlobVectorRejected(t *testing.T) {
	v := NewVector(KindText, "v", "", "", StateOk, PermReadWrite)
	err := v.AddMember(Member{Name: "m", BlobPath: "x"})
	assert.ErrorIs(t, err, ErrBlobOutsideBlobVector)
}

func TestVector_SwitchRule_OneOfMany(t *testing.T) {
	// rule=OneOfMany, a=On,b=Off,c=Off; client sets a=Off,b=On.
	v := newSwitchFixture(t, RuleOneOfMany)

	err := v.ApplySwitchUpdate(map[string]SwitchState{"a": SwitchOff, "b": SwitchOn})
	require.NoError(t, err)

	a, _ := v.Member("a")
	b, _ := v.Member("b")
	c, _ := v.Member("c")
	assert.Equal(t, string(SwitchOff), a.Value)
	assert.Equal(t, string(SwitchOn), b.Value)
	assert.Equal(t, string(SwitchOff), c.Value)
}

func TestVector_SwitchRule_OneOfMany_RejectsTwoOn(t *testing.T) {
	v := newSwitchFixture(t, RuleOneOfMany)

	err := v.ApplySwitchUpdate(map[string]SwitchState{"b": SwitchOn}) // would leave a=On, b=On
	assert.ErrorIs(t, err, ErrSwitchRuleViolation)

	// state must be unchanged (Testable property: rejection doesn't mutate).
	a, _ := v.Member("a")
	b, _ := v.Member("b")
	assert.Equal(t, string(SwitchOn), a.Value)
	assert.Equal(t, string(SwitchOff), b.Value)
}

func TestVector_SwitchRule_AtMostOne_RejectsTwoOn(t *testing.T) {
	v := newSwitchFixture(t, RuleAtMostOne)
	require.NoError(t, v.ApplySwitchUpdate(map[string]SwitchState{"a": SwitchOff}))

	err := v.ApplySwitchUpdate(map[string]SwitchState{"a": SwitchOn, "b": SwitchOn})
	assert.ErrorIs(t, err, ErrSwitchRuleViolation)
}

func TestVector_SwitchRule_AnyOfMany_Unconstrained(t *testing.T) {
	v := newSwitchFixture(t, RuleAnyOfMany)
	err := v.ApplySwitchUpdate(map[string]SwitchState{"a": SwitchOn, "b": SwitchOn, "c": SwitchOn})
	assert.NoError(t, err)
}

func TestVector_PartialUpdate_LeavesOthersUnchanged(t *testing.T) {
	v := NewVector(KindText, "v", "", "", StateOk, PermReadWrite)
	require.NoError(t, v.AddMember(Member{Name: "one", Value: "1"}))
	require.NoError(t, v.AddMember(Member{Name: "two", Value: "2"}))

	require.NoError(t, v.ApplyTextUpdate(map[string]string{"one": "changed"}))

	one, _ := v.Member("one")
	two, _ := v.Member("two")
	assert.Equal(t, "changed", one.Value)
	assert.Equal(t, "2", two.Value)
}
