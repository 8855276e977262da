package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Contact", "contact"},
		{"Khách hàng", "khach_hang"},
		{"  Đơn hàng #2 ", "don_hang_2"},
		{"___", "x"},
		{"", "x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), tt.in)
	}
}

func TestIDs(t *testing.T) {
	assert.Equal(t, "obj_khach_hang_042", ObjectID("Khách hàng", 42))
	assert.Equal(t, "fd_e_mail_007", FieldToken("E-mail", 1007))
	assert.True(t, ValidToken("fd_phone_2"))
	assert.False(t, ValidToken("phone"))
	assert.False(t, ValidToken("fd_Phone"))
	assert.False(t, ValidToken("fd_"+strings.Repeat("x", 61)))
}

func TestIDsFitSQLIdentifiers(t *testing.T) {
	long := strings.Repeat("Long name ", 10)
	ident := regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

	id := ObjectID(long, 5)
	assert.Equal(t, "obj_long_name_long_name_long_name_long_name_005", id)
	assert.Regexp(t, ident, id)

	tok := FieldToken(long, 12)
	assert.Equal(t, "fd_long_name_long_name_long_name_long_name_012", tok)
	assert.Regexp(t, ident, tok)
	assert.True(t, ValidToken(tok))

	// короткие имена не трогаются
	assert.Equal(t, "obj_contact_001", ObjectID("Contact", 1))
}

func TestNormalizeSpec(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		want    Kind
		wantErr bool
	}{
		{"identity upper", Identity{Prefix: " ct "}, Identity{Prefix: "CT"}, false},
		{"identity empty", Identity{}, nil, true},
		{"text", Text{MaxLength: 50}, Text{MaxLength: 50}, false},
		{"text zero", Text{}, nil, true},
		{"select trimmed", Select{Options: []string{" a", "b "}}, Select{Options: []string{"a", "b"}}, false},
		{"select empty", Select{}, nil, true},
		{"select duplicate", Select{Options: []string{"a", "a"}}, nil, true},
		{"phone", PhoneNumber{CountryCode: "+84"}, PhoneNumber{CountryCode: "+84"}, false},
		{"phone bad", PhoneNumber{CountryCode: "vn"}, nil, true},
		{"date", Date{Format: "dmy", Separator: "/"}, Date{Format: "DMY", Separator: "/"}, false},
		{"date bad sep", Date{Format: "DMY", Separator: ":"}, nil, true},
		{"ref object", ReferenceObject{TargetObject: "obj_a_001"}, ReferenceObject{TargetObject: "obj_a_001"}, false},
		{"ref field half", ReferenceField{TargetObject: "obj_a_001"}, nil, true},
		{"nil", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSpec("fd_x", tt.kind)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidFieldSpec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDateLayout(t *testing.T) {
	parse, format := Date{Format: "DMY", Separator: "/"}.Layout()
	assert.Equal(t, "2/1/2006", parse)
	assert.Equal(t, "02/01/2006", format)

	parse, format = Date{Format: "YMD", Separator: "-"}.Layout()
	assert.Equal(t, "2006-1-2", parse)
	assert.Equal(t, "2006-01-02", format)
}

func TestFieldSpecJSON(t *testing.T) {
	var s FieldSpec
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Contact","type":"REFERENCE_FIELD","attrs":{"target":"obj_contact_001.fd_name"}}`), &s))
	assert.Equal(t, ReferenceField{TargetObject: "obj_contact_001", TargetField: "fd_name"}, s.Kind)

	err := json.Unmarshal([]byte(`{"name":"x","type":"money"}`), &s)
	assert.ErrorIs(t, err, ErrInvalidFieldSpec)

	err = json.Unmarshal([]byte(`{"name":"x","type":"reference_field","attrs":{"target":"nodot"}}`), &s)
	assert.ErrorIs(t, err, ErrInvalidFieldSpec)
}

func TestFieldJSONCopiesTargets(t *testing.T) {
	f := Field{ID: "1", ObjectID: "obj_deal_001", Token: "fd_contact", Name: "Contact",
		Kind: ReferenceField{TargetObject: "obj_contact_001", TargetField: "fd_name"}}
	b, err := json.Marshal(f)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "obj_contact_001", m["target_object"])
	assert.Equal(t, "fd_name", m["target_field"])

	var back Field
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, f, back)
}

func TestCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Errorf(ErrReadOnlyField, "fd_code", "X", "read-only"))
	assert.Equal(t, "readonly_field", Code(err))
	assert.Equal(t, "", Code(errors.New("other")))

	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "fd_code", fe.Field)
}
