package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func validContact() ContactInput {
	return ContactInput{Name: "Ada", Email: "ada@example.com", Subject: "Hello there", Message: "I liked your portfolio."}
}

func TestContactInputValidate(t *testing.T) {
	require.NoError(t, validContact().Validate())

	cases := []struct {
		field  string
		mutate func(*ContactInput)
	}{
		{"name", func(in *ContactInput) { in.Name = "A" }},
		{"email", func(in *ContactInput) { in.Email = "" }},
		{"email", func(in *ContactInput) { in.Email = "not-an-email" }},
		{"email", func(in *ContactInput) { in.Email = "Ada <ada@example.com>" }},
		{"email", func(in *ContactInput) { in.Email = " ada@example.com\n" }},
		{"subject", func(in *ContactInput) { in.Subject = "Hey" }},
		{"message", func(in *ContactInput) { in.Message = "short" }},
		{"message", func(in *ContactInput) { in.Message = strings.Repeat("m", ContactMessageMax+1) }},
	}
	for _, tc := range cases {
		in := validContact()
		tc.mutate(&in)
		err := in.Validate()
		var ferr *FieldError
		require.True(t, errors.As(err, &ferr), "%+v", in)
		require.Equal(t, tc.field, ferr.Field)
	}
}

func TestContactInputCountsCharacters(t *testing.T) {
	in := validContact()
	in.Message = strings.Repeat("é", ContactMessageMax)
	require.NoError(t, in.Validate())
}

func TestContactInputHasNoNameOrSubjectMaximum(t *testing.T) {
	in := validContact()
	in.Name = strings.Repeat("n", 1000)
	in.Subject = strings.Repeat("s", 1000)
	require.NoError(t, in.Validate())
}

func TestContactInputChecksValuesAsSubmitted(t *testing.T) {
	in := validContact()
	in.Subject = "  Hi  "
	require.NoError(t, in.Validate())

	in.Message = "   short  "
	require.NoError(t, in.Validate())
}
