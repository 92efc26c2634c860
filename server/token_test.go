package server

import (
	"testing"
)

func TestAtoRole(t *testing.T) {
	var table = []struct {
		input  string
		output Role
	}{
		{"MDOnly", RoleMDOnly},
		{"mdonly", RoleMDOnly},
		{"read", RoleRead},
		{"Read", RoleRead},
		{"Write", RoleWrite},
		{"write", RoleWrite},
		{"admin", RoleAdmin},
		{"Admin", RoleAdmin},
		{"other", RoleUnknown},
	}

	for _, row := range table {
		result := atoRole(row.input)
		if result != row.output {
			t.Errorf("For %v received %v, expected %v", row.input, result, row.output)
		}
	}
}

func TestListValidator(t *testing.T) {
	const userlist = `
# comment lines and blank lines are skipped

alice admin token-alice
bob read token-bob
carol write
dave mdonly token-dave extra-column
erin bogusrole token-erin
`
	v, err := NewListValidatorString(userlist)
	if err != nil {
		t.Fatal(err)
	}

	var table = []struct {
		token string
		user  string
		role  Role
	}{
		{"token-alice", "alice", RoleAdmin},
		{"token-bob", "bob", RoleRead},
		{"token-erin", "erin", RoleUnknown}, // bad role name
		{"token-carol", "", RoleUnknown},    // wrong column count, skipped
		{"token-dave", "", RoleUnknown},     // wrong column count, skipped
		{"nothere", "", RoleUnknown},
	}

	for _, row := range table {
		user, role, err := v.TokenValid(row.token)
		if err != nil {
			t.Errorf("For %v received error %v", row.token, err)
			continue
		}
		if user != row.user || role != row.role {
			t.Errorf("For %v received (%v, %v), expected (%v, %v)",
				row.token, user, role, row.user, row.role)
		}
	}
}
