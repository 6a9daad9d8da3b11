package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/gotrs-io/e2eprobe/internal/config"
	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
)

func TestStoreGet(t *testing.T) {
	store := NewStore(map[Role]Credential{
		RoleAdmin:  {Email: "admin@example.test", Password: "pw"},
		RoleMember: {Email: "member@example.test", Password: "pw"},
		RoleGuest:  {},
	})

	c, err := store.Get(RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, c.Role)
	assert.Equal(t, "admin@example.test", c.Email)

	_, err = store.Get(RoleGuest)
	assert.True(t, harnesserrors.IsUnknownRole(err), "entries without email are not registered")

	assert.Equal(t, []Role{RoleAdmin, RoleMember}, store.Roles())
}

func TestStoreIsACopy(t *testing.T) {
	in := map[Role]Credential{RoleAdmin: {Email: "a@example.test", Password: "pw"}}
	store := NewStore(in)
	in[RoleAdmin] = Credential{Email: "changed@example.test"}
	delete(in, RoleAdmin)

	c, err := store.Get(RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "a@example.test", c.Email)
}

func TestUnknownRoleProperty(t *testing.T) {
	store := NewStore(map[Role]Credential{RoleAdmin: {Email: "a@example.test", Password: "pw"}})

	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`[a-z]{1,12}`).Draw(t, "role")
		if name == string(RoleAdmin) {
			t.Skip("registered role")
		}
		_, err := store.Get(Role(name))
		var unknown *harnesserrors.UnknownRoleError
		if !assert.ErrorAs(t, err, &unknown) {
			t.Fatalf("expected UnknownRoleError for %q, got %v", name, err)
		}
		if unknown.Role != name {
			t.Fatalf("error carries role %q, want %q", unknown.Role, name)
		}
	})
}

func TestFromConfig(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := &config.Config{Credentials: map[string]config.CredentialConfig{
			"Admin":   {Email: "a@example.test", Password: "pw", TOTPSecret: "JBSWY3DPEHPK3PXP"},
			"teacher": {Email: "t@example.test", Password: "pw"},
		}}
		store, err := FromConfig(cfg)
		require.NoError(t, err)
		c, err := store.Get(RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, "JBSWY3DPEHPK3PXP", c.TOTPSecret)
		assert.Len(t, store.Roles(), 2)
	})

	t.Run("unknown role name", func(t *testing.T) {
		cfg := &config.Config{Credentials: map[string]config.CredentialConfig{
			"janitor": {Email: "j@example.test", Password: "pw"},
		}}
		_, err := FromConfig(cfg)
		var cfgErr *harnesserrors.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "credentials.janitor", cfgErr.Field)
	})

	t.Run("missing password", func(t *testing.T) {
		cfg := &config.Config{Credentials: map[string]config.CredentialConfig{
			"member": {Email: "m@example.test"},
		}}
		_, err := FromConfig(cfg)
		assert.Error(t, err)
	})
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Vetted ")
	require.NoError(t, err)
	assert.Equal(t, RoleVetted, r)

	_, err = ParseRole("root")
	assert.Error(t, err)
}
