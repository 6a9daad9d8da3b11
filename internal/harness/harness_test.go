package harness

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotrs-io/e2eprobe/internal/browser/browsertest"
	"github.com/gotrs-io/e2eprobe/internal/check"
	"github.com/gotrs-io/e2eprobe/internal/config"
	"github.com/gotrs-io/e2eprobe/internal/credentials"
	harnesserrors "github.com/gotrs-io/e2eprobe/internal/errors"
	"github.com/gotrs-io/e2eprobe/internal/navigation"
)

const base = "http://app.test"

const totpSecret = "JBSWY3DPEHPK3PXP"

var users = []browsertest.User{
	{Email: "admin@example.test", Password: "admin-pw", Role: "admin"},
	{Email: "member@example.test", Password: "member-pw", Role: "member"},
	{Email: "vetted@example.test", Password: "vetted-pw", Role: "vetted"},
	{Email: "teacher@example.test", Password: "teacher-pw", Role: "teacher", TOTPSecret: totpSecret},
	{Email: "guest@example.test", Password: "guest-pw", Role: "guest"},
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`
app:
  base_url: %s
timeouts:
  default: 1s
  login: 300ms
  navigation: 500ms
  link_search: 30ms
  settle: 300ms
  poll_interval: 3ms
  test: 5s
evidence:
  output_dir: %s
  persist: true
credentials:
  admin: {email: admin@example.test, password: admin-pw}
  member: {email: member@example.test, password: member-pw}
  vetted: {email: vetted@example.test, password: vetted-pw}
  teacher: {email: teacher@example.test, password: teacher-pw, totp_secret: %s}
  guest: {email: guest@example.test, password: guest-pw}
`, base, filepath.ToSlash(filepath.Join(dir, "results")), totpSecret)
	path := filepath.Join(dir, "e2eprobe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

// newHarness returns a harness whose pages all talk to one fresh app per page.
func newHarness(t *testing.T) (*Harness, *browsertest.Opener) {
	t.Helper()
	opener := &browsertest.Opener{New: func() *browsertest.Page {
		return browsertest.NewApp(users...).NewPage(base)
	}}
	h, err := New(context.Background(), testConfig(t), zerolog.Nop(), WithOpener(opener), WithRunID("run1"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, h.Close()) })
	return h, opener
}

func TestLandingReachableForEveryRole(t *testing.T) {
	h, _ := newHarness(t)
	for _, role := range credentials.AllRoles {
		t.Run(string(role), func(t *testing.T) {
			r, ctx := ForTest(t, h)
			sess, err := r.Login(ctx, role)
			require.NoError(t, err)
			res := r.NavigateTo(ctx, h.Config().App.LandingRoute)
			assert.Equal(t, navigation.OutcomeReached, res.Outcome, res.Message)
			r.Verifier(t).Check("authenticated", check.ExpectAuthenticated(sess))
		})
	}
}

func TestRedirectedToLoginAfterLogout(t *testing.T) {
	h, _ := newHarness(t)
	for _, role := range []credentials.Role{credentials.RoleAdmin, credentials.RoleMember} {
		t.Run(string(role), func(t *testing.T) {
			r, ctx := ForTest(t, h)
			_, err := r.Login(ctx, role)
			require.NoError(t, err)
			require.NoError(t, r.Logout(ctx))

			for _, route := range []string{"/dashboard", "/admin"} {
				res := r.NavigateTo(ctx, route)
				assert.Equal(t, navigation.OutcomeRedirectedToLogin, res.Outcome, route)
			}
		})
	}
}

func TestScenarioAAdminReachesVetting(t *testing.T) {
	h, _ := newHarness(t)
	r, ctx := ForTest(t, h)
	v := r.Verifier(t)

	_, err := r.Login(ctx, credentials.RoleAdmin)
	v.Check("login", err)
	v.Check("vetting reached", check.ExpectReached(r.NavigateTo(ctx, "/admin/vetting")))
	_, err = r.Screenshot(ctx, "vetting")
	v.Check("screenshot", err)
	v.Check("no page errors", check.ExpectNoPageErrors(r.Evidence()))
}

func TestScenarioBMemberDeniedAdmin(t *testing.T) {
	h, _ := newHarness(t)
	r, ctx := ForTest(t, h)
	v := r.Verifier(t)

	_, err := r.Login(ctx, credentials.RoleMember)
	v.Check("login", err)
	res := r.NavigateTo(ctx, "/admin")
	v.Check("admin not reached", check.ExpectNotReached(res))
	assert.Equal(t, navigation.OutcomeForbidden, res.Outcome)
}

func TestScenarioCAdminLoginTwice(t *testing.T) {
	h, _ := newHarness(t)
	r, ctx := ForTest(t, h)

	first, err := r.Login(ctx, credentials.RoleAdmin)
	require.NoError(t, err)
	second, err := r.Login(ctx, credentials.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, first.Authenticated())
	assert.True(t, second.Authenticated())
	assert.Same(t, second, r.Session())
}

func TestUnknownRoleFailsBeforeBrowserUse(t *testing.T) {
	cfg := testConfig(t)
	delete(cfg.Credentials, "guest")
	creds, err := credentials.FromConfig(cfg)
	require.NoError(t, err)

	var page *browsertest.Page
	opener := &browsertest.Opener{New: func() *browsertest.Page {
		page = browsertest.NewApp(users...).NewPage(base)
		return page
	}}
	h, err := New(context.Background(), cfg, zerolog.Nop(), WithOpener(opener), WithCredentials(creds))
	require.NoError(t, err)

	r, ctx := ForTest(t, h)
	_, err = r.Login(ctx, credentials.RoleGuest)
	assert.True(t, harnesserrors.IsUnknownRole(err))
	assert.Empty(t, page.Gotos())
}

func TestEndPersistsAndClosesOnce(t *testing.T) {
	h, opener := newHarness(t)
	ctx := context.Background()

	r, err := h.Begin(ctx, "persisted run")
	require.NoError(t, err)
	_, err = r.Login(ctx, credentials.RoleAdmin)
	require.NoError(t, err)
	_, err = r.Screenshot(ctx, "landing")
	require.NoError(t, err)
	r.NavigateTo(ctx, "/admin/users")

	report, err := r.End(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Screenshots, 1)
	assert.Len(t, report.Navigations, 1)
	assert.False(t, r.Session().Authenticated())
	assert.Equal(t, "teardown", r.Session().EndedBy())
	assert.True(t, opener.Pages()[0].Closed())

	out := h.Config().Evidence.OutputDir
	assert.FileExists(t, filepath.Join(out, "run1", "persisted-run", "report.json"))
	assert.FileExists(t, filepath.Join(out, "run1", "persisted-run", "01-landing.png"))

	_, err = r.End(ctx)
	assert.True(t, harnesserrors.IsCaptureAlreadyStopped(err))
}

func TestRunsAreIsolated(t *testing.T) {
	h, opener := newHarness(t)
	ctx := context.Background()

	a, err := h.Begin(ctx, "a")
	require.NoError(t, err)
	b, err := h.Begin(ctx, "b")
	require.NoError(t, err)

	_, err = a.Login(ctx, credentials.RoleAdmin)
	require.NoError(t, err)
	opener.Pages()[0].EmitPageError("only in a")

	assert.Nil(t, b.Session())
	assert.Len(t, a.Evidence().PageErrors, 1)
	assert.Empty(t, b.Evidence().PageErrors)
	assert.True(t, harnesserrors.IsInvalidSessionState(b.Logout(ctx)))
}

func TestBeginFailsWhenPageCannotOpen(t *testing.T) {
	opener := &browsertest.Opener{Err: fmt.Errorf("browser crashed")}
	h, err := New(context.Background(), testConfig(t), zerolog.Nop(), WithOpener(opener))
	require.NoError(t, err)
	_, err = h.Begin(context.Background(), "x")
	assert.ErrorContains(t, err, "browser crashed")
	assert.Len(t, h.RunID(), 8)
}

func TestPackageDoesNotImportTesting(t *testing.T) {
	pkgs, err := parser.ParseDir(token.NewFileSet(), ".", func(fi fs.FileInfo) bool {
		return !strings.HasSuffix(fi.Name(), "_test.go")
	}, parser.ImportsOnly)
	require.NoError(t, err)
	for _, pkg := range pkgs {
		for name, file := range pkg.Files {
			for _, imp := range file.Imports {
				assert.NotEqual(t, `"testing"`, imp.Path.Value, "%s imports testing", name)
			}
		}
	}
}
