package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/bcx/internal/models"
	"github.com/desertthunder/bcx/internal/services"
	"github.com/desertthunder/bcx/internal/shared"
	"github.com/desertthunder/bcx/internal/store"
	tu "github.com/desertthunder/bcx/internal/testing"
	"github.com/desertthunder/bcx/internal/ui"
)

// memorySecrets is an in-memory [shared.SecretStore].
type memorySecrets struct {
	items map[string]string
}

func newMemorySecrets() *memorySecrets { return &memorySecrets{items: map[string]string{}} }

func (m *memorySecrets) Get(key string) (string, error) {
	v, ok := m.items[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingCredentials, key)
	}
	return v, nil
}

func (m *memorySecrets) Set(key, value string) error {
	m.items[key] = value
	return nil
}

func (m *memorySecrets) Remove(key string) error {
	delete(m.items, key)
	return nil
}

// testEnv is a runner wired to temp files, an in-memory keyring and mocked mail and Bandcamp services.
type testEnv struct {
	dir      string
	config   string
	out      *bytes.Buffer
	logs     *bytes.Buffer
	secrets  *memorySecrets
	mailbox  *tu.MockMailbox
	resolver *tu.MockResolver
	dialErr  error
	opened   []string
	runner   *Runner
}

func newTestEnv(t *testing.T, extraConfig string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:      dir,
		config:   filepath.Join(dir, "config.toml"),
		out:      &bytes.Buffer{},
		logs:     &bytes.Buffer{},
		secrets:  newMemorySecrets(),
		resolver: tu.NewMockResolver(),
	}

	env.mailbox = tu.NewMockMailbox(map[string][]services.Message{
		"Bandcamp/Rock": {{
			UID:       7,
			MessageID: "<7@bandcamp.com>",
			Subject:   "New release fresh",
			From:      "Bandcamp",
			Date:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			Body:      `<a href="https://artist.bandcamp.com/album/fresh">listen</a>`,
		}},
	})
	env.resolver.Embeds["https://artist.bandcamp.com/album/fresh"] = services.BuildEmbed("album", "300")

	config := fmt.Sprintf(`[mail]
username = "me@example.com"
folders = ["Bandcamp/Rock:Rock"]

[collection]
path = %q
synced_path = %q
snapshot_path = %q

[site]
output_dir = %q

[database]
path = %q
%s`,
		env.path("bandcamp_data.json"),
		env.path("bandcamp_data_synced.json"),
		env.path("browser_data.json"),
		env.path("docs"),
		env.path("bcx.db"),
		extraConfig,
	)
	tu.MustWriteFile(t, env.config, config)

	env.runner = NewRunner(RunnerOpts{
		Logger:  shared.NewLogger(env.logs),
		Output:  env.out,
		Input:   strings.NewReader(""),
		Secrets: env.secrets,
		Mailbox: func(ctx context.Context) (services.Mailbox, error) {
			if env.dialErr != nil {
				return nil, env.dialErr
			}
			return env.mailbox, nil
		},
		Resolver: env.resolver,
		Browser: func(target string) error {
			env.opened = append(env.opened, target)
			return nil
		},
	})
	return env
}

func (e *testEnv) path(name string) string { return filepath.Join(e.dir, name) }

func (e *testEnv) run(args ...string) error {
	e.out.Reset()
	full := append([]string{"bcx", "--config", e.config}, args...)
	return e.runner.app().Run(context.Background(), full)
}

func (e *testEnv) writeCollection(t *testing.T, c models.Collection) {
	t.Helper()
	if err := store.SaveCollection(e.path("bandcamp_data.json"), c); err != nil {
		t.Fatalf("failed to write collection: %v", err)
	}
}

func (e *testEnv) loadSynced(t *testing.T) models.Collection {
	t.Helper()
	c, err := store.LoadCollection(e.path("bandcamp_data_synced.json"))
	if err != nil {
		t.Fatalf("failed to read synced collection: %v", err)
	}
	return c
}

func ids(albums []models.Album) []string {
	out := make([]string, 0, len(albums))
	for _, a := range albums {
		id, _ := a.Identifier()
		out = append(out, id)
	}
	return out
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			secrets := newMemorySecrets()
			resolver := tu.NewMockResolver()

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Secrets:    secrets,
				Resolver:   resolver,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.secrets != secrets {
				t.Error("expected secrets to be set")
			}
			if runner.embedResolver() != resolver {
				t.Error("expected resolver to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})
			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{HTTPClient: nil})
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})

		t.Run("with nil mailbox dials the configured account", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.mailbox == nil {
				t.Fatal("expected default mailbox factory")
			}
			if _, err := runner.mailbox(context.Background()); !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials without a username, got %v", err)
			}
		})

		t.Run("oauth mailbox needs a refresh token", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Mail.Username = "me@example.com"
			config.Mail.Auth = "oauth"
			config.OAuth.ClientID = "client"
			runner := NewRunner(RunnerOpts{Config: config, Secrets: newMemorySecrets()})

			if _, err := runner.mailbox(context.Background()); !errors.Is(err, shared.ErrNoRefreshToken) {
				t.Errorf("expected ErrNoRefreshToken, got %v", err)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
			if err := runner.writePlain("test"); err == nil {
				t.Fatal("expected error from failing writer")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		names := map[string]bool{}
		for i, cmd := range runner.register() {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "auth", "mail", "site", "sync", "cache", "collection", "browse"} {
			if !names[want] {
				t.Errorf("expected %s command to be registered", want)
			}
		}
	})

	t.Run("loadConfig", func(t *testing.T) {
		t.Run("reads the config file", func(t *testing.T) {
			env := newTestEnv(t, "")
			if err := env.run("collection", "stats", "--input", env.path("missing.json")); err == nil {
				t.Fatal("expected missing collection error")
			}
			if env.runner.config.Mail.Username != "me@example.com" {
				t.Errorf("config not loaded, username %q", env.runner.config.Mail.Username)
			}
			if env.runner.configPath != env.config {
				t.Errorf("expected configPath %s, got %s", env.config, env.runner.configPath)
			}
		})

		t.Run("rejects invalid config", func(t *testing.T) {
			env := newTestEnv(t, "")
			tu.MustWriteFile(t, env.config, "[mail]\nsecurity = \"none\"\n")
			if err := env.run("collection", "stats"); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config writes defaults once", func(t *testing.T) {
		env := newTestEnv(t, "")
		path := env.path("fresh.toml")

		if err := env.runner.app().Run(context.Background(), []string{"bcx", "--config", path, "setup", "config"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, path)
		if _, err := shared.LoadConfig(path); err != nil {
			t.Errorf("written config does not load: %v", err)
		}

		err := env.runner.app().Run(context.Background(), []string{"bcx", "--config", path, "setup", "config"})
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for existing file, got %v", err)
		}
	})

	t.Run("database runs migrations", func(t *testing.T) {
		env := newTestEnv(t, "")
		if err := env.run("setup", "database"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, env.path("bcx.db"))

		if err := env.run("setup", "database", "--rollback"); err != nil {
			t.Fatalf("expected rollback to succeed, got %v", err)
		}
		if !strings.Contains(env.out.String(), "Rolled back") {
			t.Errorf("unexpected output %s", env.out.String())
		}
	})

	t.Run("password from flag", func(t *testing.T) {
		env := newTestEnv(t, "")
		if err := env.run("setup", "password", "--password", "hunter2"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		key := shared.PasswordKey("imap.gmail.com", "me@example.com")
		if env.secrets.items[key] != "hunter2" {
			t.Errorf("expected stored password, got %q", env.secrets.items[key])
		}
	})

	t.Run("password from input", func(t *testing.T) {
		env := newTestEnv(t, "")
		env.runner.input = strings.NewReader("s3cret\n")
		if err := env.run("setup", "password"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if env.secrets.items[shared.PasswordKey("imap.gmail.com", "me@example.com")] != "s3cret" {
			t.Error("expected password read from input")
		}
	})

	t.Run("empty password is rejected", func(t *testing.T) {
		env := newTestEnv(t, "")
		env.runner.input = strings.NewReader("\n")
		if err := env.run("setup", "password"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("password removal", func(t *testing.T) {
		env := newTestEnv(t, "")
		key := shared.PasswordKey("imap.gmail.com", "me@example.com")
		env.secrets.items[key] = "old"
		if err := env.run("setup", "password", "--remove"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := env.secrets.items[key]; ok {
			t.Error("expected password removed")
		}
	})
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestAuthOAuth(t *testing.T) {
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokens.Close()

	port := freePort(t)
	env := newTestEnv(t, fmt.Sprintf(`
[oauth]
client_id = "client"
auth_url = "%s/auth"
token_url = "%s/token"
redirect_uri = "http://127.0.0.1:%d/callback"

[server]
host = "127.0.0.1"
port = %d
`, tokens.URL, tokens.URL, port, port))

	callbackErr := make(chan error, 1)
	env.runner.browser = func(target string) error {
		u, err := url.Parse(target)
		if err != nil {
			return err
		}
		state := u.Query().Get("state")
		go func() {
			resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/callback?state=%s&code=good", port, url.QueryEscape(state)))
			if err == nil {
				resp.Body.Close()
			}
			callbackErr <- err
		}()
		return nil
	}

	if err := env.run("auth", "oauth"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := <-callbackErr; err != nil {
		t.Fatalf("callback request failed: %v", err)
	}
	if got := env.secrets.items[shared.RefreshTokenKey("imap.gmail.com", "me@example.com")]; got != "rt" {
		t.Errorf("expected refresh token rt, got %q", got)
	}
	if !strings.Contains(env.out.String(), "Authorization complete") {
		t.Errorf("unexpected output %s", env.out.String())
	}
}

func TestMailCommands(t *testing.T) {
	t.Run("folders", func(t *testing.T) {
		env := newTestEnv(t, "")
		if err := env.run("mail", "folders"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.out.String(), "Bandcamp/Rock") {
			t.Errorf("expected folder listed, got %s", env.out.String())
		}
		if !env.mailbox.Closed {
			t.Error("expected mailbox closed")
		}
	})

	t.Run("export writes the collection", func(t *testing.T) {
		env := newTestEnv(t, "")
		if err := env.run("mail", "export"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		c, err := store.LoadCollection(env.path("bandcamp_data.json"))
		if err != nil {
			t.Fatalf("failed to read collection: %v", err)
		}
		if got := ids(c["Rock"]); len(got) != 1 || got[0] != "album_300" {
			t.Errorf("expected album_300 in Rock, got %v", got)
		}
		if len(env.mailbox.Marked["Bandcamp/Rock"]) != 1 {
			t.Errorf("expected message marked read, got %v", env.mailbox.Marked)
		}
		if len(env.mailbox.Deleted) != 0 {
			t.Errorf("expected nothing deleted without --delete, got %v", env.mailbox.Deleted)
		}
	})

	t.Run("export deletes processed messages", func(t *testing.T) {
		env := newTestEnv(t, "")
		if err := env.run("mail", "export", "--delete"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := env.mailbox.Deleted["Bandcamp/Rock"]; len(got) != 1 || got[0] != 7 {
			t.Errorf("expected uid 7 deleted, got %v", env.mailbox.Deleted)
		}
		if !strings.Contains(env.out.String(), "Deleted:    1") {
			t.Errorf("expected deleted count in output, got %s", env.out.String())
		}
	})

	t.Run("export leaves messages unread when the write fails", func(t *testing.T) {
		env := newTestEnv(t, "")
		out := filepath.Join(env.config, "bandcamp_data.json")
		if err := env.run("mail", "export", "--delete", "--output", out); err == nil {
			t.Fatal("expected write error")
		}
		if len(env.mailbox.Marked) != 0 || len(env.mailbox.Deleted) != 0 {
			t.Errorf("expected server untouched, got marked %v deleted %v", env.mailbox.Marked, env.mailbox.Deleted)
		}
		if !env.mailbox.Closed {
			t.Error("expected mailbox closed")
		}
	})

	t.Run("export honours no-mark and folder flags", func(t *testing.T) {
		env := newTestEnv(t, "")
		out := env.path("custom.json")
		if err := env.run("mail", "export", "--no-mark", "--folder", "Bandcamp/Rock:Indie", "--output", out); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		c, err := store.LoadCollection(out)
		if err != nil {
			t.Fatal(err)
		}
		if len(c["Indie"]) != 1 {
			t.Errorf("expected Indie genre from --folder, got %v", c.Genres())
		}
		if len(env.mailbox.Marked) != 0 {
			t.Error("expected nothing marked with --no-mark")
		}
	})

	t.Run("cached messages skip resolution", func(t *testing.T) {
		env := newTestEnv(t, "")
		if err := env.run("mail", "export", "--no-mark"); err != nil {
			t.Fatal(err)
		}
		if err := env.run("mail", "export", "--no-mark"); err != nil {
			t.Fatal(err)
		}
		if len(env.resolver.Calls) != 1 {
			t.Errorf("expected one resolution across two exports, got %d", len(env.resolver.Calls))
		}

		if err := env.run("cache", "stats", "--json"); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(env.out.String(), `"Total": 1`) {
			t.Errorf("expected one cached message, got %s", env.out.String())
		}

		if err := env.run("cache", "clear"); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(env.out.String(), "Deleted 1 cached messages") {
			t.Errorf("unexpected clear output %s", env.out.String())
		}
	})

	t.Run("no folders", func(t *testing.T) {
		env := newTestEnv(t, "")
		tu.MustWriteFile(t, env.config, "")
		if err := env.run("mail", "export"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestSyncCommand(t *testing.T) {
	setup := func(t *testing.T) *testEnv {
		env := newTestEnv(t, "")
		env.writeCollection(t, models.Collection{
			"Rock": {tu.Album("Rock", "album", "1"), tu.Album("Rock", "album", "2")},
			"Jazz": {tu.Album("Jazz", "track", "3")},
		})
		tu.MustWriteFile(t, env.path("browser_data.json"),
			`{"bandcamp_listened_Rock": "[\"album_1\"]", "bandcamp_listened_Polka": ["album_9"], "theme": "dark"}`)
		return env
	}

	t.Run("removes listened releases", func(t *testing.T) {
		env := setup(t)
		if err := env.run("sync"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		synced := env.loadSynced(t)
		if got := ids(synced["Rock"]); len(got) != 1 || got[0] != "album_2" {
			t.Errorf("expected only album_2 in Rock, got %v", got)
		}
		if len(synced["Jazz"]) != 1 {
			t.Errorf("expected Jazz untouched, got %v", ids(synced["Jazz"]))
		}

		out := env.out.String()
		for _, want := range []string{"TOTAL", "bandcamp_listened_Polka", "removal only"} {
			if !strings.Contains(out, want) {
				t.Errorf("report missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("dry run writes nothing", func(t *testing.T) {
		env := setup(t)
		if err := env.run("sync", "--dry-run"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, err := os.Stat(env.path("bandcamp_data_synced.json")); !os.IsNotExist(err) {
			t.Error("expected no synced file on dry run")
		}
		if !strings.Contains(env.out.String(), "Dry run") {
			t.Error("expected dry run notice")
		}
	})

	t.Run("fetch merges fresh releases", func(t *testing.T) {
		env := setup(t)
		if err := env.run("sync", "--fetch", "--no-mark"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		got := ids(env.loadSynced(t)["Rock"])
		if len(got) != 2 || got[0] != "album_2" || got[1] != "album_300" {
			t.Errorf("expected [album_2 album_300], got %v", got)
		}
	})

	t.Run("fetch marks messages after the write", func(t *testing.T) {
		env := setup(t)
		if err := env.run("sync", "--fetch", "--delete"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, env.path("bandcamp_data_synced.json"))
		if got := env.mailbox.Marked["Bandcamp/Rock"]; len(got) != 1 || got[0] != 7 {
			t.Errorf("expected uid 7 marked, got %v", env.mailbox.Marked)
		}
		if got := env.mailbox.Deleted["Bandcamp/Rock"]; len(got) != 1 || got[0] != 7 {
			t.Errorf("expected uid 7 deleted, got %v", env.mailbox.Deleted)
		}
	})

	t.Run("fetch on a dry run leaves messages unread", func(t *testing.T) {
		env := setup(t)
		if err := env.run("sync", "--fetch", "--dry-run", "--no-cache", "--delete"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, err := os.Stat(env.path("bandcamp_data_synced.json")); !os.IsNotExist(err) {
			t.Error("expected no synced file on dry run")
		}
		if len(env.mailbox.Marked) != 0 || len(env.mailbox.Deleted) != 0 {
			t.Errorf("expected server untouched, got marked %v deleted %v", env.mailbox.Marked, env.mailbox.Deleted)
		}
	})

	t.Run("failed sync leaves messages unread", func(t *testing.T) {
		env := setup(t)
		tu.MustWriteFile(t, env.path("browser_data.json"), `{"bandcamp_listened_Rock": ["album_1", ""]}`)
		if err := env.run("sync", "--fetch", "--delete"); !errors.Is(err, shared.ErrMalformedSnapshot) {
			t.Fatalf("expected ErrMalformedSnapshot, got %v", err)
		}
		if _, err := os.Stat(env.path("bandcamp_data_synced.json")); !os.IsNotExist(err) {
			t.Error("expected no output on failure")
		}
		if len(env.mailbox.Marked) != 0 || len(env.mailbox.Deleted) != 0 {
			t.Errorf("expected server untouched, got marked %v deleted %v", env.mailbox.Marked, env.mailbox.Deleted)
		}
		if !env.mailbox.Closed {
			t.Error("expected mailbox closed")
		}
	})

	t.Run("empty fetch still counts as fetched", func(t *testing.T) {
		env := setup(t)
		env.mailbox.Folders["Bandcamp/Rock"] = nil
		if err := env.run("sync", "--fetch"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if strings.Contains(env.out.String(), "removal only") {
			t.Errorf("an empty fetch is not a removal-only run:\n%s", env.out.String())
		}

		if err := env.run("sync", "history"); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(env.out.String(), "(fetched)") {
			t.Errorf("expected run recorded as fetched, got %s", env.out.String())
		}
	})

	t.Run("fetch failure falls back to removal only", func(t *testing.T) {
		env := setup(t)
		env.dialErr = fmt.Errorf("%w: connection refused", shared.ErrMailSource)
		if err := env.run("sync", "--fetch"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := ids(env.loadSynced(t)["Rock"]); len(got) != 1 || got[0] != "album_2" {
			t.Errorf("expected removal only, got %v", got)
		}
		if !strings.Contains(env.logs.String(), "removal only") {
			t.Error("expected fallback warning in logs")
		}
	})

	t.Run("history blocks removed releases", func(t *testing.T) {
		env := setup(t)
		if err := env.run("sync"); err != nil {
			t.Fatal(err)
		}

		// album_1 comes back from the mailbox after being removed, with an empty snapshot
		env.mailbox.Folders["Bandcamp/Rock"][0].Body = `<a href="https://artist.bandcamp.com/album/one">listen</a>`
		env.resolver.Embeds["https://artist.bandcamp.com/album/one"] = services.BuildEmbed("album", "1")
		tu.MustWriteFile(t, env.path("browser_data.json"), `{}`)

		if err := env.run("sync", "--fetch", "--no-cache", "--no-mark", "--input", env.path("bandcamp_data_synced.json")); err != nil {
			t.Fatal(err)
		}
		if got := ids(env.loadSynced(t)["Rock"]); len(got) != 1 || got[0] != "album_2" {
			t.Errorf("expected album_1 suppressed by history, got %v", got)
		}

		if err := env.run("sync", "--fetch", "--no-cache", "--no-mark", "--no-history", "--input", env.path("bandcamp_data_synced.json")); err != nil {
			t.Fatal(err)
		}
		if got := ids(env.loadSynced(t)["Rock"]); len(got) != 2 {
			t.Errorf("expected album_1 re-added with --no-history, got %v", got)
		}
	})

	t.Run("history lists runs", func(t *testing.T) {
		env := setup(t)
		if err := env.run("sync"); err != nil {
			t.Fatal(err)
		}
		if err := env.run("sync", "history"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(env.out.String(), "-1 +0 = 2") {
			t.Errorf("unexpected history output %s", env.out.String())
		}
	})

	t.Run("markdown and json reports", func(t *testing.T) {
		env := setup(t)
		if err := env.run("sync", "--dry-run", "--markdown"); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(env.out.String(), "# Sync Report") {
			t.Errorf("expected markdown report, got %s", env.out.String())
		}

		if err := env.run("sync", "--dry-run", "--json"); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(env.out.String(), `"unmatched_keys"`) {
			t.Errorf("expected json report, got %s", env.out.String())
		}
	})

	t.Run("malformed snapshot fails", func(t *testing.T) {
		env := setup(t)
		tu.MustWriteFile(t, env.path("browser_data.json"), `["album_1"]`)
		if err := env.run("sync"); !errors.Is(err, shared.ErrMalformedSnapshot) {
			t.Errorf("expected ErrMalformedSnapshot, got %v", err)
		}
		if _, err := os.Stat(env.path("bandcamp_data_synced.json")); !os.IsNotExist(err) {
			t.Error("expected no output on failure")
		}
	})
}

func TestSiteCommands(t *testing.T) {
	env := newTestEnv(t, "")
	env.writeCollection(t, models.Collection{
		"Rock":    {tu.Album("Rock", "album", "1")},
		"Hip Hop": {tu.Album("Hip Hop", "album", "2")},
	})

	t.Run("generate", func(t *testing.T) {
		if err := env.run("site", "generate", "--open"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, f := range []string{"index.html", "sync_tools.html", "Rock.html", "Hip_Hop.html"} {
			tu.AssertFileExists(t, env.path(filepath.Join("docs", f)))
		}
		if len(env.opened) != 1 || !strings.HasSuffix(env.opened[0], "index.html") {
			t.Errorf("expected index opened, got %v", env.opened)
		}
	})

	t.Run("clean removes stale pages", func(t *testing.T) {
		stale := env.path(filepath.Join("docs", "Polka.html"))
		tu.MustWriteFile(t, stale, "<html></html>")

		if err := env.run("site", "generate", "--clean"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, err := os.Stat(stale); !os.IsNotExist(err) {
			t.Error("expected stale page removed")
		}
	})

	t.Run("serve needs a generated site", func(t *testing.T) {
		err := env.run("site", "serve", "--dir", env.path("nowhere"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected ErrNotExist, got %v", err)
		}
	})
}

func TestCollectionCommands(t *testing.T) {
	env := newTestEnv(t, "")
	env.writeCollection(t, models.Collection{
		"Rock": {tu.Album("Rock", "album", "1"), {URL: "https://artist.bandcamp.com/album/x", Subject: "No player"}},
	})

	t.Run("stats", func(t *testing.T) {
		if err := env.run("collection", "stats"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := env.out.String()
		if !strings.Contains(out, "1 without player id") || !strings.Contains(out, "2 releases in 1 genres") {
			t.Errorf("unexpected stats output %s", out)
		}
	})

	t.Run("export csv", func(t *testing.T) {
		out := env.path("export.csv")
		if err := env.run("collection", "export", "--output", out); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.HasPrefix(tu.MustReadFile(t, out), "Genre,ID,Subject") {
			t.Error("expected CSV header")
		}
	})

	t.Run("export with explicit format", func(t *testing.T) {
		out := env.path("export.out")
		if err := env.run("collection", "export", "--output", out, "--format", "md"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(tu.MustReadFile(t, out), "## Rock (2)") {
			t.Errorf("expected markdown export, got %s", tu.MustReadFile(t, out))
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		err := env.run("collection", "export", "--output", env.path("export.out"))
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

type fakeProgram struct{ model tea.Model }

func (p fakeProgram) Run() (tea.Model, error) { return p.model, nil }

func TestBrowse(t *testing.T) {
	var got *ui.Model
	orig := newProgram
	newProgram = func(m tea.Model) program {
		got = m.(*ui.Model)
		return fakeProgram{model: m}
	}
	t.Cleanup(func() { newProgram = orig })

	env := newTestEnv(t, "")
	env.writeCollection(t, models.Collection{"Rock": {tu.Album("Rock", "album", "1")}})
	tu.MustWriteFile(t, env.path("browser_data.json"), `{"bandcamp_listened_Rock": ["album_1"], "bandcamp_listened_Polka": ["album_9"]}`)

	logPath := env.path(filepath.Join("tmp", "browse.log"))
	if err := env.run("browse", "--log", logPath); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got == nil {
		t.Fatal("expected program to receive the model")
	}

	snapshot := got.Snapshot()
	if ids := snapshot["bandcamp_listened_Rock"]; len(ids) != 1 || ids[0] != "album_1" {
		t.Errorf("expected loaded marks, got %v", snapshot)
	}
	if _, ok := snapshot["bandcamp_listened_Polka"]; !ok {
		t.Error("expected unknown genre keys preserved")
	}
	tu.AssertFileExists(t, logPath)
}
