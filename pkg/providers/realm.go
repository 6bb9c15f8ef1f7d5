package providers

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/host"
	"github.com/openfroyo/deckhand/pkg/resources"
)

type realmEntry struct {
	Username string
	Password string
	Roles    []string
}

// rebuildRealm rewrites the realm file from every enabled user, in
// declaration order. Stored hashes are handed back to the password
// formatter so formats with random salts stay stable across runs.
func rebuildRealm(ctx context.Context, env *Env, s *resources.Server) (engine.Result, error) {
	path := s.RealmPath()
	current, _, err := env.System.ReadFile(path)
	if err != nil {
		return engine.Result{}, err
	}
	previous := parseRealm(current)

	var entries []realmEntry
	for _, u := range s.Users {
		if u.Action == engine.ActionDisable {
			continue
		}
		pw, err := resources.FormatPassword(ctx, env.runner(), u, previous[u.Username])
		if err != nil {
			return engine.Result{}, err
		}
		entries = append(entries, realmEntry{Username: u.Username, Password: pw, Roles: u.Roles})
	}

	content, err := env.Renderer.Render(host.TemplateRealm, map[string]any{"Users": entries})
	if err != nil {
		return engine.Result{}, err
	}
	own := s.Ownership(fileMode)
	ok, err := env.System.FileMatches(ctx, path, content, own)
	if err != nil || ok {
		return engine.Result{}, err
	}
	if err := env.System.WriteFile(ctx, path, content, own); err != nil {
		return engine.Result{}, err
	}
	env.Logger.Info().Str("path", path).Int("users", len(entries)).Msg("Realm rebuilt")
	return engine.Result{Changed: true}, nil
}

// parseRealm maps usernames to the stored credential of each
// "user: credential,role..." line.
func parseRealm(data []byte) map[string]string {
	out := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		user, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		cred, _, _ := strings.Cut(strings.TrimSpace(rest), ",")
		out[strings.TrimSpace(user)] = cred
	}
	return out
}
