package resources

import (
	"errors"
	"testing"

	"github.com/openfroyo/deckhand/pkg/engine"
)

func TestAttrPrecedence(t *testing.T) {
	lazy := func() (string, error) { return "lazy", nil }

	tests := []struct {
		name string
		attr *Attr[string]
		want string
	}{
		{"static", NewAttr("a", "static"), "static"},
		{"lazy over static", NewAttr("a", "static").Default(lazy), "lazy"},
		{"explicit over lazy", NewAttr("a", "static").Default(lazy).Set("explicit"), "explicit"},
		{"explicit empty string", NewAttr("a", "static").Set(""), ""},
		{"SetIf false keeps default", NewAttr("a", "static").SetIf(false, "x"), "static"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.attr.Get()
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Get() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAttrLazyDefaultRunsOnce(t *testing.T) {
	calls := 0
	a := NewAttr("path", "").Default(func() (string, error) {
		calls++
		return "/var/lib/rundeck/projects/cron", nil
	})

	for i := 0; i < 3; i++ {
		if _, err := a.Get(); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("lazy default ran %d times, want 1", calls)
	}
}

func TestAttrErrorIsMemoized(t *testing.T) {
	calls := 0
	a := NewAttr("port", 0).Check(func(p int) error {
		calls++
		return errors.New("out of range")
	})

	_, err1 := a.Get()
	_, err2 := a.Get()
	if err1 == nil || err2 == nil {
		t.Fatal("expected check error on every read")
	}
	if calls != 1 {
		t.Errorf("check ran %d times, want 1", calls)
	}
}

func TestAttrCycle(t *testing.T) {
	a := NewAttr("a", "")
	b := NewAttr("b", "")
	a.Default(b.Get)
	b.Default(a.Get)

	_, err := a.Get()
	if !engine.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolverKeepsFirstError(t *testing.T) {
	r := &resolver{id: engine.ResourceID{Kind: engine.KindProject, Name: "cron"}}

	get(r, NewAttr("first", "").Check(required("first")))
	get(r, NewAttr("second", "").Check(required("second")))

	var ee *engine.EngineError
	if !errors.As(r.err, &ee) {
		t.Fatalf("expected EngineError, got %v", r.err)
	}
	if ee.Details["attribute"] != "first" {
		t.Errorf("attribute = %v, want first", ee.Details["attribute"])
	}
	if ee.Resource != "project[cron]" {
		t.Errorf("resource = %q", ee.Resource)
	}
	if ee.Code != engine.ErrCodeRequired {
		t.Errorf("code = %q, want %q", ee.Code, engine.ErrCodeRequired)
	}
}

func TestAttrChecksCompose(t *testing.T) {
	tests := []struct {
		name  string
		value string
		code  string
	}{
		{"first check fails", "", engine.ErrCodeRequired},
		{"second check fails", "a\nb", engine.ErrCodeValidation},
		{"both pass", "secret", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAttr("password", tt.value).Check(required("password")).Check(validateRealmPassword).Get()
			if tt.code == "" {
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				return
			}
			var ee *engine.EngineError
			if !errors.As(err, &ee) || ee.Code != tt.code {
				t.Errorf("Get() error = %v, want code %s", err, tt.code)
			}
		})
	}
}
