package backend

import (
	"context"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindOther},
		{"typed", New(Remote, KindVersionConflict, "put", nil), KindVersionConflict},
		{"wrapped typed", errors.Wrap(New(Local, KindNoGrant, "write", nil), "publish"), KindNoGrant},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"cancelled", errors.Wrap(context.Canceled, "x"), KindUserCancelled},
		{"permission", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, KindPermissionDenied},
		{"not exist", &os.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}, KindNotFound},
		{"net timeout", &url.Error{Op: "Get", URL: "http://x", Err: timeoutErr{}}, KindTimeout},
		{"url error", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("connection refused")}, KindNetworkUnavailable},
		{"plain", errors.New("boom"), KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSentinelMatching(t *testing.T) {
	err := errors.Wrap(New(Remote, KindAuthInvalid, "fetch", errors.New("401")), "push")

	if !errors.Is(err, ErrAuthInvalid) {
		t.Error("Expected wrapped error to match ErrAuthInvalid")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("Expected no match against a different kind")
	}
	if !errors.Is(err, &Error{Kind: KindAuthInvalid, Backend: Remote}) {
		t.Error("Expected match when sentinel names the same backend")
	}
	if errors.Is(err, &Error{Kind: KindAuthInvalid, Backend: Local}) {
		t.Error("Expected no match when sentinel names another backend")
	}
}

func TestClassifyPassesTypedErrorsThrough(t *testing.T) {
	orig := New(ImageHost, KindUploadFailed, "upload", nil)
	if got := Classify(Local, "write", orig); got != orig {
		t.Errorf("Expected the same *Error back, got %v", got)
	}
	if Classify(Local, "write", nil) != nil {
		t.Error("Expected nil for nil")
	}

	got := Classify(Local, "write", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission})
	var be *Error
	if !errors.As(got, &be) || be.Backend != Local || be.Kind != KindPermissionDenied {
		t.Errorf("Expected local permission error, got %#v", got)
	}
}

func TestDescribe(t *testing.T) {
	err := New(Remote, KindAuthInvalid, "put", errors.New("Bad credentials"))
	got := Describe(err)
	if !strings.Contains(got, "remote repository") || !strings.Contains(got, "credentials were rejected") || !strings.Contains(got, "Bad credentials") {
		t.Errorf("Unexpected description %q", got)
	}

	if Describe(nil) != "" {
		t.Error("Expected empty description for nil")
	}
	if Describe(errors.New("plain")) != "plain" {
		t.Error("Expected plain errors to be rendered as-is")
	}
}

func TestErrorString(t *testing.T) {
	err := Errorf(Local, KindNoGrant, "write", "no directory for %s", "a.md")
	if err.Error() != "local directory write: no directory for a.md" {
		t.Errorf("Unexpected message %q", err.Error())
	}
	if KindBusy.String() != "busy" {
		t.Errorf("Unexpected kind name %q", KindBusy.String())
	}
}
