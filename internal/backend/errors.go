// Package backend defines the error taxonomy shared by every storage adapter.
// Adapters return *Error values so the coordinators can branch on Kind
// without knowing which backend failed.
package backend

import (
	"context"
	"fmt"
	"io/fs"
	"net"
	"net/url"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindOther Kind = iota
	KindNoGrant
	KindPermissionDenied
	KindVersionConflict
	KindNotFound
	KindAuthInvalid
	KindNetworkUnavailable
	KindTimeout
	KindUserCancelled
	KindEmptyInput
	KindUploadFailed
	KindBusy
)

var kindNames = [...]string{
	KindOther:              "other",
	KindNoGrant:            "no_grant",
	KindPermissionDenied:   "permission_denied",
	KindVersionConflict:    "version_conflict",
	KindNotFound:           "not_found",
	KindAuthInvalid:        "auth_invalid",
	KindNetworkUnavailable: "network_unavailable",
	KindTimeout:            "timeout",
	KindUserCancelled:      "user_cancelled",
	KindEmptyInput:         "empty_input",
	KindUploadFailed:       "upload_failed",
	KindBusy:               "busy",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Name identifies a backend in logs and user-facing messages.
type Name string

const (
	Local     Name = "local directory"
	Remote    Name = "remote repository"
	ImageHost Name = "image host"
	Export    Name = "export"
	Draft     Name = "draft store"
	Publish   Name = "publish"
)

type Error struct {
	Backend Name
	Kind    Kind
	Op      string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Backend != "" && e.Op != "":
		return fmt.Sprintf("%s %s: %s", e.Backend, e.Op, msg)
	case e.Backend != "":
		return fmt.Sprintf("%s: %s", e.Backend, msg)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Cause lets errors.Cause walk through to the underlying failure.
func (e *Error) Cause() error { return e.Err }

// Is matches sentinel values such as ErrNoGrant by kind, and by backend when
// the sentinel names one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind && (t.Backend == "" || t.Backend == e.Backend)
}

var (
	ErrNoGrant          = &Error{Kind: KindNoGrant}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrVersionConflict  = &Error{Kind: KindVersionConflict}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrAuthInvalid      = &Error{Kind: KindAuthInvalid}
	ErrNetwork          = &Error{Kind: KindNetworkUnavailable}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrUserCancelled    = &Error{Kind: KindUserCancelled}
	ErrEmptyInput       = &Error{Kind: KindEmptyInput}
	ErrUploadFailed     = &Error{Kind: KindUploadFailed}
	ErrBusy             = &Error{Kind: KindBusy}
)

// New builds an *Error, attaching a stack to err.
func New(b Name, k Kind, op string, err error) *Error {
	if err == nil {
		err = errors.New(k.String())
	} else {
		err = errors.WithStack(err)
	}
	return &Error{Backend: b, Kind: k, Op: op, Err: err}
}

// Errorf is New with a formatted message.
func Errorf(b Name, k Kind, op, format string, args ...any) *Error {
	return &Error{Backend: b, Kind: k, Op: op, Err: errors.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or a kind
// guessed from well known standard library errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindOther
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return classify(err)
}

func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// Classify converts arbitrary errors into *Error. Values that already are
// *Error pass through untouched.
func Classify(b Name, op string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return New(b, classify(err), op, err)
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindUserCancelled
	case errors.Is(err, fs.ErrPermission):
		return KindPermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return KindNetworkUnavailable
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return KindNetworkUnavailable
	}
	return KindOther
}

var hints = map[Kind]string{
	KindNoGrant:            "no directory has been granted",
	KindPermissionDenied:   "permission denied",
	KindVersionConflict:    "the file changed remotely",
	KindNotFound:           "not found",
	KindAuthInvalid:        "credentials were rejected",
	KindNetworkUnavailable: "network unavailable",
	KindTimeout:            "timed out",
	KindUserCancelled:      "cancelled",
	KindEmptyInput:         "nothing to publish",
	KindUploadFailed:       "upload failed",
	KindBusy:               "another publish is in progress",
}

// Describe renders err for a human: the backend, a hint for the kind and the
// underlying message.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var be *Error
	if !errors.As(err, &be) {
		return err.Error()
	}
	hint, ok := hints[be.Kind]
	if !ok {
		hint = "failed"
	}
	if be.Backend == "" {
		return fmt.Sprintf("%s (%s)", hint, err.Error())
	}
	if be.Err == nil {
		return fmt.Sprintf("%s: %s", be.Backend, hint)
	}
	return fmt.Sprintf("%s: %s (%s)", be.Backend, hint, errors.Cause(be.Err).Error())
}
