// Command dailywrite publishes the journal draft from a terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/dailywrite/internal/app"
	"github.com/debemdeboas/dailywrite/internal/backend"
	"github.com/debemdeboas/dailywrite/internal/config"
	"github.com/debemdeboas/dailywrite/internal/logger"
	"github.com/debemdeboas/dailywrite/internal/model"
	"github.com/debemdeboas/dailywrite/internal/prompt"
)

const usage = `Usage: dailywrite [-config file] <command> [args]

Commands:
  publish [-file f]           publish the draft, or the contents of f
  paste [-interactive] <img>  store an image and insert it into the draft
  grant <dir> | -revoke       choose the directory journals are written to, or forget it
  draft show|clear|set [f]    inspect or replace the draft (set reads stdin without f)
  history [-n count]          list recent publish attempts
  check                       check that the remote repository is reachable
`

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// console is where a command reads answers and writes results.
type console struct {
	in          io.Reader
	out         io.Writer
	errOut      io.Writer
	interactive bool
}

func (c console) prompter() prompt.Prompter {
	if c.interactive {
		return prompt.NewTerminal(c.in, c.out)
	}
	// Unanswered questions are dismissed: conflicts and failures cancel.
	return prompt.NewScripted()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], console{
		in:          os.Stdin,
		out:         os.Stdout,
		errOut:      os.Stderr,
		interactive: prompt.IsInteractive(os.Stdin),
	}))
}

func run(ctx context.Context, args []string, con console) int {
	fs := flag.NewFlagSet("dailywrite", flag.ContinueOnError)
	fs.SetOutput(con.errOut)
	fs.Usage = func() { fmt.Fprint(con.errOut, usage) }
	configPath := fs.String("config", "config.yaml", "path to the config file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	app.SetLoggers(logger.NewWithWriter("", zerolog.ConsoleWriter{Out: con.errOut, TimeFormat: time.Kitchen}))
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(con.errOut, err)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(con.errOut, "Error loading config: %v\n", err)
		return exitError
	}
	app.SetLoggers(logger.NewWithWriter(cfg.Logging.Level, zerolog.ConsoleWriter{Out: con.errOut, TimeFormat: time.Kitchen}))

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(con.errOut, "Error: %v\n", err)
		return exitError
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(con.errOut, "Error closing: %v\n", err)
		}
	}()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "publish":
		err = publishCmd(ctx, a, rest, con)
	case "paste":
		err = pasteCmd(ctx, a, rest, con)
	case "grant":
		err = grantCmd(ctx, a, rest, con)
	case "draft":
		err = draftCmd(a, rest, con)
	case "history":
		err = historyCmd(a, rest, con)
	case "check":
		err = checkCmd(ctx, a, con)
	default:
		fmt.Fprintf(con.errOut, "Unknown command %q\n", cmd)
		fs.Usage()
		return exitUsage
	}

	var uerr usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &uerr):
		fmt.Fprintf(con.errOut, "%s\n\n%s", uerr, usage)
		return exitUsage
	default:
		fmt.Fprintf(con.errOut, "Error: %s\n", backend.Describe(err))
		return exitError
	}
}

type usageError string

func (e usageError) Error() string { return string(e) }

func publishCmd(ctx context.Context, a *app.App, args []string, con console) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	fs.SetOutput(con.errOut)
	file := fs.String("file", "", "publish this file instead of the draft")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	var (
		out model.PublishOutcome
		err error
	)
	if *file != "" {
		data, rerr := os.ReadFile(*file)
		if rerr != nil {
			return errors.Wrapf(rerr, "read %s", *file)
		}
		out, err = a.Publisher.Publish(ctx, con.prompter(), string(data), a.Config())
	} else {
		out, err = a.Publish(ctx, con.prompter())
	}

	if out.ID != "" {
		printOutcome(con.out, out)
	}
	return err
}

func printOutcome(w io.Writer, out model.PublishOutcome) {
	step := func(name string, r model.StepResult) {
		switch r.Status {
		case model.StatusOK:
			fmt.Fprintf(w, "%-7s ok      %s\n", name, r.Path)
		case model.StatusFailed:
			fmt.Fprintf(w, "%-7s failed  %s\n", name, r.Reason)
		default:
			fmt.Fprintf(w, "%-7s %s\n", name, r.Status)
		}
	}
	step("local", out.Local)
	step("remote", out.Remote)
	if out.ExportedTo != "" {
		fmt.Fprintf(w, "exported to %s\n", out.ExportedTo)
	}
	if out.Action == "settings" {
		fmt.Fprintln(w, "review the config file and run publish again")
	}
	if out.DraftCleared {
		fmt.Fprintln(w, "draft cleared")
	}
}

func pasteCmd(ctx context.Context, a *app.App, args []string, con console) error {
	fs := flag.NewFlagSet("paste", flag.ContinueOnError)
	fs.SetOutput(con.errOut)
	interactive := fs.Bool("interactive", con.interactive, "ask before falling back to another backend")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() != 1 {
		return usageError("paste needs exactly one image")
	}

	src := fs.Arg(0)
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, "read %s", src)
	}
	blob := model.Blob{
		Name: filepath.Base(src),
		MIME: mime.TypeByExtension(strings.ToLower(filepath.Ext(src))),
		Data: data,
	}

	pl, err := a.Paste(ctx, con.prompter(), blob, *interactive)
	if err != nil {
		return err
	}
	fmt.Fprintf(con.out, "%s (%s)\n", strings.TrimSpace(pl.Markdown()), pl.Backend)
	return nil
}

func grantCmd(ctx context.Context, a *app.App, args []string, con console) error {
	fs := flag.NewFlagSet("grant", flag.ContinueOnError)
	fs.SetOutput(con.errOut)
	revoke := fs.Bool("revoke", false, "forget the granted directory")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if *revoke {
		if fs.NArg() != 0 {
			return usageError("grant -revoke takes no directory")
		}
		if err := a.Revoke(); err != nil {
			return err
		}
		fmt.Fprintln(con.out, "grant revoked")
		return nil
	}
	if fs.NArg() != 1 {
		return usageError("grant needs exactly one directory")
	}
	dir, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return errors.Wrap(err, "resolve directory")
	}
	target, err := a.Grant(ctx, dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(con.out, "granted %s\njournals go to %s\n", dir, target)
	return nil
}

func draftCmd(a *app.App, args []string, con console) error {
	if len(args) == 0 {
		return usageError("draft needs show, clear or set")
	}

	switch args[0] {
	case "show":
		st := a.Session.State()
		fmt.Fprint(con.out, st.Text)
		if st.Text != "" && !strings.HasSuffix(st.Text, "\n") {
			fmt.Fprintln(con.out)
		}
		saved := "never"
		if st.SavedAt != nil {
			saved = st.SavedAt.Format(time.DateTime)
		}
		fmt.Fprintf(con.errOut, "%d words, saved %s\n", st.Words, saved)
		return nil
	case "clear":
		return a.Session.Save("")
	case "set":
		var (
			data []byte
			err  error
		)
		if len(args) > 1 {
			data, err = os.ReadFile(args[1])
		} else {
			data, err = io.ReadAll(con.in)
		}
		if err != nil {
			return errors.Wrap(err, "read draft")
		}
		return a.Session.Save(string(data))
	default:
		return usageError(fmt.Sprintf("unknown draft command %q", args[0]))
	}
}

func historyCmd(a *app.App, args []string, con console) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(con.errOut)
	n := fs.Int("n", 10, "number of attempts to show")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	recent, err := a.History.Recent(*n)
	if err != nil {
		return err
	}
	for _, out := range recent {
		fmt.Fprintf(con.out, "%s  %-36s  local=%s remote=%s  %s\n",
			out.StartedAt.Local().Format(time.DateTime), out.ID, out.Local.Status, out.Remote.Status, out.Target.Path())
	}
	return nil
}

func checkCmd(ctx context.Context, a *app.App, con console) error {
	if err := a.CheckRemote(ctx); err != nil {
		return err
	}
	fmt.Fprintf(con.out, "remote ok %s\n", a.Config().Remote.Repo)
	return nil
}
