// Package shell is the command interpreter (C8, spec.md §4.7): it
// tokenises one input line by whitespace, dispatches the keyword to a
// driver operation in internal/session, and handles `!<cmd>` shell
// escapes and Ctrl-C-to-prompt cancellation. Grounded on the teacher's
// cobra-rooted CLI entry point (cmd/dfsctl/commands/root.go) for flag
// conventions, generalized here into a REPL since nfsh's "commands" are
// interactive verbs rather than one-shot subcommands.
package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/chzyer/readline"

	"github.com/marmos91/nfsh/internal/localfs"
	"github.com/marmos91/nfsh/internal/logger"
	"github.com/marmos91/nfsh/internal/session"
)

// Shell is the command dispatcher. It owns the session, the local
// filesystem collaborator, and the line source; Run drives the
// read-dispatch loop until `quit`/`bye` or end of input.
type Shell struct {
	Session *session.Session
	Local   *localfs.FS
	Out     io.Writer
	Err     io.Writer

	rl *readline.Instance

	// interactive is false when "-i" was passed (line-oriented stdin
	// mode per spec.md §6 "Startup flags"). It is only recorded: no
	// command reads it, and `name?` prompts and banners do not depend on it.
	interactive bool
	cancelled   bool
}

type command func(s *Shell, args []string) error

var dispatch map[string]command

func init() {
	dispatch = map[string]command{
		"host":      cmdHost,
		"mount":     cmdMount,
		"umount":    cmdUmount,
		"umountall": cmdUmountAll,
		"handle":    cmdHandle,
		"export":    cmdExport,
		"dump":      cmdDump,
		"status":    cmdStatus,
		"uid":       cmdUID,
		"gid":       cmdGID,
		"cd":        cmdCd,
		"lcd":       cmdLcd,
		"ls":        cmdLs,
		"cat":       cmdCat,
		"get":       cmdGet,
		"put":       cmdPut,
		"df":        cmdDf,
		"access":    cmdAccess,
		"pathconf":  cmdPathconf,
		"rm":        cmdRm,
		"rmdir":     cmdRmdir,
		"mkdir":     cmdMkdir,
		"mknod":     cmdMknod,
		"mv":        cmdMv,
		"ln":        cmdLn,
		"chmod":     cmdChmod,
		"chown":     cmdChown,
		"help":      cmdHelp,
	}
}

// New builds a Shell over sess and local, reading lines from readline
// configured with prompt.
func New(sess *session.Session, local *localfs.FS, out, errW io.Writer, prompt string, interactive bool) (*Shell, error) {
	cfg := &readline.Config{
		Prompt:          prompt,
		Stdout:          out,
		Stderr:          errW,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	}
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, fmt.Errorf("init readline: %w", err)
	}
	return &Shell{
		Session:     sess,
		Local:       local,
		Out:         out,
		Err:         errW,
		rl:          rl,
		interactive: interactive,
	}, nil
}

// Close releases the line source.
func (s *Shell) Close() error { return s.rl.Close() }

// Run drives the read-dispatch loop (spec.md §5): one command runs to
// completion before the next line is read; Ctrl-C during a line read
// unwinds straight back to a fresh prompt rather than aborting the
// process (spec.md §4.7, §9: a cancellation flag in place of non-local
// goto). quit/bye or EOF ends the loop with a nil error.
func (s *Shell) Run() error {
	for {
		line, err := s.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			s.cancelled = true
			continue
		}
		if errors.Is(err, io.EOF) {
			s.closeSession()
			return nil
		}
		if err != nil {
			return err
		}
		s.cancelled = false

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "!") {
			s.runShellEscape(line[1:])
			continue
		}

		verb, args := tokenize(line)
		if verb == "quit" || verb == "bye" {
			s.closeSession()
			return nil
		}

		if err := s.dispatch(verb, args); err != nil {
			fmt.Fprintf(s.Err, "%s\n", err)
		}
	}
}

func (s *Shell) closeSession() {
	if s.Session.RemoteHost != "" {
		s.Session.Close()
	}
}

func (s *Shell) dispatch(verb string, args []string) error {
	cmd, ok := dispatch[verb]
	if !ok {
		return session.NewUserError("%s: unknown command", verb)
	}
	return cmd(s, args)
}

// tokenize splits a line on whitespace only; nfsh has no quoting
// (spec.md §4.7).
func tokenize(line string) (verb string, args []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// runShellEscape runs cmd in the local shell, wiring its stdio to the
// shell's own (spec.md §6 `!<shell-command>`).
func (s *Shell) runShellEscape(cmdline string) {
	if strings.TrimSpace(cmdline) == "" {
		return
	}
	c := exec.Command("/bin/sh", "-c", cmdline)
	c.Stdin = os.Stdin
	c.Stdout = s.Out
	c.Stderr = s.Err
	if err := c.Run(); err != nil {
		fmt.Fprintf(s.Err, "%s\n", err)
	}
}

// verbs returns the fixed keyword table sorted, for `help`.
func verbs() []string {
	names := make([]string, 0, len(dispatch)+2)
	for k := range dispatch {
		names = append(names, k)
	}
	names = append(names, "quit", "bye")
	sort.Strings(names)
	return names
}

func cmdHelp(s *Shell, _ []string) error {
	fmt.Fprintln(s.Out, strings.Join(verbs(), " "))
	return nil
}

func cmdStatus(s *Shell, _ []string) error {
	sess := s.Session
	if sess.RemoteHost == "" {
		fmt.Fprintln(s.Out, "No remote host set.")
		return nil
	}
	fmt.Fprintf(s.Out, "Host: %s (%s)\n", sess.RemoteHost, sess.ServerAddr)
	if sess.IsMounted() {
		fmt.Fprintf(s.Out, "Mounted: %s, transfer size %d bytes\n", sess.MountPath, sess.TransferSize)
	} else {
		fmt.Fprintln(s.Out, "Not mounted.")
	}
	fmt.Fprintf(s.Out, "uid=%d gid=%d auth=%d\n", sess.UID, sess.GID, sess.AuthFlavor)
	return nil
}

func logVerbose(s *Shell, format string, args ...any) {
	if s.Session.Verbose {
		fmt.Fprintf(s.Out, format+"\n", args...)
	}
	logger.Debug(fmt.Sprintf(format, args...))
}
